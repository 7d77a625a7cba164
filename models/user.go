package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Name          string               `bson:"name" json:"name"`
	Email         string               `bson:"email" json:"email"`
	Password      string               `bson:"password" json:"-"`
	Role          Role                 `bson:"role" json:"role"`
	Team          *primitive.ObjectID  `bson:"team,omitempty" json:"team,omitempty"`
	Avatar        string               `bson:"avatar" json:"avatar"`
	Tasks         []primitive.ObjectID `bson:"tasks" json:"tasks"`
	AssignedTasks []primitive.ObjectID `bson:"assignedTasks" json:"assignedTasks"`
	Notifications []Notification       `bson:"notifications" json:"notifications"`
	CreatedAt     time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// InTeam reports whether the user's team reference points at teamID.
func (u *User) InTeam(teamID primitive.ObjectID) bool {
	return u != nil && u.Team != nil && *u.Team == teamID
}

// UserRef is the populated form of a user reference inside task payloads.
type UserRef struct {
	ID    primitive.ObjectID `json:"_id"`
	Name  string             `json:"name"`
	Email string             `json:"email"`
}

func (u *User) Ref() *UserRef {
	if u == nil {
		return nil
	}
	return &UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}
