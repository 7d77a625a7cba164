package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuditAction string

const (
	ActionTaskCreated      AuditAction = "task_created"
	ActionTaskUpdated      AuditAction = "task_updated"
	ActionTaskDeleted      AuditAction = "task_deleted"
	ActionTaskAssigned     AuditAction = "task_assigned"
	ActionTaskCompleted    AuditAction = "task_completed"
	ActionTaskCommentAdded AuditAction = "task_comment_added"
	ActionUserRegistered   AuditAction = "user_registered"
	ActionUserLogin        AuditAction = "user_login"
	ActionTeamCreate       AuditAction = "team_create"
	ActionTeamJoin         AuditAction = "team_join"
	ActionTeamMemberAdd    AuditAction = "team_member_add"
	ActionTeamMemberRemove AuditAction = "team_member_remove"
)

var auditActions = map[AuditAction]struct{}{
	ActionTaskCreated:      {},
	ActionTaskUpdated:      {},
	ActionTaskDeleted:      {},
	ActionTaskAssigned:     {},
	ActionTaskCompleted:    {},
	ActionTaskCommentAdded: {},
	ActionUserRegistered:   {},
	ActionUserLogin:        {},
	ActionTeamCreate:       {},
	ActionTeamJoin:         {},
	ActionTeamMemberAdd:    {},
	ActionTeamMemberRemove: {},
}

func (a AuditAction) Valid() bool {
	_, ok := auditActions[a]
	return ok
}

type AuditLog struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"_id"`
	User      primitive.ObjectID     `bson:"user" json:"user"`
	Action    AuditAction            `bson:"action" json:"action"`
	Details   map[string]interface{} `bson:"details" json:"details"`
	TaskID    *primitive.ObjectID    `bson:"taskId,omitempty" json:"taskId,omitempty"`
	IPAddress string                 `bson:"ipAddress,omitempty" json:"ipAddress,omitempty"`
	UserAgent string                 `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	CreatedAt time.Time              `bson:"createdAt" json:"createdAt"`
}

type AuditQuery struct {
	User   *primitive.ObjectID
	TaskID *primitive.ObjectID
	Action AuditAction
	Limit  int64
}
