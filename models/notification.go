package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification is embedded in the owning user's document.
type Notification struct {
	ID        primitive.ObjectID  `bson:"_id" json:"_id"`
	Message   string              `bson:"message" json:"message"`
	Read      bool                `bson:"read" json:"read"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
	TaskID    *primitive.ObjectID `bson:"taskId,omitempty" json:"taskId,omitempty"`
}

func NewNotification(message string, taskID *primitive.ObjectID, now time.Time) Notification {
	return Notification{
		ID:        primitive.NewObjectID(),
		Message:   message,
		CreatedAt: now,
		TaskID:    taskID,
	}
}
