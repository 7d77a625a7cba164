package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusReview     TaskStatus = "review"
	StatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusCompleted:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type RecurringPattern string

const (
	RecurringDaily   RecurringPattern = "daily"
	RecurringWeekly  RecurringPattern = "weekly"
	RecurringMonthly RecurringPattern = "monthly"
	RecurringNone    RecurringPattern = "none"
)

func (r RecurringPattern) Valid() bool {
	switch r {
	case RecurringDaily, RecurringWeekly, RecurringMonthly, RecurringNone:
		return true
	}
	return false
}

type Task struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"_id"`
	Title            string              `bson:"title" json:"title"`
	Description      string              `bson:"description" json:"description"`
	DueDate          time.Time           `bson:"dueDate" json:"dueDate"`
	Priority         TaskPriority        `bson:"priority" json:"priority"`
	Status           TaskStatus          `bson:"status" json:"status"`
	Creator          primitive.ObjectID  `bson:"creator" json:"creator"`
	AssignedTo       *primitive.ObjectID `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	CompletedAt      *time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	Tags             []string            `bson:"tags" json:"tags"`
	IsRecurring      bool                `bson:"isRecurring" json:"isRecurring"`
	RecurringPattern RecurringPattern    `bson:"recurringPattern" json:"recurringPattern"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// IsOverdue reports whether the due instant has passed on an open task.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status != StatusCompleted && t.DueDate.Before(now)
}

// TaskView is a task with creator and assignee resolved for display.
type TaskView struct {
	ID               primitive.ObjectID `json:"_id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	DueDate          time.Time          `json:"dueDate"`
	Priority         TaskPriority       `json:"priority"`
	Status           TaskStatus         `json:"status"`
	Creator          *UserRef           `json:"creator"`
	AssignedTo       *UserRef           `json:"assignedTo,omitempty"`
	CompletedAt      *time.Time         `json:"completedAt,omitempty"`
	Tags             []string           `json:"tags"`
	IsRecurring      bool               `json:"isRecurring"`
	RecurringPattern RecurringPattern   `json:"recurringPattern"`
	IsOverdue        bool               `json:"isOverdue"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// TaskQuery is the store-level form of a task list filter.
type TaskQuery struct {
	Search           string
	Status           TaskStatus
	Priority         TaskPriority
	DueFrom          *time.Time
	DueBefore        *time.Time
	ExcludeCompleted bool
	AssignedTo       *primitive.ObjectID
	Unassigned       bool
	Creator          *primitive.ObjectID
	Skip             int64
	Limit            int64
}
