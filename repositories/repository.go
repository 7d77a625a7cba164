package repositories

import (
	"context"
	"time"

	"team-tasks/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	// SetUserTeam overwrites the user's team reference; nil clears it.
	SetUserTeam(ctx context.Context, userID primitive.ObjectID, teamID *primitive.ObjectID) error
	// ClearUserTeamIf clears the user's team reference only while it still
	// points at teamID. It reports whether the user was changed.
	ClearUserTeamIf(ctx context.Context, userID, teamID primitive.ObjectID) (bool, error)
	SetUserRole(ctx context.Context, userID primitive.ObjectID, role models.Role) error
	PushCreatedTask(ctx context.Context, userID, taskID primitive.ObjectID) error
	PullCreatedTask(ctx context.Context, userID, taskID primitive.ObjectID) error
	// PushAssignedTask appends the task id and the notification in a single update.
	PushAssignedTask(ctx context.Context, userID, taskID primitive.ObjectID, n models.Notification) error
	PullAssignedTask(ctx context.Context, userID, taskID primitive.ObjectID) error
	MarkNotificationsRead(ctx context.Context, userID primitive.ObjectID, ids []primitive.ObjectID) (int64, error)
}

type TeamRepository interface {
	CreateTeam(ctx context.Context, team *models.Team) error
	FindTeamByID(ctx context.Context, id primitive.ObjectID) (*models.Team, error)
	FindTeamByCode(ctx context.Context, code string) (*models.Team, error)
	ListTeams(ctx context.Context) ([]models.Team, error)
	// AddTeamMember inserts userID into members unless already present.
	AddTeamMember(ctx context.Context, teamID, userID primitive.ObjectID) error
	// PullMemberFromTeams removes userID from every team's members except the
	// one identified by except (nil means all teams). Returns teams modified.
	PullMemberFromTeams(ctx context.Context, userID primitive.ObjectID, except *primitive.ObjectID) (int64, error)
	// ReplaceTeamMembersIf overwrites the member list only while it still
	// equals expected, order included. It reports whether the team was changed.
	ReplaceTeamMembersIf(ctx context.Context, teamID primitive.ObjectID, expected, members []primitive.ObjectID) (bool, error)
}

type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	FindTaskByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error)
	ReplaceTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id primitive.ObjectID) error
	ListTasks(ctx context.Context, q models.TaskQuery) ([]models.Task, int64, error)
}

type AuditRepository interface {
	AppendAudit(ctx context.Context, entry *models.AuditLog) error
	ListAudit(ctx context.Context, q models.AuditQuery) ([]models.AuditLog, error)
}

// AuditBatchWriter is implemented by audit sinks that sit outside the store
// transaction. The entries of one operation are written all or nothing, and
// writing an entry again with the same id and timestamp overwrites it.
type AuditBatchWriter interface {
	AppendAuditBatch(ctx context.Context, entries []*models.AuditLog) error
}

// Transactor runs fn so that either every write it performs is applied or none is.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is the domain store the services depend on.
type Store interface {
	UserRepository
	TeamRepository
	TaskRepository
	Transactor
}

// SessionDenylist records revoked session token ids until they expire.
type SessionDenylist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
