package services

import (
	"context"
	"testing"
	"time"

	"team-tasks/backend/models"
	"team-tasks/backend/repositories/memory"
	"team-tasks/backend/utils"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	store         *memory.Store
	audit         *AuditService
	membership    *MembershipService
	tasks         *TaskService
	notifications *NotificationService
	users         *UserService
	reconciler    *Reconciler
}

func newTestEnv(t *testing.T, opts ...memory.Option) *testEnv {
	t.Helper()
	store := memory.NewStore(opts...)
	hasher := utils.NewPasswordHasher(bcrypt.MinCost)
	audit := NewAuditService(store)
	return &testEnv{
		store:         store,
		audit:         audit,
		membership:    NewMembershipService(store, audit, hasher),
		tasks:         NewTaskService(store, audit),
		notifications: NewNotificationService(store),
		users:         NewUserService(store, audit, hasher, utils.NewTokenIssuer("test-secret", time.Hour), nil),
		reconciler:    NewReconciler(store),
	}
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{
		ID:        primitive.NewObjectID(),
		Name:      name,
		Email:     name + "@example.com",
		Role:      models.RoleUser,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) admin(t *testing.T, name string) *models.User {
	t.Helper()
	u := e.user(t, name)
	require.NoError(t, e.store.SetUserRole(context.Background(), u.ID, models.RoleAdmin))
	u.Role = models.RoleAdmin
	return u
}

func (e *testEnv) team(t *testing.T, owner *models.User, code string) *models.Team {
	t.Helper()
	team, err := e.membership.CreateTeam(context.Background(), owner, CreateTeamInput{
		Name:     code + " team",
		TeamCode: code,
		Password: "pw123456",
	})
	require.NoError(t, err)
	return team
}

func (e *testEnv) reload(t *testing.T, u *models.User) *models.User {
	t.Helper()
	fresh, err := e.store.FindUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	return fresh
}

func (e *testEnv) reloadTeam(t *testing.T, team *models.Team) *models.Team {
	t.Helper()
	fresh, err := e.store.FindTeamByID(context.Background(), team.ID)
	require.NoError(t, err)
	return fresh
}

func (e *testEnv) auditActions(t *testing.T) []models.AuditAction {
	t.Helper()
	entries, err := e.store.ListAudit(context.Background(), models.AuditQuery{})
	require.NoError(t, err)
	out := make([]models.AuditAction, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i].Action)
	}
	return out
}

// assertMembershipConsistent checks that User.team and Team.members agree,
// no user is listed by two teams and no team lists a user twice.
func (e *testEnv) assertMembershipConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	users, err := e.store.ListUsers(ctx)
	require.NoError(t, err)
	teams, err := e.store.ListTeams(ctx)
	require.NoError(t, err)

	listedBy := map[primitive.ObjectID]primitive.ObjectID{}
	for _, team := range teams {
		seen := map[primitive.ObjectID]bool{}
		for _, m := range team.Members {
			require.False(t, seen[m], "team %s lists %s twice", team.TeamCode, m.Hex())
			seen[m] = true
			_, dup := listedBy[m]
			require.False(t, dup, "user %s listed by two teams", m.Hex())
			listedBy[m] = team.ID
		}
	}
	for _, u := range users {
		teamID, listed := listedBy[u.ID]
		if u.Team == nil {
			require.False(t, listed, "teamless user %s is listed by team %s", u.Name, teamID.Hex())
			continue
		}
		require.True(t, listed, "user %s references team %s but is not listed", u.Name, u.Team.Hex())
		require.Equal(t, *u.Team, teamID)
	}
}

func ptr[T any](v T) *T { return &v }
