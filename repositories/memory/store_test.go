package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"team-tasks/backend/models"
	"team-tasks/backend/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newUser(t *testing.T, s *Store, email string) *models.User {
	t.Helper()
	u := &models.User{Name: email, Email: email, Role: models.RoleUser}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestStore_CreateUserDuplicateEmail(t *testing.T) {
	s := NewStore()
	newUser(t, s, "a@x.io")

	err := s.CreateUser(context.Background(), &models.User{Email: "a@x.io"})
	assert.ErrorIs(t, err, repositories.ErrDuplicateKey)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "a@x.io")

	got, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	got.Name = "changed"
	got.Tasks = append(got.Tasks, primitive.NewObjectID())

	again, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", again.Name)
	assert.Empty(t, again.Tasks)
}

func TestStore_TeamMembership(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "a@x.io")
	t1 := &models.Team{Name: "one", TeamCode: "ONE", Members: []primitive.ObjectID{u.ID}}
	t2 := &models.Team{Name: "two", TeamCode: "TWO"}
	require.NoError(t, s.CreateTeam(ctx, t1))
	require.NoError(t, s.CreateTeam(ctx, t2))

	assert.ErrorIs(t, s.CreateTeam(ctx, &models.Team{TeamCode: "ONE"}), repositories.ErrDuplicateKey)

	require.NoError(t, s.AddTeamMember(ctx, t2.ID, u.ID))
	require.NoError(t, s.AddTeamMember(ctx, t2.ID, u.ID))

	n, err := s.PullMemberFromTeams(ctx, u.ID, &t2.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	one, _ := s.FindTeamByID(ctx, t1.ID)
	two, _ := s.FindTeamByCode(ctx, "TWO")
	assert.Empty(t, one.Members)
	assert.Equal(t, []primitive.ObjectID{u.ID}, two.Members)

	assert.ErrorIs(t, s.AddTeamMember(ctx, primitive.NewObjectID(), u.ID), repositories.ErrNotFound)
}

func TestStore_ConditionalMembershipWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a, b := newUser(t, s, "a@x.io"), newUser(t, s, "b@x.io")
	team := &models.Team{Name: "one", TeamCode: "ONE", Members: []primitive.ObjectID{a.ID, b.ID}}
	require.NoError(t, s.CreateTeam(ctx, team))
	require.NoError(t, s.SetUserTeam(ctx, a.ID, &team.ID))

	other := primitive.NewObjectID()
	changed, err := s.ClearUserTeamIf(ctx, a.ID, other)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.ReplaceTeamMembersIf(ctx, team.ID, []primitive.ObjectID{b.ID, a.ID}, []primitive.ObjectID{a.ID})
	require.NoError(t, err)
	assert.False(t, changed, "order is part of the match")

	changed, err = s.ReplaceTeamMembersIf(ctx, team.ID, []primitive.ObjectID{a.ID, b.ID}, []primitive.ObjectID{a.ID})
	require.NoError(t, err)
	assert.True(t, changed)
	got, err := s.FindTeamByID(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{a.ID}, got.Members)

	changed, err = s.ClearUserTeamIf(ctx, a.ID, team.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	fresh, err := s.FindUserByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh.Team)

	changed, err = s.ReplaceTeamMembersIf(ctx, primitive.NewObjectID(), nil, nil)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "a@x.io")
	team := &models.Team{Name: "one", TeamCode: "ONE"}
	require.NoError(t, s.CreateTeam(ctx, team))

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.AddTeamMember(ctx, team.ID, u.ID))
		require.NoError(t, s.SetUserTeam(ctx, u.ID, &team.ID))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := s.FindUserByID(ctx, u.ID)
	assert.Nil(t, got.Team)
	tm, _ := s.FindTeamByID(ctx, team.ID)
	assert.Empty(t, tm.Members)
}

func TestStore_WithoutTransactionsKeepsPartialWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore(WithoutTransactions())
	u := newUser(t, s, "a@x.io")
	team := &models.Team{Name: "one", TeamCode: "ONE"}
	require.NoError(t, s.CreateTeam(ctx, team))

	s.FailOn("SetUserTeam", errors.New("crash"))
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.AddTeamMember(ctx, team.ID, u.ID); err != nil {
			return err
		}
		return s.SetUserTeam(ctx, u.ID, &team.ID)
	})
	require.Error(t, err)

	tm, _ := s.FindTeamByID(ctx, team.ID)
	assert.Equal(t, []primitive.ObjectID{u.ID}, tm.Members)
	got, _ := s.FindUserByID(ctx, u.ID)
	assert.Nil(t, got.Team)

	// faults fire once
	require.NoError(t, s.SetUserTeam(ctx, u.ID, &team.ID))
}

func TestStore_MarkNotificationsRead(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := newUser(t, s, "a@x.io")
	taskID := primitive.NewObjectID()
	n1 := models.NewNotification("one", &taskID, time.Now())
	n2 := models.NewNotification("two", &taskID, time.Now())
	require.NoError(t, s.PushAssignedTask(ctx, u.ID, taskID, n1))
	require.NoError(t, s.PushAssignedTask(ctx, u.ID, taskID, n2))

	count, err := s.MarkNotificationsRead(ctx, u.ID, []primitive.ObjectID{n1.ID, primitive.NewObjectID()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = s.MarkNotificationsRead(ctx, u.ID, []primitive.ObjectID{n1.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	got, _ := s.FindUserByID(ctx, u.ID)
	assert.True(t, got.Notifications[0].Read)
	assert.False(t, got.Notifications[1].Read)
	assert.Len(t, got.AssignedTasks, 2)
}

func TestStore_ListTasks(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	creator := primitive.NewObjectID()
	assignee := primitive.NewObjectID()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tasks := []*models.Task{
		{Title: "Write report", Status: models.StatusTodo, Priority: models.PriorityHigh, DueDate: base, Creator: creator, CreatedAt: base},
		{Title: "Review", Description: "check the REPORT", Status: models.StatusCompleted, DueDate: base.AddDate(0, 0, -3), Creator: creator, AssignedTo: &assignee, CreatedAt: base.Add(time.Minute)},
		{Title: "Deploy", Tags: []string{"ops"}, Status: models.StatusInProgress, DueDate: base.AddDate(0, 0, 3), Creator: assignee, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, task := range tasks {
		require.NoError(t, s.CreateTask(ctx, task))
	}

	page, total, err := s.ListTasks(ctx, models.TaskQuery{Search: "report"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "Review", page[0].Title)

	_, total, _ = s.ListTasks(ctx, models.TaskQuery{Search: "OPS"})
	assert.Equal(t, int64(1), total)

	_, total, _ = s.ListTasks(ctx, models.TaskQuery{Unassigned: true})
	assert.Equal(t, int64(2), total)

	_, total, _ = s.ListTasks(ctx, models.TaskQuery{AssignedTo: &assignee})
	assert.Equal(t, int64(1), total)

	before := base.AddDate(0, 0, 1)
	page, total, _ = s.ListTasks(ctx, models.TaskQuery{DueBefore: &before, ExcludeCompleted: true})
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Write report", page[0].Title)

	page, total, _ = s.ListTasks(ctx, models.TaskQuery{Skip: 1, Limit: 1})
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, "Review", page[0].Title)

	page, _, _ = s.ListTasks(ctx, models.TaskQuery{Skip: 10, Limit: 5})
	assert.Empty(t, page)
}

func TestStore_ListAuditNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	actor := primitive.NewObjectID()
	for _, a := range []models.AuditAction{models.ActionTeamCreate, models.ActionTeamJoin, models.ActionTaskCreated} {
		require.NoError(t, s.AppendAudit(ctx, &models.AuditLog{User: actor, Action: a, CreatedAt: time.Now()}))
	}

	all, err := s.ListAudit(ctx, models.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.ActionTaskCreated, all[0].Action)

	joins, _ := s.ListAudit(ctx, models.AuditQuery{Action: models.ActionTeamJoin})
	assert.Len(t, joins, 1)

	limited, _ := s.ListAudit(ctx, models.AuditQuery{Limit: 2})
	assert.Len(t, limited, 2)
}
