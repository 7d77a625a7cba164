package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"team-tasks/backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type taskFixture struct {
	env   *testEnv
	alice *models.User
	bob   *models.User
	carol *models.User
	eng   *models.Team
	mkt   *models.Team
}

// newTaskFixture puts alice and bob in ENG1 and carol in MKT1.
func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	env := newTestEnv(t)
	f := &taskFixture{env: env, alice: env.user(t, "alice"), bob: env.user(t, "bob"), carol: env.user(t, "carol")}
	f.eng = env.team(t, f.alice, "ENG1")
	f.mkt = env.team(t, f.carol, "MKT1")
	_, _, err := env.membership.JoinTeam(context.Background(), f.bob, "ENG1", "pw123456")
	require.NoError(t, err)
	return f
}

func taskInput(title string) CreateTaskInput {
	due := time.Now().Add(48 * time.Hour)
	return CreateTaskInput{Title: title, Description: "details", DueDate: &due}
}

func TestCreateTask_AssignsWithinTeam(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	in := taskInput("  Ship it  ")
	in.AssignedTo = f.bob.ID.Hex()
	in.Tags = []string{"release", " release ", "", "ops"}
	view, err := f.env.tasks.CreateTask(ctx, f.alice, in)
	require.NoError(t, err)

	assert.Equal(t, "Ship it", view.Title)
	assert.Equal(t, models.PriorityMedium, view.Priority)
	assert.Equal(t, models.StatusTodo, view.Status)
	assert.Equal(t, models.RecurringNone, view.RecurringPattern)
	assert.Equal(t, []string{"release", "ops"}, view.Tags)
	require.NotNil(t, view.Creator)
	assert.Equal(t, "alice", view.Creator.Name)
	require.NotNil(t, view.AssignedTo)
	assert.Equal(t, f.bob.ID, view.AssignedTo.ID)

	bob := f.env.reload(t, f.bob)
	assert.Equal(t, []primitive.ObjectID{view.ID}, bob.AssignedTasks)
	require.Len(t, bob.Notifications, 1)
	assert.False(t, bob.Notifications[0].Read)
	assert.Equal(t, "You were assigned a new task: Ship it", bob.Notifications[0].Message)
	assert.Equal(t, view.ID, *bob.Notifications[0].TaskID)

	assert.Equal(t, []primitive.ObjectID{view.ID}, f.env.reload(t, f.alice).Tasks)

	entries, err := f.env.store.ListAudit(ctx, models.AuditQuery{TaskID: &view.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionTaskCreated, entries[0].Action)
}

func TestCreateTask_CrossTeamAssigneeForbidden(t *testing.T) {
	f := newTaskFixture(t)
	in := taskInput("Cross")
	in.AssignedTo = f.carol.ID.Hex()

	_, err := f.env.tasks.CreateTask(context.Background(), f.alice, in)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Empty(t, f.env.reload(t, f.carol).AssignedTasks)
	assert.Empty(t, f.env.reload(t, f.alice).Tasks)
}

func TestCreateTask_Failures(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	loner := f.env.user(t, "loner")
	_, err := f.env.tasks.CreateTask(ctx, loner, taskInput("x"))
	assert.ErrorIs(t, err, ErrInvalidState)

	in := taskInput("x")
	in.AssignedTo = primitive.NewObjectID().Hex()
	_, err = f.env.tasks.CreateTask(ctx, f.alice, in)
	assert.ErrorIs(t, err, ErrNotFound)

	in.AssignedTo = "not-an-id"
	_, err = f.env.tasks.CreateTask(ctx, f.alice, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	invalid := []CreateTaskInput{
		{Description: "d", DueDate: taskInput("").DueDate},
		{Title: "t", DueDate: taskInput("").DueDate},
		{Title: "t", Description: "d"},
		{Title: "t", Description: "d", DueDate: taskInput("").DueDate, Priority: "urgent"},
		{Title: "t", Description: "d", DueDate: taskInput("").DueDate, Status: "done"},
		{Title: "t", Description: "d", DueDate: taskInput("").DueDate, RecurringPattern: "yearly"},
	}
	for _, in := range invalid {
		_, err := f.env.tasks.CreateTask(ctx, f.alice, in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestCreateTask_CompletedRecordsCompletion(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.env.tasks.now = func() time.Time { return at }
	in := taskInput("Already done")
	in.Status = models.StatusCompleted
	created, err := f.env.tasks.CreateTask(ctx, f.alice, in)
	require.NoError(t, err)
	require.NotNil(t, created.CompletedAt)
	assert.Equal(t, at, *created.CompletedAt)

	entries, err := f.env.store.ListAudit(ctx, models.AuditQuery{TaskID: &created.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionTaskCompleted, entries[0].Action)
	assert.Equal(t, models.ActionTaskCreated, entries[1].Action)
	assert.Equal(t, f.alice.ID, entries[0].Details["completedBy"])
}

func TestUpdateTask_CompletionStampsOnce(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()

	in := taskInput("Finish")
	in.AssignedTo = f.bob.ID.Hex()
	in.Status = models.StatusInProgress
	created, err := f.env.tasks.CreateTask(ctx, f.alice, in)
	require.NoError(t, err)
	assert.Nil(t, created.CompletedAt)

	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.env.tasks.now = func() time.Time { return first }
	completed := models.StatusCompleted
	view, err := f.env.tasks.UpdateTask(ctx, f.bob, created.ID, TaskPatch{Status: &completed})
	require.NoError(t, err)
	require.NotNil(t, view.CompletedAt)
	assert.Equal(t, first, *view.CompletedAt)

	entries, err := f.env.store.ListAudit(ctx, models.AuditQuery{TaskID: &created.ID})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.ActionTaskUpdated, entries[0].Action)
	assert.Equal(t, models.ActionTaskCompleted, entries[1].Action)
	assert.Equal(t, []string{"status"}, entries[0].Details["updatedFields"])

	// reopen and complete again: completedAt keeps the first stamp
	f.env.tasks.now = func() time.Time { return first.Add(time.Hour) }
	todo := models.StatusTodo
	view, err = f.env.tasks.UpdateTask(ctx, f.bob, created.ID, TaskPatch{Status: &todo})
	require.NoError(t, err)
	require.NotNil(t, view.CompletedAt)

	view, err = f.env.tasks.UpdateTask(ctx, f.bob, created.ID, TaskPatch{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, first, *view.CompletedAt)

	completions, err := f.env.store.ListAudit(ctx, models.AuditQuery{Action: models.ActionTaskCompleted})
	require.NoError(t, err)
	assert.Len(t, completions, 2)
}

func TestUpdateTask_Reassign(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	dave := f.env.user(t, "dave")
	_, _, err := f.env.membership.JoinTeam(ctx, dave, "ENG1", "pw123456")
	require.NoError(t, err)

	in := taskInput("Move me")
	in.AssignedTo = f.bob.ID.Hex()
	created, err := f.env.tasks.CreateTask(ctx, f.alice, in)
	require.NoError(t, err)

	view, err := f.env.tasks.UpdateTask(ctx, f.alice, created.ID, TaskPatch{AssignedTo: ptr(dave.ID.Hex())})
	require.NoError(t, err)
	assert.Equal(t, dave.ID, view.AssignedTo.ID)

	assert.Empty(t, f.env.reload(t, f.bob).AssignedTasks)
	d := f.env.reload(t, dave)
	assert.Equal(t, []primitive.ObjectID{created.ID}, d.AssignedTasks)
	require.Len(t, d.Notifications, 1)
	assert.Equal(t, "You were assigned a task: Move me", d.Notifications[0].Message)

	assigned, err := f.env.store.ListAudit(ctx, models.AuditQuery{Action: models.ActionTaskAssigned})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, &f.bob.ID, assigned[0].Details["assignedFrom"])

	// unassign
	view, err = f.env.tasks.UpdateTask(ctx, f.alice, created.ID, TaskPatch{AssignedTo: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, view.AssignedTo)
	assert.Empty(t, f.env.reload(t, dave).AssignedTasks)

	// assigning back from unassigned counts as a change
	_, err = f.env.tasks.UpdateTask(ctx, f.alice, created.ID, TaskPatch{AssignedTo: ptr(f.bob.ID.Hex())})
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{created.ID}, f.env.reload(t, f.bob).AssignedTasks)

	assigned, err = f.env.store.ListAudit(ctx, models.AuditQuery{Action: models.ActionTaskAssigned})
	require.NoError(t, err)
	assert.Len(t, assigned, 3)
}

func TestUpdateTask_SameAssigneeIsNotAChange(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	in := taskInput("Stay")
	in.AssignedTo = f.bob.ID.Hex()
	created, err := f.env.tasks.CreateTask(ctx, f.alice, in)
	require.NoError(t, err)

	_, err = f.env.tasks.UpdateTask(ctx, f.alice, created.ID, TaskPatch{AssignedTo: ptr(f.bob.ID.Hex())})
	require.NoError(t, err)

	bob := f.env.reload(t, f.bob)
	assert.Len(t, bob.AssignedTasks, 1)
	assert.Len(t, bob.Notifications, 1)
}

func TestUpdateTask_Permissions(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	created, err := f.env.tasks.CreateTask(ctx, f.alice, taskInput("Mine"))
	require.NoError(t, err)

	title := "Hijacked"
	_, err = f.env.tasks.UpdateTask(ctx, f.bob, created.ID, TaskPatch{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.env.tasks.UpdateTask(ctx, f.alice, primitive.NewObjectID(), TaskPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)

	root := f.env.admin(t, "root")
	view, err := f.env.tasks.UpdateTask(ctx, root, created.ID, TaskPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Hijacked", view.Title)

	_, err = f.env.tasks.UpdateTask(ctx, f.alice, created.ID, TaskPatch{AssignedTo: ptr(f.carol.ID.Hex())})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.env.tasks.UpdateTask(ctx, f.alice, created.ID, TaskPatch{AssignedTo: ptr(primitive.NewObjectID().Hex())})
	assert.ErrorIs(t, err, ErrNotFound)

	empty := "  "
	_, err = f.env.tasks.UpdateTask(ctx, f.alice, created.ID, TaskPatch{Title: &empty})
	assert.ErrorIs(t, err, ErrInvalidInput)

	task, err := f.env.store.FindTaskByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hijacked", task.Title)
	assert.Nil(t, task.AssignedTo)
}

func TestUpdateTask_AssigneeMayEdit(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	in := taskInput("Shared")
	in.AssignedTo = f.bob.ID.Hex()
	created, err := f.env.tasks.CreateTask(ctx, f.alice, in)
	require.NoError(t, err)

	high := models.PriorityHigh
	view, err := f.env.tasks.UpdateTask(ctx, f.bob, created.ID, TaskPatch{Priority: &high})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, view.Priority)

	err = f.env.tasks.DeleteTask(ctx, f.bob, created.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateTask_FailureRollsBackAssignment(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	dave := f.env.user(t, "dave")
	_, _, err := f.env.membership.JoinTeam(ctx, dave, "ENG1", "pw123456")
	require.NoError(t, err)

	in := taskInput("Fragile")
	in.AssignedTo = f.bob.ID.Hex()
	created, err := f.env.tasks.CreateTask(ctx, f.alice, in)
	require.NoError(t, err)

	f.env.store.FailOn("PushAssignedTask", errors.New("timeout"))
	_, err = f.env.tasks.UpdateTask(ctx, f.alice, created.ID, TaskPatch{AssignedTo: ptr(dave.ID.Hex())})
	require.Error(t, err)

	task, err := f.env.store.FindTaskByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, f.bob.ID, *task.AssignedTo)
	assert.Equal(t, []primitive.ObjectID{created.ID}, f.env.reload(t, f.bob).AssignedTasks)
	assert.Empty(t, f.env.reload(t, dave).AssignedTasks)
}

func TestDeleteTask(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	in := taskInput("Doomed")
	in.AssignedTo = f.bob.ID.Hex()
	created, err := f.env.tasks.CreateTask(ctx, f.alice, in)
	require.NoError(t, err)

	require.NoError(t, f.env.tasks.DeleteTask(ctx, f.alice, created.ID))

	_, err = f.env.tasks.GetTask(ctx, f.alice, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.env.reload(t, f.alice).Tasks)
	assert.Empty(t, f.env.reload(t, f.bob).AssignedTasks)

	deleted, err := f.env.store.ListAudit(ctx, models.AuditQuery{Action: models.ActionTaskDeleted})
	require.NoError(t, err)
	assert.Len(t, deleted, 1)

	err = f.env.tasks.DeleteTask(ctx, f.alice, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTasks(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	f.env.tasks.now = func() time.Time { return now }

	mk := func(title string, due time.Time, status models.TaskStatus, assignee *models.User, tags ...string) {
		in := CreateTaskInput{Title: title, Description: "about " + title, DueDate: &due, Status: status, Tags: tags}
		if assignee != nil {
			in.AssignedTo = assignee.ID.Hex()
		}
		_, err := f.env.tasks.CreateTask(ctx, f.alice, in)
		require.NoError(t, err)
		now = now.Add(time.Second)
	}
	mk("late", time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC), models.StatusTodo, f.bob)
	mk("late but done", time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC), models.StatusCompleted, nil)
	mk("due today", time.Date(2024, 5, 15, 18, 0, 0, 0, time.UTC), models.StatusInProgress, f.bob, "urgent")
	mk("due saturday", time.Date(2024, 5, 18, 18, 0, 0, 0, time.UTC), models.StatusTodo, nil)
	mk("due next week", time.Date(2024, 5, 21, 9, 0, 0, 0, time.UTC), models.StatusReview, nil)
	mk("due next month", time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), models.StatusTodo, nil, "Q2.plan")

	titles := func(p *TaskPage) []string {
		out := []string{}
		for _, v := range p.Tasks {
			out = append(out, v.Title)
		}
		return out
	}

	tests := []struct {
		name   string
		filter TaskFilter
		want   []string
	}{
		{"overdue", TaskFilter{DueDate: DueOverdue}, []string{"late"}},
		{"today", TaskFilter{DueDate: DueToday}, []string{"due today"}},
		{"this week", TaskFilter{DueDate: DueThisWeek}, []string{"due saturday", "due today"}},
		{"next week", TaskFilter{DueDate: DueNextWeek}, []string{"due next week"}},
		{"this month", TaskFilter{DueDate: DueThisMonth, Status: "todo"}, []string{"due saturday", "late"}},
		{"assigned to bob", TaskFilter{AssignedTo: f.bob.ID.Hex()}, []string{"due today", "late"}},
		{"unassigned", TaskFilter{AssignedTo: "unassigned", Priority: "medium"}, []string{"due next month", "due next week", "due saturday", "late but done"}},
		{"search tag", TaskFilter{Search: "URGENT"}, []string{"due today"}},
		{"search literal", TaskFilter{Search: "q2.plan"}, []string{"due next month"}},
		{"search regex chars", TaskFilter{Search: "q2.*"}, []string{}},
		{"created by me", TaskFilter{CreatedBy: "me", Status: "review"}, []string{"due next week"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.env.tasks.ListTasks(ctx, f.alice, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(page))
		})
	}

	page, err := f.env.tasks.ListTasks(ctx, f.bob, TaskFilter{AssignedTo: "me"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
}

func TestListTasks_Pagination(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	for i := 0; i < 23; i++ {
		_, err := f.env.tasks.CreateTask(ctx, f.alice, taskInput("task"))
		require.NoError(t, err)
	}

	page, err := f.env.tasks.ListTasks(ctx, f.carol, TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(23), page.Total)
	assert.Equal(t, int64(1), page.Page)
	assert.Equal(t, int64(10), page.Limit)
	assert.Equal(t, int64(3), page.Pages)
	assert.Len(t, page.Tasks, 10)

	page, err = f.env.tasks.ListTasks(ctx, f.carol, TaskFilter{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 3)

	page, err = f.env.tasks.ListTasks(ctx, f.carol, TaskFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(100), page.Limit)
	assert.Equal(t, int64(1), page.Pages)
}

func TestListTasks_InvalidFilters(t *testing.T) {
	f := newTaskFixture(t)
	ctx := context.Background()
	for _, filter := range []TaskFilter{
		{AssignedTo: "bogus"},
		{CreatedBy: "bogus"},
		{Status: "done"},
		{Priority: "urgent"},
		{DueDate: "someday"},
	} {
		_, err := f.env.tasks.ListTasks(ctx, f.alice, filter)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestTaskPatchFields(t *testing.T) {
	status := models.StatusReview
	p := TaskPatch{Title: ptr("x"), Status: &status, AssignedTo: ptr("")}
	assert.Equal(t, []string{"title", "status", "assignedTo"}, p.Fields())
	assert.Empty(t, TaskPatch{}.Fields())
}
