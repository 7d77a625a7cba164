package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"team-tasks/backend/logging"
	"team-tasks/backend/models"
	"team-tasks/backend/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 1000

	defaultPageLimit = 10
	maxPageLimit     = 100
)

type TaskService struct {
	store repositories.Store
	audit *AuditService
	now   func() time.Time
}

func NewTaskService(store repositories.Store, audit *AuditService) *TaskService {
	return &TaskService{store: store, audit: audit, now: time.Now}
}

type CreateTaskInput struct {
	Title            string
	Description      string
	DueDate          *time.Time
	Priority         models.TaskPriority
	Status           models.TaskStatus
	AssignedTo       string
	Tags             []string
	IsRecurring      bool
	RecurringPattern models.RecurringPattern
}

// TaskPatch carries the fields of a partial update. Nil fields are left
// untouched. A non-nil AssignedTo holding "" unassigns the task.
type TaskPatch struct {
	Title            *string
	Description      *string
	DueDate          *time.Time
	Priority         *models.TaskPriority
	Status           *models.TaskStatus
	AssignedTo       *string
	Tags             *[]string
	IsRecurring      *bool
	RecurringPattern *models.RecurringPattern
}

// Fields lists the JSON names of the fields present in the patch.
func (p TaskPatch) Fields() []string {
	fields := []string{}
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.Description != nil, "description")
	add(p.DueDate != nil, "dueDate")
	add(p.Priority != nil, "priority")
	add(p.Status != nil, "status")
	add(p.AssignedTo != nil, "assignedTo")
	add(p.Tags != nil, "tags")
	add(p.IsRecurring != nil, "isRecurring")
	add(p.RecurringPattern != nil, "recurringPattern")
	return fields
}

type TaskFilter struct {
	Search     string
	Status     string
	Priority   string
	DueDate    string
	AssignedTo string
	CreatedBy  string
	Page       int64
	Limit      int64
}

type TaskPage struct {
	Tasks []models.TaskView
	Total int64
	Page  int64
	Limit int64
	Pages int64
}

func (s *TaskService) CreateTask(ctx context.Context, creator *models.User, in CreateTaskInput) (*models.TaskView, error) {
	if creator.Team == nil {
		return nil, newError(ErrInvalidState, "You must be part of a team to create tasks")
	}

	now := s.now()
	task := &models.Task{
		ID:               primitive.NewObjectID(),
		Title:            in.Title,
		Description:      in.Description,
		Priority:         in.Priority,
		Status:           in.Status,
		Creator:          creator.ID,
		Tags:             in.Tags,
		IsRecurring:      in.IsRecurring,
		RecurringPattern: in.RecurringPattern,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.DueDate != nil {
		task.DueDate = *in.DueDate
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.Status == "" {
		task.Status = models.StatusTodo
	}
	if task.RecurringPattern == "" {
		task.RecurringPattern = models.RecurringNone
	}
	if task.Status == models.StatusCompleted {
		task.CompletedAt = &now
	}
	if err := normalizeTask(task); err != nil {
		return nil, err
	}

	var assignee *models.User
	if strings.TrimSpace(in.AssignedTo) != "" {
		id, err := parseID(in.AssignedTo, "assignee")
		if err != nil {
			return nil, err
		}
		assignee, err = s.findAssignee(ctx, id)
		if err != nil {
			return nil, err
		}
		if !assignee.InTeam(*creator.Team) {
			return nil, newError(ErrForbidden, "You can only assign tasks to members of your team")
		}
		task.AssignedTo = &assignee.ID
	}

	err := s.audit.Transaction(ctx, s.store, func(ctx context.Context, rec *AuditBatch) error {
		if err := s.store.CreateTask(ctx, task); err != nil {
			return err
		}
		if assignee != nil {
			n := models.NewNotification("You were assigned a new task: "+task.Title, &task.ID, now)
			if err := s.store.PushAssignedTask(ctx, assignee.ID, task.ID, n); err != nil {
				return err
			}
		}
		if err := s.store.PushCreatedTask(ctx, creator.ID, task.ID); err != nil {
			return err
		}
		if err := rec.Add(ctx, creator.ID, models.ActionTaskCreated, map[string]interface{}{
			"taskId":     task.ID,
			"title":      task.Title,
			"assignedTo": task.AssignedTo,
			"teamId":     *creator.Team,
		}, &task.ID); err != nil {
			return err
		}
		if task.Status != models.StatusCompleted {
			return nil
		}
		return rec.Add(ctx, creator.ID, models.ActionTaskCompleted, map[string]interface{}{
			"taskId":      task.ID,
			"title":       task.Title,
			"completedBy": creator.ID,
		}, &task.ID)
	})
	if err != nil {
		return nil, err
	}

	logging.Logger.Infof("Event ID: TASK_CREATED, Description: User %s created task %s", creator.ID.Hex(), task.ID.Hex())
	return s.view(ctx, task)
}

func (s *TaskService) UpdateTask(ctx context.Context, actor *models.User, taskID primitive.ObjectID, patch TaskPatch) (*models.TaskView, error) {
	original, err := s.findTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !canEdit(actor, original) {
		return nil, newError(ErrForbidden, "You do not have permission to update this task")
	}

	updated := *original
	applyPatch(&updated, patch)
	if err := normalizeTask(&updated); err != nil {
		return nil, err
	}

	assigneeChanged := false
	var newAssignee *models.User
	if patch.AssignedTo != nil {
		var next *primitive.ObjectID
		if strings.TrimSpace(*patch.AssignedTo) != "" {
			id, err := parseID(*patch.AssignedTo, "assignee")
			if err != nil {
				return nil, err
			}
			next = &id
		}
		assigneeChanged = !sameID(original.AssignedTo, next)
		if assigneeChanged && next != nil {
			if newAssignee, err = s.findAssignee(ctx, *next); err != nil {
				return nil, err
			}
			if err := s.checkSameTeamAsCreator(ctx, original.Creator, newAssignee); err != nil {
				return nil, err
			}
		}
		updated.AssignedTo = next
	}

	now := s.now()
	completedNow := original.Status != models.StatusCompleted && updated.Status == models.StatusCompleted
	if completedNow && updated.CompletedAt == nil {
		updated.CompletedAt = &now
	}
	updated.UpdatedAt = now

	err = s.audit.Transaction(ctx, s.store, func(ctx context.Context, rec *AuditBatch) error {
		if err := s.store.ReplaceTask(ctx, &updated); err != nil {
			return err
		}
		if assigneeChanged {
			if original.AssignedTo != nil {
				if err := ignoreNotFound(s.store.PullAssignedTask(ctx, *original.AssignedTo, updated.ID)); err != nil {
					return err
				}
			}
			if newAssignee != nil {
				n := models.NewNotification("You were assigned a task: "+updated.Title, &updated.ID, now)
				if err := s.store.PushAssignedTask(ctx, newAssignee.ID, updated.ID, n); err != nil {
					return err
				}
			}
			if err := rec.Add(ctx, actor.ID, models.ActionTaskAssigned, map[string]interface{}{
				"taskId":       updated.ID,
				"title":        updated.Title,
				"assignedFrom": original.AssignedTo,
				"assignedTo":   updated.AssignedTo,
			}, &updated.ID); err != nil {
				return err
			}
		}
		if completedNow {
			if err := rec.Add(ctx, actor.ID, models.ActionTaskCompleted, map[string]interface{}{
				"taskId":      updated.ID,
				"title":       updated.Title,
				"completedBy": actor.ID,
			}, &updated.ID); err != nil {
				return err
			}
		}
		return rec.Add(ctx, actor.ID, models.ActionTaskUpdated, map[string]interface{}{
			"taskId":        updated.ID,
			"title":         updated.Title,
			"updatedFields": patch.Fields(),
		}, &updated.ID)
	})
	if err != nil {
		return nil, err
	}

	logging.Logger.Infof("Event ID: TASK_UPDATED, Description: User %s updated task %s", actor.ID.Hex(), updated.ID.Hex())
	return s.view(ctx, &updated)
}

func (s *TaskService) DeleteTask(ctx context.Context, actor *models.User, taskID primitive.ObjectID) error {
	task, err := s.findTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !canDelete(actor, task) {
		return newError(ErrForbidden, "You do not have permission to delete this task")
	}

	err = s.audit.Transaction(ctx, s.store, func(ctx context.Context, rec *AuditBatch) error {
		if err := s.store.DeleteTask(ctx, task.ID); err != nil {
			return err
		}
		if err := ignoreNotFound(s.store.PullCreatedTask(ctx, task.Creator, task.ID)); err != nil {
			return err
		}
		if task.AssignedTo != nil {
			if err := ignoreNotFound(s.store.PullAssignedTask(ctx, *task.AssignedTo, task.ID)); err != nil {
				return err
			}
		}
		return rec.Add(ctx, actor.ID, models.ActionTaskDeleted, map[string]interface{}{
			"taskId":    task.ID,
			"title":     task.Title,
			"deletedBy": actor.ID,
		}, &task.ID)
	})
	if err != nil {
		return err
	}

	logging.Logger.Infof("Event ID: TASK_DELETED, Description: User %s deleted task %s", actor.ID.Hex(), task.ID.Hex())
	return nil
}

func (s *TaskService) GetTask(ctx context.Context, actor *models.User, taskID primitive.ObjectID) (*models.TaskView, error) {
	task, err := s.findTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, task)
}

// ListTasks pages through tasks matching f, newest first. Results are not
// restricted to the actor's team.
func (s *TaskService) ListTasks(ctx context.Context, actor *models.User, f TaskFilter) (*TaskPage, error) {
	q, err := s.buildQuery(actor, f)
	if err != nil {
		return nil, err
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	q.Skip = (page - 1) * limit
	q.Limit = limit

	tasks, total, err := s.store.ListTasks(ctx, q)
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, tasks)
	if err != nil {
		return nil, err
	}
	return &TaskPage{
		Tasks: views,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: (total + limit - 1) / limit,
	}, nil
}

func (s *TaskService) buildQuery(actor *models.User, f TaskFilter) (models.TaskQuery, error) {
	q := models.TaskQuery{Search: strings.TrimSpace(f.Search)}

	if f.Status != "" {
		q.Status = models.TaskStatus(f.Status)
		if !q.Status.Valid() {
			return q, newError(ErrInvalidInput, "Invalid status %q", f.Status)
		}
	}
	if f.Priority != "" {
		q.Priority = models.TaskPriority(f.Priority)
		if !q.Priority.Valid() {
			return q, newError(ErrInvalidInput, "Invalid priority %q", f.Priority)
		}
	}
	if f.DueDate != "" {
		w, ok := dueRange(f.DueDate, s.now())
		if !ok {
			return q, newError(ErrInvalidInput, "Invalid due date filter %q", f.DueDate)
		}
		q.DueFrom, q.DueBefore, q.ExcludeCompleted = w.from, w.before, w.excludeCompleted
	}

	switch f.AssignedTo {
	case "":
	case "me":
		q.AssignedTo = &actor.ID
	case "unassigned":
		q.Unassigned = true
	default:
		id, err := parseID(f.AssignedTo, "assignee")
		if err != nil {
			return q, err
		}
		q.AssignedTo = &id
	}

	switch f.CreatedBy {
	case "":
	case "me":
		q.Creator = &actor.ID
	default:
		id, err := parseID(f.CreatedBy, "creator")
		if err != nil {
			return q, err
		}
		q.Creator = &id
	}
	return q, nil
}

func (s *TaskService) findTask(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	task, err := s.store.FindTaskByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrNotFound, "Task not found")
		}
		return nil, err
	}
	return task, nil
}

func (s *TaskService) findAssignee(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrNotFound, "Assigned user not found")
		}
		return nil, err
	}
	return u, nil
}

// checkSameTeamAsCreator enforces that assignees share the creator's current team.
func (s *TaskService) checkSameTeamAsCreator(ctx context.Context, creatorID primitive.ObjectID, assignee *models.User) error {
	creator, err := s.store.FindUserByID(ctx, creatorID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	if creator == nil || creator.Team == nil || !assignee.InTeam(*creator.Team) {
		return newError(ErrForbidden, "You can only assign tasks to members of the task creator's team")
	}
	return nil
}

func (s *TaskService) view(ctx context.Context, task *models.Task) (*models.TaskView, error) {
	views, err := s.views(ctx, []models.Task{*task})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// views resolves creators and assignees with a single user lookup.
func (s *TaskService) views(ctx context.Context, tasks []models.Task) ([]models.TaskView, error) {
	ids := make([]primitive.ObjectID, 0, len(tasks)*2)
	for _, t := range tasks {
		ids = append(ids, t.Creator)
		if t.AssignedTo != nil {
			ids = append(ids, *t.AssignedTo)
		}
	}
	users, err := s.store.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[primitive.ObjectID]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	now := s.now()
	out := make([]models.TaskView, 0, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		v := models.TaskView{
			ID:               t.ID,
			Title:            t.Title,
			Description:      t.Description,
			DueDate:          t.DueDate,
			Priority:         t.Priority,
			Status:           t.Status,
			Creator:          byID[t.Creator].Ref(),
			CompletedAt:      t.CompletedAt,
			Tags:             t.Tags,
			IsRecurring:      t.IsRecurring,
			RecurringPattern: t.RecurringPattern,
			IsOverdue:        t.IsOverdue(now),
			CreatedAt:        t.CreatedAt,
			UpdatedAt:        t.UpdatedAt,
		}
		if t.AssignedTo != nil {
			v.AssignedTo = byID[*t.AssignedTo].Ref()
		}
		out = append(out, v)
	}
	return out, nil
}

func applyPatch(t *models.Task, p TaskPatch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	if p.IsRecurring != nil {
		t.IsRecurring = *p.IsRecurring
	}
	if p.RecurringPattern != nil {
		t.RecurringPattern = *p.RecurringPattern
	}
}

// normalizeTask trims and deduplicates in place and validates field limits.
func normalizeTask(t *models.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return newError(ErrInvalidInput, "Please provide a title")
	}
	if utf8.RuneCountInString(t.Title) > maxTitleLength {
		return newError(ErrInvalidInput, "Title cannot be more than %d characters", maxTitleLength)
	}
	if strings.TrimSpace(t.Description) == "" {
		return newError(ErrInvalidInput, "Please provide a description")
	}
	if utf8.RuneCountInString(t.Description) > maxDescriptionLength {
		return newError(ErrInvalidInput, "Description cannot be more than %d characters", maxDescriptionLength)
	}
	if t.DueDate.IsZero() {
		return newError(ErrInvalidInput, "Please provide a due date")
	}
	if !t.Priority.Valid() {
		return newError(ErrInvalidInput, "Invalid priority %q", t.Priority)
	}
	if !t.Status.Valid() {
		return newError(ErrInvalidInput, "Invalid status %q", t.Status)
	}
	if !t.RecurringPattern.Valid() {
		return newError(ErrInvalidInput, "Invalid recurring pattern %q", t.RecurringPattern)
	}
	t.Tags = normalizeTags(t.Tags)
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func parseID(hex, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(hex))
	if err != nil {
		return primitive.NilObjectID, newError(ErrInvalidInput, "Invalid %s id %q", what, hex)
	}
	return id, nil
}

func sameID(a, b *primitive.ObjectID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ignoreNotFound tolerates back-references to users that no longer resolve.
func ignoreNotFound(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	return err
}
