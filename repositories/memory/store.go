// Package memory is an in-process implementation of the domain store used in
// development mode and by the service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"team-tasks/backend/models"
	"team-tasks/backend/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type txKey struct{}

// Store keeps every document in maps guarded by a mutex. Transactions are
// serialized and roll back to a snapshot when the callback fails.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users map[primitive.ObjectID]*models.User
	teams map[primitive.ObjectID]*models.Team
	tasks map[primitive.ObjectID]*models.Task
	audit []models.AuditLog

	transactional bool
	faults        map[string]error
	now           func() time.Time
}

type Option func(*Store)

// WithoutTransactions makes WithTransaction run the callback directly so a
// failing step leaves the earlier writes in place.
func WithoutTransactions() Option {
	return func(s *Store) { s.transactional = false }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		users:         make(map[primitive.ObjectID]*models.User),
		teams:         make(map[primitive.ObjectID]*models.Team),
		tasks:         make(map[primitive.ObjectID]*models.Task),
		transactional: true,
		faults:        make(map[string]error),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailOn makes the next call of the named store method return err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactional || inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// write runs fn under the write lock. Writes made outside a transaction still
// wait for running transactions so a rollback cannot discard them.
func (s *Store) write(ctx context.Context, op string, fn func() error) error {
	if s.transactional && !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return fn()
}

func (s *Store) read(op string, fn func() error) error {
	s.mu.Lock()
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

type snapshot struct {
	users map[primitive.ObjectID]*models.User
	teams map[primitive.ObjectID]*models.Team
	tasks map[primitive.ObjectID]*models.Task
	audit []models.AuditLog
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		users: make(map[primitive.ObjectID]*models.User, len(s.users)),
		teams: make(map[primitive.ObjectID]*models.Team, len(s.teams)),
		tasks: make(map[primitive.ObjectID]*models.Task, len(s.tasks)),
		audit: append([]models.AuditLog(nil), s.audit...),
	}
	for id, u := range s.users {
		snap.users[id] = cloneUser(u)
	}
	for id, t := range s.teams {
		snap.teams[id] = cloneTeam(t)
	}
	for id, t := range s.tasks {
		snap.tasks[id] = cloneTask(t)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.teams = snap.teams
	s.tasks = snap.tasks
	s.audit = snap.audit
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.write(ctx, "CreateUser", func() error {
		for _, u := range s.users {
			if u.Email == user.Email {
				return repositories.ErrDuplicateKey
			}
		}
		if user.ID.IsZero() {
			user.ID = primitive.NewObjectID()
		}
		s.users[user.ID] = cloneUser(user)
		return nil
	})
}

func (s *Store) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var out *models.User
	err := s.read("FindUserByID", func() error {
		u, ok := s.users[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = cloneUser(u)
		return nil
	})
	return out, err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var out *models.User
	err := s.read("FindUserByEmail", func() error {
		for _, u := range s.users {
			if u.Email == email {
				out = cloneUser(u)
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return out, err
}

func (s *Store) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	out := []models.User{}
	err := s.read("FindUsersByIDs", func() error {
		seen := make(map[primitive.ObjectID]bool, len(ids))
		for _, id := range ids {
			if u, ok := s.users[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, *cloneUser(u))
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	out := []models.User{}
	err := s.read("ListUsers", func() error {
		for _, u := range s.users {
			out = append(out, *cloneUser(u))
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (s *Store) updateUser(ctx context.Context, op string, id primitive.ObjectID, fn func(u *models.User)) error {
	return s.write(ctx, op, func() error {
		u, ok := s.users[id]
		if !ok {
			return repositories.ErrNotFound
		}
		fn(u)
		u.UpdatedAt = s.now()
		return nil
	})
}

func (s *Store) SetUserTeam(ctx context.Context, userID primitive.ObjectID, teamID *primitive.ObjectID) error {
	return s.updateUser(ctx, "SetUserTeam", userID, func(u *models.User) {
		u.Team = cloneID(teamID)
	})
}

func (s *Store) ClearUserTeamIf(ctx context.Context, userID, teamID primitive.ObjectID) (bool, error) {
	changed := false
	err := s.write(ctx, "ClearUserTeamIf", func() error {
		u, ok := s.users[userID]
		if !ok || u.Team == nil || *u.Team != teamID {
			return nil
		}
		u.Team = nil
		u.UpdatedAt = s.now()
		changed = true
		return nil
	})
	return changed, err
}

func (s *Store) SetUserRole(ctx context.Context, userID primitive.ObjectID, role models.Role) error {
	return s.updateUser(ctx, "SetUserRole", userID, func(u *models.User) {
		u.Role = role
	})
}

func (s *Store) PushCreatedTask(ctx context.Context, userID, taskID primitive.ObjectID) error {
	return s.updateUser(ctx, "PushCreatedTask", userID, func(u *models.User) {
		u.Tasks = append(u.Tasks, taskID)
	})
}

func (s *Store) PullCreatedTask(ctx context.Context, userID, taskID primitive.ObjectID) error {
	return s.updateUser(ctx, "PullCreatedTask", userID, func(u *models.User) {
		u.Tasks = without(u.Tasks, taskID)
	})
}

func (s *Store) PushAssignedTask(ctx context.Context, userID, taskID primitive.ObjectID, n models.Notification) error {
	return s.updateUser(ctx, "PushAssignedTask", userID, func(u *models.User) {
		u.AssignedTasks = append(u.AssignedTasks, taskID)
		u.Notifications = append(u.Notifications, cloneNotification(n))
	})
}

func (s *Store) PullAssignedTask(ctx context.Context, userID, taskID primitive.ObjectID) error {
	return s.updateUser(ctx, "PullAssignedTask", userID, func(u *models.User) {
		u.AssignedTasks = without(u.AssignedTasks, taskID)
	})
}

func (s *Store) MarkNotificationsRead(ctx context.Context, userID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	wanted := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var count int64
	err := s.updateUser(ctx, "MarkNotificationsRead", userID, func(u *models.User) {
		for i := range u.Notifications {
			if wanted[u.Notifications[i].ID] && !u.Notifications[i].Read {
				u.Notifications[i].Read = true
				count++
			}
		}
	})
	return count, err
}

// Teams

func (s *Store) CreateTeam(ctx context.Context, team *models.Team) error {
	return s.write(ctx, "CreateTeam", func() error {
		for _, t := range s.teams {
			if t.TeamCode == team.TeamCode {
				return repositories.ErrDuplicateKey
			}
		}
		if team.ID.IsZero() {
			team.ID = primitive.NewObjectID()
		}
		s.teams[team.ID] = cloneTeam(team)
		return nil
	})
}

func (s *Store) FindTeamByID(ctx context.Context, id primitive.ObjectID) (*models.Team, error) {
	var out *models.Team
	err := s.read("FindTeamByID", func() error {
		t, ok := s.teams[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = cloneTeam(t)
		return nil
	})
	return out, err
}

func (s *Store) FindTeamByCode(ctx context.Context, code string) (*models.Team, error) {
	var out *models.Team
	err := s.read("FindTeamByCode", func() error {
		for _, t := range s.teams {
			if t.TeamCode == code {
				out = cloneTeam(t)
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return out, err
}

func (s *Store) ListTeams(ctx context.Context) ([]models.Team, error) {
	out := []models.Team{}
	err := s.read("ListTeams", func() error {
		for _, t := range s.teams {
			out = append(out, *cloneTeam(t))
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (s *Store) AddTeamMember(ctx context.Context, teamID, userID primitive.ObjectID) error {
	return s.write(ctx, "AddTeamMember", func() error {
		t, ok := s.teams[teamID]
		if !ok {
			return repositories.ErrNotFound
		}
		if !t.HasMember(userID) {
			t.Members = append(t.Members, userID)
		}
		t.UpdatedAt = s.now()
		return nil
	})
}

func (s *Store) PullMemberFromTeams(ctx context.Context, userID primitive.ObjectID, except *primitive.ObjectID) (int64, error) {
	var modified int64
	err := s.write(ctx, "PullMemberFromTeams", func() error {
		for id, t := range s.teams {
			if except != nil && id == *except {
				continue
			}
			if t.HasMember(userID) {
				t.Members = without(t.Members, userID)
				t.UpdatedAt = s.now()
				modified++
			}
		}
		return nil
	})
	return modified, err
}

func (s *Store) ReplaceTeamMembersIf(ctx context.Context, teamID primitive.ObjectID, expected, members []primitive.ObjectID) (bool, error) {
	changed := false
	err := s.write(ctx, "ReplaceTeamMembersIf", func() error {
		t, ok := s.teams[teamID]
		if !ok || !sameIDs(t.Members, expected) {
			return nil
		}
		t.Members = append([]primitive.ObjectID{}, members...)
		t.UpdatedAt = s.now()
		changed = true
		return nil
	})
	return changed, err
}

// SetTeamMembers overwrites the member list unconditionally. Tests use it to
// seed inconsistent state.
func (s *Store) SetTeamMembers(ctx context.Context, teamID primitive.ObjectID, members []primitive.ObjectID) error {
	return s.write(ctx, "SetTeamMembers", func() error {
		t, ok := s.teams[teamID]
		if !ok {
			return repositories.ErrNotFound
		}
		t.Members = append([]primitive.ObjectID{}, members...)
		t.UpdatedAt = s.now()
		return nil
	})
}

// Tasks

func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	return s.write(ctx, "CreateTask", func() error {
		if task.ID.IsZero() {
			task.ID = primitive.NewObjectID()
		}
		s.tasks[task.ID] = cloneTask(task)
		return nil
	})
}

func (s *Store) FindTaskByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	var out *models.Task
	err := s.read("FindTaskByID", func() error {
		t, ok := s.tasks[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = cloneTask(t)
		return nil
	})
	return out, err
}

func (s *Store) ReplaceTask(ctx context.Context, task *models.Task) error {
	return s.write(ctx, "ReplaceTask", func() error {
		if _, ok := s.tasks[task.ID]; !ok {
			return repositories.ErrNotFound
		}
		s.tasks[task.ID] = cloneTask(task)
		return nil
	})
}

func (s *Store) DeleteTask(ctx context.Context, id primitive.ObjectID) error {
	return s.write(ctx, "DeleteTask", func() error {
		if _, ok := s.tasks[id]; !ok {
			return repositories.ErrNotFound
		}
		delete(s.tasks, id)
		return nil
	})
}

func (s *Store) ListTasks(ctx context.Context, q models.TaskQuery) ([]models.Task, int64, error) {
	var matched []models.Task
	err := s.read("ListTasks", func() error {
		for _, t := range s.tasks {
			if matchTask(t, q) {
				matched = append(matched, *cloneTask(t))
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.Hex() > matched[j].ID.Hex()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := q.Skip
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page := append([]models.Task{}, matched[start:end]...)
	return page, total, nil
}

func matchTask(t *models.Task, q models.TaskQuery) bool {
	if q.Search != "" && !matchSearch(t, strings.ToLower(q.Search)) {
		return false
	}
	if q.Status != "" && t.Status != q.Status {
		return false
	}
	if q.ExcludeCompleted && t.Status == models.StatusCompleted {
		return false
	}
	if q.Priority != "" && t.Priority != q.Priority {
		return false
	}
	if q.DueFrom != nil && t.DueDate.Before(*q.DueFrom) {
		return false
	}
	if q.DueBefore != nil && !t.DueDate.Before(*q.DueBefore) {
		return false
	}
	if q.Unassigned && t.AssignedTo != nil {
		return false
	}
	if q.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *q.AssignedTo) {
		return false
	}
	if q.Creator != nil && t.Creator != *q.Creator {
		return false
	}
	return true
}

func matchSearch(t *models.Task, needle string) bool {
	if strings.Contains(strings.ToLower(t.Title), needle) ||
		strings.Contains(strings.ToLower(t.Description), needle) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// Audit

func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	return s.write(ctx, "AppendAudit", func() error {
		if entry.ID.IsZero() {
			entry.ID = primitive.NewObjectID()
		}
		e := *entry
		e.Details = cloneDetails(entry.Details)
		s.audit = append(s.audit, e)
		return nil
	})
}

func (s *Store) ListAudit(ctx context.Context, q models.AuditQuery) ([]models.AuditLog, error) {
	out := []models.AuditLog{}
	err := s.read("ListAudit", func() error {
		for i := len(s.audit) - 1; i >= 0; i-- {
			e := s.audit[i]
			if q.User != nil && e.User != *q.User {
				continue
			}
			if q.TaskID != nil && (e.TaskID == nil || *e.TaskID != *q.TaskID) {
				continue
			}
			if q.Action != "" && e.Action != q.Action {
				continue
			}
			e.Details = cloneDetails(e.Details)
			out = append(out, e)
			if q.Limit > 0 && int64(len(out)) >= q.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

var (
	_ repositories.Store           = (*Store)(nil)
	_ repositories.AuditRepository = (*Store)(nil)
)
