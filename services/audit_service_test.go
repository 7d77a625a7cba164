package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"team-tasks/backend/models"
	"team-tasks/backend/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// replayTx runs the callback once more after it succeeds, the way the Mongo
// driver re-runs it on a transient transaction error.
type replayTx struct{ runs int }

func (tx *replayTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	for i := 0; i < 2; i++ {
		tx.runs++
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// upsertAudit keys rows by id like the Cassandra table does.
type upsertAudit struct {
	rows    map[primitive.ObjectID]models.AuditLog
	batches int
	fail    error
}

func newUpsertAudit() *upsertAudit {
	return &upsertAudit{rows: make(map[primitive.ObjectID]models.AuditLog)}
}

func (a *upsertAudit) AppendAudit(_ context.Context, entry *models.AuditLog) error {
	a.rows[entry.ID] = *entry
	return nil
}

func (a *upsertAudit) AppendAuditBatch(_ context.Context, entries []*models.AuditLog) error {
	if a.fail != nil {
		return a.fail
	}
	a.batches++
	for _, e := range entries {
		a.rows[e.ID] = *e
	}
	return nil
}

func (a *upsertAudit) ListAudit(context.Context, models.AuditQuery) ([]models.AuditLog, error) {
	out := make([]models.AuditLog, 0, len(a.rows))
	for _, e := range a.rows {
		out = append(out, e)
	}
	return out, nil
}

func TestAuditTransaction_ReplayRewritesSameRows(t *testing.T) {
	ctx := context.Background()
	repo := newUpsertAudit()
	svc := NewAuditService(repo)
	tick := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	actor, task := primitive.NewObjectID(), primitive.NewObjectID()

	var seen [][]models.AuditLog
	tx := &replayTx{}
	err := svc.Transaction(ctx, tx, func(ctx context.Context, rec *AuditBatch) error {
		require.NoError(t, rec.Add(ctx, actor, models.ActionTaskCreated, nil, &task))
		require.NoError(t, rec.Add(ctx, actor, models.ActionTaskCompleted, nil, &task))
		var attempt []models.AuditLog
		for _, e := range rec.Pending() {
			attempt = append(attempt, *e)
		}
		seen = append(seen, attempt)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, tx.runs)
	assert.Equal(t, 2, repo.batches)
	require.Len(t, seen, 2)
	for i := range seen[0] {
		assert.Equal(t, seen[0][i].ID, seen[1][i].ID)
		assert.Equal(t, seen[0][i].CreatedAt, seen[1][i].CreatedAt)
	}
	assert.Len(t, repo.rows, 2, "a replayed callback leaves one row per entry")
}

func TestAuditTransaction_FailedWorkWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := newUpsertAudit()
	svc := NewAuditService(repo)
	actor := primitive.NewObjectID()

	err := svc.Transaction(ctx, memory.NewStore(), func(ctx context.Context, rec *AuditBatch) error {
		require.NoError(t, rec.Add(ctx, actor, models.ActionTeamJoin, nil, nil))
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Empty(t, repo.rows)
	assert.Zero(t, repo.batches)
}

func TestAuditTransaction_BatchFailureAbortsWork(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := newUpsertAudit()
	repo.fail = errors.New("unavailable")
	svc := NewAuditService(repo)
	team := &models.Team{Name: "one", TeamCode: "ONE"}

	err := svc.Transaction(ctx, store, func(ctx context.Context, rec *AuditBatch) error {
		if err := store.CreateTeam(ctx, team); err != nil {
			return err
		}
		return rec.Add(ctx, primitive.NewObjectID(), models.ActionTeamCreate, nil, nil)
	})
	assert.ErrorContains(t, err, "failed to write 1 audit entries")
	_, err = store.FindTeamByCode(ctx, "ONE")
	assert.Error(t, err)
}

func TestAuditTransaction_UnknownActionRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.audit.Transaction(ctx, env.store, func(ctx context.Context, rec *AuditBatch) error {
		return rec.Add(ctx, primitive.NewObjectID(), "bogus", nil, nil)
	})
	assert.ErrorContains(t, err, "unknown audit action")

	entries, err := env.store.ListAudit(ctx, models.AuditQuery{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
