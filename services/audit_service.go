package services

import (
	"context"
	"fmt"
	"time"

	"team-tasks/backend/models"
	"team-tasks/backend/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxAuditLimit = 500

type AuditService struct {
	repo repositories.AuditRepository
	now  func() time.Time
}

func NewAuditService(repo repositories.AuditRepository) *AuditService {
	return &AuditService{repo: repo, now: time.Now}
}

// Append writes one entry outside any transaction.
func (s *AuditService) Append(ctx context.Context, actor primitive.ObjectID, action models.AuditAction, details map[string]interface{}, taskID *primitive.ObjectID) error {
	batch := &AuditBatch{svc: s}
	if err := batch.Add(ctx, actor, action, details, taskID); err != nil {
		return err
	}
	return batch.flush(ctx)
}

// Transaction runs fn inside a store transaction and writes the audit entries
// fn added as its last step, so no entry is written for work that failed. A
// failed audit write aborts the transaction.
func (s *AuditService) Transaction(ctx context.Context, tx repositories.Transactor, fn func(ctx context.Context, rec *AuditBatch) error) error {
	batch := &AuditBatch{svc: s}
	return tx.WithTransaction(ctx, func(ctx context.Context) error {
		batch.rewind()
		if err := fn(ctx, batch); err != nil {
			return err
		}
		return batch.flush(ctx)
	})
}

// AuditBatch collects the audit entries of one operation. The id and
// timestamp of the n-th entry are fixed the first time it is added, so when
// the store re-runs a transaction callback the same rows are written again
// rather than new ones.
type AuditBatch struct {
	svc     *AuditService
	entries []*models.AuditLog
	n       int
}

func (b *AuditBatch) Add(ctx context.Context, actor primitive.ObjectID, action models.AuditAction, details map[string]interface{}, taskID *primitive.ObjectID) error {
	if !action.Valid() {
		return fmt.Errorf("unknown audit action %q", action)
	}
	if b.n == len(b.entries) {
		b.entries = append(b.entries, &models.AuditLog{
			ID:        primitive.NewObjectID(),
			CreatedAt: b.svc.now(),
		})
	}
	meta := requestMetaFrom(ctx)
	entry := b.entries[b.n]
	entry.User = actor
	entry.Action = action
	entry.Details = details
	entry.TaskID = taskID
	entry.IPAddress = meta.ip
	entry.UserAgent = meta.userAgent
	b.n++
	return nil
}

// Pending returns the entries added since the batch was last rewound.
func (b *AuditBatch) Pending() []*models.AuditLog {
	return b.entries[:b.n]
}

func (b *AuditBatch) rewind() {
	b.n = 0
}

func (b *AuditBatch) flush(ctx context.Context) error {
	pending := b.Pending()
	if len(pending) == 0 {
		return nil
	}
	if w, ok := b.svc.repo.(repositories.AuditBatchWriter); ok {
		if err := w.AppendAuditBatch(ctx, pending); err != nil {
			return fmt.Errorf("failed to write %d audit entries: %w", len(pending), err)
		}
		return nil
	}
	for _, entry := range pending {
		if err := b.svc.repo.AppendAudit(ctx, entry); err != nil {
			return fmt.Errorf("failed to write %s audit entry: %w", entry.Action, err)
		}
	}
	return nil
}

func (s *AuditService) List(ctx context.Context, actor *models.User, q models.AuditQuery) ([]models.AuditLog, error) {
	if !isAdmin(actor) {
		return nil, newError(ErrForbidden, "Admin access required")
	}
	if q.Action != "" && !q.Action.Valid() {
		return nil, newError(ErrInvalidInput, "Unknown audit action %q", q.Action)
	}
	if q.Limit > maxAuditLimit {
		q.Limit = maxAuditLimit
	}
	return s.repo.ListAudit(ctx, q)
}
