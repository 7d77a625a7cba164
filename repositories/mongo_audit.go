package repositories

import (
	"context"
	"fmt"

	"team-tasks/backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultAuditLimit = 100

func (s *MongoStore) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}
	if _, err := s.audit.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (s *MongoStore) ListAudit(ctx context.Context, q models.AuditQuery) ([]models.AuditLog, error) {
	filter := bson.M{}
	if q.User != nil {
		filter["user"] = *q.User
	}
	if q.TaskID != nil {
		filter["taskId"] = *q.TaskID
	}
	if q.Action != "" {
		filter["action"] = q.Action
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cursor, err := s.audit.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return decodeAll[models.AuditLog](ctx, cursor)
}
