package repositories

import (
	"context"
	"fmt"
	"regexp"

	"team-tasks/backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func (s *MongoStore) CreateTask(ctx context.Context, task *models.Task) error {
	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}
	if _, err := s.tasks.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("failed to insert task: %w", translateError(err))
	}
	return nil
}

func (s *MongoStore) FindTaskByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	if err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&task); err != nil {
		return nil, translateError(err)
	}
	return &task, nil
}

func (s *MongoStore) ReplaceTask(ctx context.Context, task *models.Task) error {
	if task.Tags == nil {
		task.Tags = []string{}
	}
	res, err := s.tasks.ReplaceOne(ctx, bson.M{"_id": task.ID}, task)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteTask(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns one page of matching tasks, newest first, and the total
// number of matches. Count and page are fetched concurrently.
func (s *MongoStore) ListTasks(ctx context.Context, q models.TaskQuery) ([]models.Task, int64, error) {
	filter := BuildTaskFilter(q)

	var (
		tasks []models.Task
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.tasks.CountDocuments(gctx, filter)
		if err != nil {
			return fmt.Errorf("failed to count tasks: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
		if q.Skip > 0 {
			opts.SetSkip(q.Skip)
		}
		if q.Limit > 0 {
			opts.SetLimit(q.Limit)
		}
		cursor, err := s.tasks.Find(gctx, filter, opts)
		if err != nil {
			return fmt.Errorf("failed to find tasks: %w", err)
		}
		page, err := decodeAll[models.Task](gctx, cursor)
		if err != nil {
			return err
		}
		tasks = page
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// BuildTaskFilter translates a TaskQuery into a MongoDB filter document.
// Search text is matched literally and case-insensitively.
func BuildTaskFilter(q models.TaskQuery) bson.M {
	filter := bson.M{}

	if q.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
		}
	}

	switch {
	case q.Status != "" && q.ExcludeCompleted:
		filter["$and"] = bson.A{
			bson.M{"status": q.Status},
			bson.M{"status": bson.M{"$ne": models.StatusCompleted}},
		}
	case q.Status != "":
		filter["status"] = q.Status
	case q.ExcludeCompleted:
		filter["status"] = bson.M{"$ne": models.StatusCompleted}
	}

	if q.Priority != "" {
		filter["priority"] = q.Priority
	}

	due := bson.M{}
	if q.DueFrom != nil {
		due["$gte"] = *q.DueFrom
	}
	if q.DueBefore != nil {
		due["$lt"] = *q.DueBefore
	}
	if len(due) > 0 {
		filter["dueDate"] = due
	}

	switch {
	case q.Unassigned:
		filter["assignedTo"] = nil
	case q.AssignedTo != nil:
		filter["assignedTo"] = *q.AssignedTo
	}

	if q.Creator != nil {
		filter["creator"] = *q.Creator
	}
	return filter
}
