package repositories

import (
	"context"
	"fmt"

	"team-tasks/backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.Tasks == nil {
		user.Tasks = []primitive.ObjectID{}
	}
	if user.AssignedTasks == nil {
		user.AssignedTasks = []primitive.ObjectID{}
	}
	if user.Notifications == nil {
		user.Notifications = []models.Notification{}
	}
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("failed to insert user: %w", translateError(err))
	}
	return nil
}

func (s *MongoStore) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

func (s *MongoStore) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	return decodeAll[models.User](ctx, cursor)
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return decodeAll[models.User](ctx, cursor)
}

func (s *MongoStore) updateUser(ctx context.Context, userID primitive.ObjectID, update bson.M) error {
	if set, ok := update["$set"].(bson.M); ok {
		set["updatedAt"] = now()
	} else {
		update["$set"] = bson.M{"updatedAt": now()}
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", userID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetUserTeam(ctx context.Context, userID primitive.ObjectID, teamID *primitive.ObjectID) error {
	if teamID == nil {
		return s.updateUser(ctx, userID, bson.M{"$unset": bson.M{"team": ""}})
	}
	return s.updateUser(ctx, userID, bson.M{"$set": bson.M{"team": *teamID}})
}

func (s *MongoStore) ClearUserTeamIf(ctx context.Context, userID, teamID primitive.ObjectID) (bool, error) {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID, "team": teamID}, bson.M{
		"$unset": bson.M{"team": ""},
		"$set":   bson.M{"updatedAt": now()},
	})
	if err != nil {
		return false, fmt.Errorf("failed to clear team of user %s: %w", userID.Hex(), err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) SetUserRole(ctx context.Context, userID primitive.ObjectID, role models.Role) error {
	return s.updateUser(ctx, userID, bson.M{"$set": bson.M{"role": role}})
}

func (s *MongoStore) PushCreatedTask(ctx context.Context, userID, taskID primitive.ObjectID) error {
	return s.updateUser(ctx, userID, bson.M{"$push": bson.M{"tasks": taskID}})
}

func (s *MongoStore) PullCreatedTask(ctx context.Context, userID, taskID primitive.ObjectID) error {
	return s.updateUser(ctx, userID, bson.M{"$pull": bson.M{"tasks": taskID}})
}

func (s *MongoStore) PushAssignedTask(ctx context.Context, userID, taskID primitive.ObjectID, n models.Notification) error {
	return s.updateUser(ctx, userID, bson.M{"$push": bson.M{
		"assignedTasks": taskID,
		"notifications": n,
	}})
}

func (s *MongoStore) PullAssignedTask(ctx context.Context, userID, taskID primitive.ObjectID) error {
	return s.updateUser(ctx, userID, bson.M{"$pull": bson.M{"assignedTasks": taskID}})
}

// MarkNotificationsRead flips the read flag on the user's unread notifications
// whose ids are listed and returns how many were flipped.
func (s *MongoStore) MarkNotificationsRead(ctx context.Context, userID primitive.ObjectID, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	user, err := s.FindUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	wanted := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var count int64
	for _, n := range user.Notifications {
		if _, ok := wanted[n.ID]; ok && !n.Read {
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}

	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"n._id": bson.M{"$in": ids}, "n.read": false}},
	})
	_, err = s.users.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$set": bson.M{"notifications.$[n].read": true}}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return count, nil
}
