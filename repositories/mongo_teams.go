package repositories

import (
	"context"
	"fmt"

	"team-tasks/backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) CreateTeam(ctx context.Context, team *models.Team) error {
	if team.ID.IsZero() {
		team.ID = primitive.NewObjectID()
	}
	if team.Members == nil {
		team.Members = []primitive.ObjectID{}
	}
	if _, err := s.teams.InsertOne(ctx, team); err != nil {
		return fmt.Errorf("failed to insert team: %w", translateError(err))
	}
	return nil
}

func (s *MongoStore) FindTeamByID(ctx context.Context, id primitive.ObjectID) (*models.Team, error) {
	var team models.Team
	if err := s.teams.FindOne(ctx, bson.M{"_id": id}).Decode(&team); err != nil {
		return nil, translateError(err)
	}
	return &team, nil
}

func (s *MongoStore) FindTeamByCode(ctx context.Context, code string) (*models.Team, error) {
	var team models.Team
	if err := s.teams.FindOne(ctx, bson.M{"teamCode": code}).Decode(&team); err != nil {
		return nil, translateError(err)
	}
	return &team, nil
}

func (s *MongoStore) ListTeams(ctx context.Context) ([]models.Team, error) {
	cursor, err := s.teams.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return decodeAll[models.Team](ctx, cursor)
}

func (s *MongoStore) AddTeamMember(ctx context.Context, teamID, userID primitive.ObjectID) error {
	res, err := s.teams.UpdateOne(ctx, bson.M{"_id": teamID}, bson.M{
		"$addToSet": bson.M{"members": userID},
		"$set":      bson.M{"updatedAt": now()},
	})
	if err != nil {
		return fmt.Errorf("failed to add member to team %s: %w", teamID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) PullMemberFromTeams(ctx context.Context, userID primitive.ObjectID, except *primitive.ObjectID) (int64, error) {
	filter := bson.M{"members": userID}
	if except != nil {
		filter["_id"] = bson.M{"$ne": *except}
	}
	res, err := s.teams.UpdateMany(ctx, filter, bson.M{
		"$pull": bson.M{"members": userID},
		"$set":  bson.M{"updatedAt": now()},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to remove user %s from teams: %w", userID.Hex(), err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) ReplaceTeamMembersIf(ctx context.Context, teamID primitive.ObjectID, expected, members []primitive.ObjectID) (bool, error) {
	if expected == nil {
		expected = []primitive.ObjectID{}
	}
	if members == nil {
		members = []primitive.ObjectID{}
	}
	// An array equality match compares the whole list, order included.
	res, err := s.teams.UpdateOne(ctx, bson.M{"_id": teamID, "members": expected}, bson.M{
		"$set": bson.M{"members": members, "updatedAt": now()},
	})
	if err != nil {
		return false, fmt.Errorf("failed to set members of team %s: %w", teamID.Hex(), err)
	}
	return res.MatchedCount > 0, nil
}
