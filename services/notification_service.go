package services

import (
	"context"
	"errors"
	"sort"

	"team-tasks/backend/models"
	"team-tasks/backend/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationService struct {
	users repositories.UserRepository
}

func NewNotificationService(users repositories.UserRepository) *NotificationService {
	return &NotificationService{users: users}
}

// List returns the user's notifications newest first.
func (s *NotificationService) List(ctx context.Context, user *models.User) ([]models.Notification, error) {
	fresh, err := s.users.FindUserByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrUnauthenticated, "User not found")
		}
		return nil, err
	}
	out := append([]models.Notification{}, fresh.Notifications...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MarkRead flips the read flag on the listed notifications owned by user.
// Unknown or malformed ids are skipped. A nil list is rejected.
func (s *NotificationService) MarkRead(ctx context.Context, user *models.User, ids []string) (int64, error) {
	if ids == nil {
		return 0, newError(ErrInvalidInput, "Please provide notification IDs to mark as read")
	}
	parsed := make([]primitive.ObjectID, 0, len(ids))
	for _, raw := range ids {
		if id, err := primitive.ObjectIDFromHex(raw); err == nil {
			parsed = append(parsed, id)
		}
	}
	if len(parsed) == 0 {
		return 0, nil
	}
	return s.users.MarkNotificationsRead(ctx, user.ID, parsed)
}
