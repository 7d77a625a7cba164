package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"team-tasks/backend/logging"
	"team-tasks/backend/models"
	"team-tasks/backend/repositories"
	"team-tasks/backend/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	maxUserNameLength     = 60
	minUserPasswordLength = 8
)

var emailRegex = regexp.MustCompile(`^[^\s@<>()\[\]\\,;:"]+@([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}$`)

type UserService struct {
	store    repositories.Store
	audit    *AuditService
	hasher   *utils.PasswordHasher
	tokens   *utils.TokenIssuer
	denylist repositories.SessionDenylist
	now      func() time.Time
}

// NewUserService wires the account operations. denylist may be nil, in which
// case logout only clears the client cookie.
func NewUserService(store repositories.Store, audit *AuditService, hasher *utils.PasswordHasher, tokens *utils.TokenIssuer, denylist repositories.SessionDenylist) *UserService {
	return &UserService{
		store:    store,
		audit:    audit,
		hasher:   hasher,
		tokens:   tokens,
		denylist: denylist,
		now:      time.Now,
	}
}

// Session is the signed token handed to the client plus its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

type UserSummary struct {
	ID     primitive.ObjectID `json:"_id"`
	Name   string             `json:"name"`
	Email  string             `json:"email"`
	Role   models.Role        `json:"role"`
	Avatar string             `json:"avatar"`
}

type AdminUserView struct {
	ID        primitive.ObjectID  `json:"_id"`
	Name      string              `json:"name"`
	Email     string              `json:"email"`
	Role      models.Role         `json:"role"`
	Team      *primitive.ObjectID `json:"team"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, *Session, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, nil, newError(ErrInvalidInput, "Please provide all required fields")
	}
	if utf8.RuneCountInString(name) > maxUserNameLength {
		return nil, nil, newError(ErrInvalidInput, "Name cannot be more than %d characters", maxUserNameLength)
	}
	if !emailRegex.MatchString(email) {
		return nil, nil, newError(ErrInvalidInput, "Please provide a valid email")
	}
	if len(password) < minUserPasswordLength {
		return nil, nil, newError(ErrInvalidInput, "Password must be at least %d characters", minUserPasswordLength)
	}

	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return nil, nil, newError(ErrConflict, "User with this email already exists")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, err
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return nil, nil, newError(ErrInvalidInput, "Password must be at most 72 characters")
		}
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &models.User{
		ID:            primitive.NewObjectID(),
		Name:          name,
		Email:         email,
		Password:      hashed,
		Role:          models.RoleUser,
		Tasks:         []primitive.ObjectID{},
		AssignedTasks: []primitive.ObjectID{},
		Notifications: []models.Notification{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.audit.Transaction(ctx, s.store, func(ctx context.Context, rec *AuditBatch) error {
		if err := s.store.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return newError(ErrConflict, "User with this email already exists")
			}
			return err
		}
		return rec.Add(ctx, user.ID, models.ActionUserRegistered, map[string]interface{}{
			"userId": user.ID,
			"name":   user.Name,
			"email":  user.Email,
		}, nil)
	})
	if err != nil {
		return nil, nil, err
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}
	logging.Logger.Infof("Event ID: USER_REGISTERED, Description: User %s registered", user.ID.Hex())
	return user, session, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, *Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, nil, newError(ErrInvalidInput, "Please provide email and password")
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, newError(ErrUnauthenticated, "Invalid credentials")
		}
		return nil, nil, err
	}
	if !s.hasher.Compare(user.Password, password) {
		logging.Logger.Warnf("Event ID: LOGIN_FAILED, Description: Wrong password for user %s", user.ID.Hex())
		return nil, nil, newError(ErrUnauthenticated, "Invalid credentials")
	}

	err = s.audit.Append(ctx, user.ID, models.ActionUserLogin, map[string]interface{}{
		"userId": user.ID,
		"email":  user.Email,
	}, nil)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}
	logging.Logger.Infof("Event ID: USER_LOGIN, Description: User %s logged in", user.ID.Hex())
	return user, session, nil
}

func (s *UserService) issue(user *models.User) (*Session, error) {
	token, claims, err := s.tokens.GenerateToken(user.ID.Hex())
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Authenticate resolves a session token to the user it was issued for.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, *utils.Claims, error) {
	if token == "" {
		return nil, nil, newError(ErrUnauthenticated, "Authentication required")
	}
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, nil, newError(ErrUnauthenticated, "Session expired")
		}
		return nil, nil, newError(ErrUnauthenticated, "Invalid session")
	}
	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, nil, err
		}
		if revoked {
			return nil, nil, newError(ErrUnauthenticated, "Session has been revoked")
		}
	}

	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, nil, newError(ErrUnauthenticated, "Invalid session")
	}
	user, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, newError(ErrUnauthenticated, "User not found")
		}
		return nil, nil, err
	}
	return user, claims, nil
}

// Logout revokes the session token when a denylist is configured.
func (s *UserService) Logout(ctx context.Context, claims *utils.Claims) error {
	if s.denylist == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}
	logging.Logger.Infof("Event ID: SESSION_REVOKED, Description: Session %s for user %s revoked", claims.ID, claims.UserID)
	return nil
}

func (s *UserService) Me(ctx context.Context, user *models.User) (*models.User, error) {
	fresh, err := s.store.FindUserByID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrUnauthenticated, "User not found")
		}
		return nil, err
	}
	return fresh, nil
}

// ListUsers returns the public directory, sorted by name.
func (s *UserService) ListUsers(ctx context.Context) ([]UserSummary, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Avatar: u.Avatar})
	}
	return out, nil
}

// ListUsersForAdmin returns every user with team and timestamps, newest first.
func (s *UserService) ListUsersForAdmin(ctx context.Context, actor *models.User) ([]AdminUserView, error) {
	if !isAdmin(actor) {
		return nil, newError(ErrForbidden, "Admin access required")
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	out := make([]AdminUserView, 0, len(users))
	for _, u := range users {
		out = append(out, AdminUserView{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Role:      u.Role,
			Team:      u.Team,
			CreatedAt: u.CreatedAt,
			UpdatedAt: u.UpdatedAt,
		})
	}
	return out, nil
}

// Promote grants the admin role. It is reachable from the command line only.
func (s *UserService) Promote(ctx context.Context, email string) (*models.User, error) {
	user, err := s.store.FindUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrNotFound, "User not found")
		}
		return nil, err
	}
	if user.IsAdmin() {
		return user, nil
	}
	if err := s.store.SetUserRole(ctx, user.ID, models.RoleAdmin); err != nil {
		return nil, err
	}
	user.Role = models.RoleAdmin
	logging.Logger.Infof("Event ID: USER_PROMOTED, Description: User %s promoted to admin", user.ID.Hex())
	return user, nil
}
