package services

import (
	"context"
	"errors"
	"fmt"
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
	maxTeamNameLength        = 60
	maxTeamDescriptionLength = 200
	minTeamPasswordLength    = 6
)

// MembershipService moves users into, out of and between teams. Every
// operation keeps User.team and Team.members in agreement by running its
// writes in one store transaction.
type MembershipService struct {
	store  repositories.Store
	audit  *AuditService
	hasher *utils.PasswordHasher
	now    func() time.Time
}

func NewMembershipService(store repositories.Store, audit *AuditService, hasher *utils.PasswordHasher) *MembershipService {
	return &MembershipService{store: store, audit: audit, hasher: hasher, now: time.Now}
}

type CreateTeamInput struct {
	Name        string
	Description string
	TeamCode    string
	Password    string
}

func (in *CreateTeamInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.TeamCode = strings.TrimSpace(in.TeamCode)

	if in.Name == "" || in.TeamCode == "" || in.Password == "" {
		return newError(ErrInvalidInput, "Please provide name, team code and password")
	}
	if utf8.RuneCountInString(in.Name) > maxTeamNameLength {
		return newError(ErrInvalidInput, "Team name cannot be more than %d characters", maxTeamNameLength)
	}
	if utf8.RuneCountInString(in.Description) > maxTeamDescriptionLength {
		return newError(ErrInvalidInput, "Description cannot be more than %d characters", maxTeamDescriptionLength)
	}
	if len(in.Password) < minTeamPasswordLength {
		return newError(ErrInvalidInput, "Password must be at least %d characters", minTeamPasswordLength)
	}
	return nil
}

// CreateTeam creates a team whose creator and sole member is actor. The actor
// leaves any team they were in before.
func (s *MembershipService) CreateTeam(ctx context.Context, actor *models.User, in CreateTeamInput) (*models.Team, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return nil, newError(ErrInvalidInput, "Password must be at most 72 characters")
		}
		return nil, fmt.Errorf("failed to hash team password: %w", err)
	}

	now := s.now()
	team := &models.Team{
		ID:          primitive.NewObjectID(),
		Name:        in.Name,
		Description: in.Description,
		TeamCode:    in.TeamCode,
		Password:    hashed,
		Creator:     actor.ID,
		Members:     []primitive.ObjectID{actor.ID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.audit.Transaction(ctx, s.store, func(ctx context.Context, rec *AuditBatch) error {
		if _, err := s.store.FindTeamByCode(ctx, team.TeamCode); err == nil {
			return newError(ErrConflict, "Team code already in use, please choose another")
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		if err := s.store.CreateTeam(ctx, team); err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return newError(ErrConflict, "Team code already in use, please choose another")
			}
			return err
		}
		if _, err := s.store.PullMemberFromTeams(ctx, actor.ID, &team.ID); err != nil {
			return err
		}
		if err := s.store.SetUserTeam(ctx, actor.ID, &team.ID); err != nil {
			return err
		}
		return rec.Add(ctx, actor.ID, models.ActionTeamCreate, map[string]interface{}{
			"teamId":   team.ID,
			"teamName": team.Name,
		}, nil)
	})
	if err != nil {
		return nil, err
	}

	actor.Team = &team.ID
	logging.Logger.Infof("Event ID: TEAM_CREATED, Description: User %s created team %s (%s)", actor.ID.Hex(), team.TeamCode, team.ID.Hex())
	return team, nil
}

// JoinTeam moves actor into the team identified by code. Joining the team the
// actor already belongs to succeeds and reports alreadyMember.
func (s *MembershipService) JoinTeam(ctx context.Context, actor *models.User, code, password string) (team *models.Team, alreadyMember bool, err error) {
	code = strings.TrimSpace(code)
	if code == "" || password == "" {
		return nil, false, newError(ErrInvalidInput, "Please provide team code and password")
	}

	team, err = s.store.FindTeamByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, false, newError(ErrNotFound, "Team not found")
		}
		return nil, false, err
	}
	if !s.hasher.Compare(team.Password, password) {
		return nil, false, newError(ErrUnauthorized, "Invalid team password")
	}

	alreadyMember = actor.InTeam(team.ID)
	err = s.audit.Transaction(ctx, s.store, func(ctx context.Context, rec *AuditBatch) error {
		if err := s.transfer(ctx, actor.ID, team.ID); err != nil {
			return err
		}
		return rec.Add(ctx, actor.ID, models.ActionTeamJoin, map[string]interface{}{
			"teamId":        team.ID,
			"teamName":      team.Name,
			"alreadyMember": alreadyMember,
		}, nil)
	})
	if err != nil {
		return nil, false, err
	}

	actor.Team = &team.ID
	if !team.HasMember(actor.ID) {
		team.Members = append(team.Members, actor.ID)
	}
	logging.Logger.Infof("Event ID: TEAM_JOINED, Description: User %s joined team %s", actor.ID.Hex(), team.ID.Hex())
	return team, alreadyMember, nil
}

// AddMember moves target into team on behalf of an admin.
func (s *MembershipService) AddMember(ctx context.Context, admin *models.User, targetID, teamID primitive.ObjectID) (*models.User, *models.Team, error) {
	if !isAdmin(admin) {
		return nil, nil, newError(ErrForbidden, "Admin access required")
	}
	target, err := s.store.FindUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, newError(ErrNotFound, "User not found")
		}
		return nil, nil, err
	}
	team, err := s.store.FindTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, newError(ErrNotFound, "Team not found")
		}
		return nil, nil, err
	}

	err = s.audit.Transaction(ctx, s.store, func(ctx context.Context, rec *AuditBatch) error {
		if err := s.transfer(ctx, target.ID, team.ID); err != nil {
			return err
		}
		return rec.Add(ctx, admin.ID, models.ActionTeamMemberAdd, map[string]interface{}{
			"teamId":         team.ID,
			"teamName":       team.Name,
			"targetUserId":   target.ID,
			"targetUserName": target.Name,
		}, nil)
	})
	if err != nil {
		return nil, nil, err
	}

	target.Team = &team.ID
	if !team.HasMember(target.ID) {
		team.Members = append(team.Members, target.ID)
	}
	logging.Logger.Infof("Event ID: TEAM_MEMBER_ADDED, Description: Admin %s added user %s to team %s", admin.ID.Hex(), target.ID.Hex(), team.ID.Hex())
	return target, team, nil
}

// RemoveMember takes target out of every team listing them and clears their
// team reference.
func (s *MembershipService) RemoveMember(ctx context.Context, admin *models.User, targetID primitive.ObjectID) (*models.User, error) {
	if !isAdmin(admin) {
		return nil, newError(ErrForbidden, "Admin access required")
	}
	target, err := s.store.FindUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(ErrNotFound, "User not found")
		}
		return nil, err
	}
	if target.Team == nil {
		return nil, newError(ErrInvalidState, "User is not in any team")
	}

	teamID := *target.Team
	teamName := "Unknown Team"
	if team, err := s.store.FindTeamByID(ctx, teamID); err == nil {
		teamName = team.Name
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	err = s.audit.Transaction(ctx, s.store, func(ctx context.Context, rec *AuditBatch) error {
		if _, err := s.store.PullMemberFromTeams(ctx, target.ID, nil); err != nil {
			return err
		}
		if err := s.store.SetUserTeam(ctx, target.ID, nil); err != nil {
			return err
		}
		return rec.Add(ctx, admin.ID, models.ActionTeamMemberRemove, map[string]interface{}{
			"teamId":         teamID,
			"teamName":       teamName,
			"targetUserId":   target.ID,
			"targetUserName": target.Name,
		}, nil)
	})
	if err != nil {
		return nil, err
	}

	target.Team = nil
	logging.Logger.Infof("Event ID: TEAM_MEMBER_REMOVED, Description: Admin %s removed user %s from team %s", admin.ID.Hex(), target.ID.Hex(), teamID.Hex())
	return target, nil
}

// transfer purges the user from every other team, adds them to teamID and
// points their team reference at it.
func (s *MembershipService) transfer(ctx context.Context, userID, teamID primitive.ObjectID) error {
	if _, err := s.store.PullMemberFromTeams(ctx, userID, &teamID); err != nil {
		return err
	}
	if err := s.store.AddTeamMember(ctx, teamID, userID); err != nil {
		return err
	}
	return s.store.SetUserTeam(ctx, userID, &teamID)
}

// GetTeam returns the team and its member users to admins and members.
func (s *MembershipService) GetTeam(ctx context.Context, actor *models.User, teamID primitive.ObjectID) (*models.Team, []models.User, error) {
	if !canViewTeam(actor, teamID) {
		return nil, nil, newError(ErrForbidden, "You do not have access to this team")
	}
	team, err := s.store.FindTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, newError(ErrNotFound, "Team not found")
		}
		return nil, nil, err
	}
	members, err := s.store.FindUsersByIDs(ctx, team.Members)
	if err != nil {
		return nil, nil, err
	}
	return team, members, nil
}

func (s *MembershipService) ListTeams(ctx context.Context, actor *models.User) ([]models.Team, error) {
	if !isAdmin(actor) {
		return nil, newError(ErrForbidden, "Admin access required")
	}
	return s.store.ListTeams(ctx)
}
