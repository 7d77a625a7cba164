package services

import (
	"context"
	"errors"
	"fmt"

	"team-tasks/backend/logging"
	"team-tasks/backend/models"
	"team-tasks/backend/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reconciler repairs membership after partial writes. User.team is the source
// of truth: dangling team references are cleared and every Team.members is
// rebuilt from the users pointing at the team.
type Reconciler struct {
	store repositories.Store
}

func NewReconciler(store repositories.Store) *Reconciler {
	return &Reconciler{store: store}
}

type ReconcileReport struct {
	UsersFixed int `json:"usersFixed"`
	TeamsFixed int `json:"teamsFixed"`
}

// Reconcile works from a snapshot but applies every repair as a conditional
// write inside its own transaction, after re-reading the records involved. A
// membership change that lands between the snapshot and the repair makes the
// repair a no-op instead of overwriting it; the next pass picks up anything
// left over.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}
	teams, err := r.store.ListTeams(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list teams: %w", err)
	}

	exists := make(map[primitive.ObjectID]bool, len(teams))
	for _, t := range teams {
		exists[t.ID] = true
	}

	hinted := make(map[primitive.ObjectID][]primitive.ObjectID)
	for _, u := range users {
		if u.Team == nil {
			continue
		}
		if exists[*u.Team] {
			hinted[*u.Team] = append(hinted[*u.Team], u.ID)
			continue
		}
		fixed, err := r.clearDanglingTeam(ctx, u.ID, *u.Team)
		if err != nil {
			return report, fmt.Errorf("failed to clear team of user %s: %w", u.ID.Hex(), err)
		}
		if fixed {
			logging.Logger.Warnf("Event ID: RECONCILE_USER, Description: Cleared missing team %s from user %s", u.Team.Hex(), u.ID.Hex())
			report.UsersFixed++
		}
	}

	for _, t := range teams {
		fixed, err := r.repairTeam(ctx, t.ID, hinted[t.ID])
		if err != nil {
			return report, fmt.Errorf("failed to rebuild members of team %s: %w", t.ID.Hex(), err)
		}
		if fixed {
			report.TeamsFixed++
		}
	}

	logging.Logger.Infof("Event ID: RECONCILE_DONE, Description: Reconciled %d users and %d teams", report.UsersFixed, report.TeamsFixed)
	return report, nil
}

// clearDanglingTeam unsets the user's team only if the team is still missing
// and the user still points at it.
func (r *Reconciler) clearDanglingTeam(ctx context.Context, userID, teamID primitive.ObjectID) (bool, error) {
	var fixed bool
	err := r.store.WithTransaction(ctx, func(ctx context.Context) error {
		fixed = false
		_, err := r.store.FindTeamByID(ctx, teamID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		fixed, err = r.store.ClearUserTeamIf(ctx, userID, teamID)
		return err
	})
	return fixed, err
}

// repairTeam rebuilds the team's member list from fresh reads of the team and
// of every user it lists or that referenced it in the snapshot. The write is
// skipped when the list changed since it was read.
func (r *Reconciler) repairTeam(ctx context.Context, teamID primitive.ObjectID, hinted []primitive.ObjectID) (bool, error) {
	var fixed bool
	err := r.store.WithTransaction(ctx, func(ctx context.Context) error {
		fixed = false
		team, err := r.store.FindTeamByID(ctx, teamID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		candidates := append(append([]primitive.ObjectID{}, team.Members...), hinted...)
		fresh, err := r.store.FindUsersByIDs(ctx, candidates)
		if err != nil {
			return err
		}
		belongs := make(map[primitive.ObjectID]primitive.ObjectID, len(fresh))
		for _, u := range fresh {
			if u.Team != nil {
				belongs[u.ID] = *u.Team
			}
		}
		want := make([]primitive.ObjectID, 0, len(hinted))
		for _, id := range hinted {
			if belongs[id] == teamID {
				want = append(want, id)
			}
		}

		members := rebuildMembers(*team, want, belongs)
		if equalIDs(members, team.Members) {
			return nil
		}
		fixed, err = r.store.ReplaceTeamMembersIf(ctx, teamID, team.Members, members)
		if err != nil || !fixed {
			return err
		}
		logging.Logger.Warnf("Event ID: RECONCILE_TEAM, Description: Rebuilt members of team %s (%d -> %d)", teamID.Hex(), len(team.Members), len(members))
		return nil
	})
	return fixed, err
}

// rebuildMembers keeps the current order of valid members, drops duplicates
// and strangers, and appends users that reference the team but were missing.
func rebuildMembers(t models.Team, want []primitive.ObjectID, belongs map[primitive.ObjectID]primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(want))
	seen := make(map[primitive.ObjectID]bool, len(want))
	for _, id := range t.Members {
		if seen[id] || belongs[id] != t.ID {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range want {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func equalIDs(a, b []primitive.ObjectID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
