package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"team-tasks/backend/middleware"
	"team-tasks/backend/models"
	"team-tasks/backend/services"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TeamHandler struct {
	service *services.MembershipService
}

func NewTeamHandler(service *services.MembershipService) *TeamHandler {
	return &TeamHandler{service: service}
}

type createTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TeamCode    string `json:"teamCode"`
	Password    string `json:"password"`
}

type joinTeamRequest struct {
	TeamCode string `json:"teamCode"`
	Password string `json:"password"`
}

type memberActionRequest struct {
	UserID string `json:"userId"`
	TeamID string `json:"teamId"`
	Action string `json:"action"`
}

type teamSummary struct {
	ID          primitive.ObjectID   `json:"_id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	TeamCode    string               `json:"teamCode"`
	Creator     primitive.ObjectID   `json:"creator"`
	Members     []primitive.ObjectID `json:"members"`
	MemberCount int                  `json:"memberCount"`
	CreatedAt   time.Time            `json:"createdAt"`
}

func summarize(t *models.Team) teamSummary {
	return teamSummary{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		TeamCode:    t.TeamCode,
		Creator:     t.Creator,
		Members:     append([]primitive.ObjectID{}, t.Members...),
		MemberCount: len(t.Members),
		CreatedAt:   t.CreatedAt,
	}
}

func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if !decodeBody(w, r, &req) {
		return
	}

	team, err := h.service.CreateTeam(r.Context(), middleware.UserFromContext(r.Context()), services.CreateTeamInput{
		Name:        req.Name,
		Description: req.Description,
		TeamCode:    req.TeamCode,
		Password:    req.Password,
	})
	if err != nil {
		writeError(w, r, err, "Failed to create team")
		return
	}
	writeSuccess(w, http.StatusOK, "Team created successfully", envelope{"team": summarize(team)})
}

func (h *TeamHandler) JoinTeam(w http.ResponseWriter, r *http.Request) {
	var req joinTeamRequest
	if !decodeBody(w, r, &req) {
		return
	}

	team, alreadyMember, err := h.service.JoinTeam(r.Context(), middleware.UserFromContext(r.Context()), req.TeamCode, req.Password)
	if err != nil {
		writeError(w, r, err, "Failed to join team")
		return
	}

	message := "Successfully joined team"
	if alreadyMember {
		message = "You are already a member of this team"
	}
	writeSuccess(w, http.StatusOK, message, envelope{"team": summarize(team)})
}

func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id", "team")
	if !ok {
		return
	}

	team, members, err := h.service.GetTeam(r.Context(), middleware.UserFromContext(r.Context()), teamID)
	if err != nil {
		writeError(w, r, err, "Failed to fetch team")
		return
	}

	out := make([]services.UserSummary, 0, len(members))
	for _, m := range members {
		out = append(out, services.UserSummary{ID: m.ID, Name: m.Name, Email: m.Email, Role: m.Role, Avatar: m.Avatar})
	}
	writeSuccess(w, http.StatusOK, "", envelope{
		"team":    summarize(team),
		"members": out,
	})
}

func (h *TeamHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.service.ListTeams(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to fetch teams")
		return
	}

	out := make([]teamSummary, 0, len(teams))
	for i := range teams {
		out = append(out, summarize(&teams[i]))
	}
	writeSuccess(w, http.StatusOK, "", envelope{"count": len(out), "teams": out})
}

// ManageMember adds a user to a team or removes them from their team.
func (h *TeamHandler) ManageMember(w http.ResponseWriter, r *http.Request) {
	var req memberActionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.UserID))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Please provide a valid user ID")
		return
	}
	admin := middleware.UserFromContext(r.Context())

	switch req.Action {
	case "add":
		teamID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.TeamID))
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Please provide a valid team ID")
			return
		}
		user, team, err := h.service.AddMember(r.Context(), admin, userID, teamID)
		if err != nil {
			writeError(w, r, err, "Failed to add member")
			return
		}
		writeSuccess(w, http.StatusOK, fmt.Sprintf("Successfully added %s to %s", user.Name, team.Name), nil)
	case "remove":
		user, err := h.service.RemoveMember(r.Context(), admin, userID)
		if err != nil {
			writeError(w, r, err, "Failed to remove member")
			return
		}
		writeSuccess(w, http.StatusOK, fmt.Sprintf("Successfully removed %s from team", user.Name), nil)
	default:
		writeFailure(w, http.StatusBadRequest, `Action must be "add" or "remove"`)
	}
}
