package handlers

import (
	"errors"
	"net/http"
	"time"

	"team-tasks/backend/logging"
	"team-tasks/backend/middleware"
	"team-tasks/backend/models"
	"team-tasks/backend/services"
)

type UserHandler struct {
	service      *services.UserService
	sessionTTL   time.Duration
	cookieSecure bool
}

func NewUserHandler(service *services.UserService, sessionTTL time.Duration, cookieSecure bool) *UserHandler {
	return &UserHandler{service: service, sessionTTL: sessionTTL, cookieSecure: cookieSecure}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID            string                `json:"_id"`
	Name          string                `json:"name"`
	Email         string                `json:"email"`
	Role          models.Role           `json:"role"`
	Avatar        string                `json:"avatar"`
	Team          *string               `json:"team"`
	Notifications []models.Notification `json:"notifications,omitempty"`
}

func toUserResponse(u *models.User, withNotifications bool) userResponse {
	resp := userResponse{
		ID:     u.ID.Hex(),
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		Avatar: u.Avatar,
	}
	if u.Team != nil {
		team := u.Team.Hex()
		resp.Team = &team
	}
	if withNotifications {
		resp.Notifications = u.Notifications
	}
	return resp
}

func (h *UserHandler) setSessionCookie(w http.ResponseWriter, session *services.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *UserHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, session, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, "Failed to register user")
		return
	}

	h.setSessionCookie(w, session)
	writeSuccess(w, http.StatusCreated, "User registered successfully", envelope{
		"user": toUserResponse(user, false),
	})
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err, "Failed to log in")
		return
	}

	h.setSessionCookie(w, session)
	writeSuccess(w, http.StatusOK, "Login successful", envelope{
		"user": toUserResponse(user, false),
	})
}

// Logout always clears the cookie. A still-valid session is also revoked.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		_, claims, err := h.service.Authenticate(r.Context(), token)
		switch {
		case err == nil:
			if err := h.service.Logout(r.Context(), claims); err != nil {
				writeError(w, r, err, "Failed to log out")
				return
			}
		case !errors.Is(err, services.ErrUnauthenticated):
			writeError(w, r, err, "Failed to log out")
			return
		default:
			logging.Logger.Debugf("Event ID: LOGOUT_STALE_SESSION, Description: Logout with unusable session: %v", err)
		}
	}

	h.clearSessionCookie(w)
	writeSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to load user")
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"user": toUserResponse(user, true)})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to fetch users")
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"count": len(users), "users": users})
}

func (h *UserHandler) ListUsersForAdmin(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsersForAdmin(r.Context(), middleware.UserFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to fetch users")
		return
	}
	writeSuccess(w, http.StatusOK, "", envelope{"count": len(users), "users": users})
}
