package handlers

import (
	"context"
	"net/http"
	"time"

	"team-tasks/backend/logging"
	"team-tasks/backend/middleware"
	"team-tasks/backend/services"

	"github.com/gorilla/mux"
)

type Deps struct {
	Users         *services.UserService
	Memberships   *services.MembershipService
	Tasks         *services.TaskService
	Notifications *services.NotificationService
	Audit         *services.AuditService

	SessionTTL   time.Duration
	CookieSecure bool
	CORSOrigin   string

	// Ping checks the backing store for /health. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// NewRouter wires every route. CORS and request logging wrap the router so
// preflight requests are answered before route matching.
func NewRouter(d Deps) http.Handler {
	userHandler := NewUserHandler(d.Users, d.SessionTTL, d.CookieSecure)
	teamHandler := NewTeamHandler(d.Memberships)
	taskHandler := NewTaskHandler(d.Tasks)
	notificationHandler := NewNotificationHandler(d.Notifications)
	auditHandler := NewAuditHandler(d.Audit)

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler(d.Ping)).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/register", userHandler.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", userHandler.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", userHandler.Logout).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(d.Users))

	api.HandleFunc("/auth/me", userHandler.Me).Methods(http.MethodGet)
	api.HandleFunc("/users", userHandler.ListUsers).Methods(http.MethodGet)

	api.HandleFunc("/teams", teamHandler.CreateTeam).Methods(http.MethodPost)
	api.Handle("/teams", middleware.RequireAdmin(http.HandlerFunc(teamHandler.ListTeams))).Methods(http.MethodGet)
	api.HandleFunc("/teams/join", teamHandler.JoinTeam).Methods(http.MethodPost)
	api.HandleFunc("/teams/{id}", teamHandler.GetTeam).Methods(http.MethodGet)

	api.HandleFunc("/tasks", taskHandler.ListTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks", taskHandler.CreateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", taskHandler.GetTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", taskHandler.UpdateTask).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{id}", taskHandler.DeleteTask).Methods(http.MethodDelete)

	api.HandleFunc("/notifications", notificationHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications", notificationHandler.MarkRead).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/users", userHandler.ListUsersForAdmin).Methods(http.MethodGet)
	admin.HandleFunc("/teams", teamHandler.ListTeams).Methods(http.MethodGet)
	admin.HandleFunc("/teams/members", teamHandler.ManageMember).Methods(http.MethodPost)
	admin.HandleFunc("/audit", auditHandler.List).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "Route not found")
	})

	return middleware.RequestLogger(middleware.CORS(d.CORSOrigin)(r))
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				logging.Logger.Errorf("Event ID: HEALTH_CHECK_FAILED, Description: Store ping failed: %v", err)
				writeFailure(w, http.StatusServiceUnavailable, "Store unavailable")
				return
			}
		}
		writeSuccess(w, http.StatusOK, "ok", nil)
	}
}
