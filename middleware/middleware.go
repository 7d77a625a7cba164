package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"team-tasks/backend/logging"
	"team-tasks/backend/models"
	"team-tasks/backend/services"
	"team-tasks/backend/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const AuthCookieName = "auth_token"

type contextKey int

const (
	userKey contextKey = iota
	claimsKey
	requestIDKey
)

// Authenticator resolves a session token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, *utils.Claims, error)
}

func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

func ClaimsFromContext(ctx context.Context) *utils.Claims {
	c, _ := ctx.Value(claimsKey).(*utils.Claims)
	return c
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithUser stores the authenticated user on the context.
func WithUser(ctx context.Context, user *models.User, claims *utils.Claims) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, claimsKey, claims)
}

// TokenFromRequest reads the session cookie, falling back to a bearer token.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AuthCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := r.Header.Get("Authorization")
	if token := strings.TrimPrefix(authHeader, "Bearer "); token != authHeader {
		return strings.TrimSpace(token)
	}
	return ""
}

// Auth rejects requests without a valid session and puts the session's user
// on the request context.
func Auth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				logging.Logger.Warnf("Event ID: AUTH_MISSING_TOKEN, Description: No session for request to %s %s", r.Method, r.URL.Path)
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			user, claims, err := a.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, services.ErrUnauthenticated) {
					logging.Logger.Warnf("Event ID: AUTH_INVALID_TOKEN, Description: Rejected session for request to %s %s: %v", r.Method, r.URL.Path, err)
					writeError(w, http.StatusUnauthorized, services.Message(err, "Authentication required"))
					return
				}
				logging.Logger.Errorf("Event ID: AUTH_ERROR, Description: Failed to authenticate request to %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusInternalServerError, "Failed to authenticate")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, claims)))
		})
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !user.IsAdmin() {
			logging.Logger.Warnf("Event ID: ADMIN_REQUIRED, Description: User %s denied access to %s %s", user.ID.Hex(), r.Method, r.URL.Path)
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CORS allows the configured browser origin to send credentialed requests.
func CORS(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger tags each request with an id, records client metadata for
// audit entries and logs the outcome.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		ctx = services.WithRequestMeta(ctx, clientIP(r), r.UserAgent())

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		entry := logging.Logger.WithFields(logrus.Fields{"request_id": reqID})
		msg := "Event ID: HTTP_REQUEST, Description: %s %s -> %d in %s"
		switch {
		case rec.status >= 500:
			entry.Errorf(msg, r.Method, r.URL.Path, rec.status, time.Since(start))
		case rec.status >= 400:
			entry.Warnf(msg, r.Method, r.URL.Path, rec.status, time.Since(start))
		default:
			entry.Infof(msg, r.Method, r.URL.Path, rec.status, time.Since(start))
		}
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
