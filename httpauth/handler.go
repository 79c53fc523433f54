package httpauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	ldap "github.com/xonoko/ldapauth"
	"github.com/xonoko/ldapauth/auth"
)

// Authenticator is satisfied by *auth.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*auth.User, error)
}

type contextKey string

const userContextKey contextKey = "ldapauth.user"

// UserFromContext returns the user stored by BasicAuth, nil if none.
func UserFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userContextKey).(*auth.User)
	return user
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respondFailure maps an Authenticate error to a response. Failed logins
// never expose why they failed.
func respondFailure(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, ldap.ErrEmptyCredentials):
		writeError(w, http.StatusBadRequest, "username and password are required")
	default:
		logger.Error("authentication failed with an internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// LoginHandler authenticates the request's credentials and answers with the
// user's fields as JSON.
func LoginHandler(a Authenticator, fields FormFields, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, err := Credentials(r, fields)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed credentials")
			return
		}

		user, err := a.Authenticate(r.Context(), username, password)
		if err != nil {
			respondFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, user.Fields())
	}
}

// BasicAuth authenticates every request with HTTP Basic credentials and
// stores the user in the request context.
func BasicAuth(a Authenticator, realm string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	challenge := fmt.Sprintf("Basic realm=%q", realm)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", challenge)
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			user, err := a.Authenticate(r.Context(), username, password)
			if err != nil {
				if errors.Is(err, auth.ErrNotAuthenticated) || errors.Is(err, ldap.ErrEmptyCredentials) {
					w.Header().Set("WWW-Authenticate", challenge)
					writeError(w, http.StatusUnauthorized, "invalid credentials")
					return
				}
				respondFailure(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type RouterConfig struct {
	Fields   FormFields
	Realm    string
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Timeout  time.Duration
}

// NewRouter mounts POST /login, GET /me (Basic auth), GET /healthz and,
// with a Gatherer, GET /metrics.
func NewRouter(a Authenticator, cfg RouterConfig) http.Handler {
	if cfg.Fields == (FormFields{}) {
		cfg.Fields = DefaultFormFields()
	}
	if cfg.Realm == "" {
		cfg.Realm = "ldapauth"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/login", LoginHandler(a, cfg.Fields, cfg.Logger))

	r.With(BasicAuth(a, cfg.Realm, cfg.Logger)).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, UserFromContext(r.Context()).Fields())
	})

	return r
}
