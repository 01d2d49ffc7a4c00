package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/authkeep/authkeep"
	"github.com/authkeep/authkeep/metrics/export/prometheus"
	"github.com/authkeep/authkeep/middleware"
	"github.com/authkeep/authkeep/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

type server struct {
	engine *authkeep.Engine
	cache  *session.RedisCache
	logger *slog.Logger
}

func newServer(engine *authkeep.Engine, rdb redis.UniversalClient, logger *slog.Logger) *server {
	return &server{engine: engine, cache: session.NewRedisCache(rdb), logger: logger}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Authenticate(s.engine))

	r.Get("/healthz", s.health)
	r.Handle("/metrics", prometheus.New(s.engine).Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/register", s.register)
		api.Post("/login", s.login)

		api.Group(func(authed chi.Router) {
			authed.Use(middleware.RequireUser)
			authed.Get("/me", s.me)
			authed.Post("/logout", s.logout)
			authed.Post("/refresh", s.refresh)
			authed.Put("/password", s.changePassword)
			authed.Delete("/account", s.deleteAccount)
		})

		api.Route("/admin/users/{id}", func(admin chi.Router) {
			admin.Use(middleware.RequireRole(s.engine.AdminRole()))
			admin.Post("/ban", s.adminAction(s.engine.BanUser))
			admin.Post("/unban", s.adminAction(s.engine.UnbanUser))
			admin.Post("/unlock", s.adminAction(s.engine.UnlockUser))
			admin.Put("/password", s.resetPassword)
			admin.Put("/roles", s.setRoles)
		})
	})
	return r
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	latency, err := s.cache.Ping(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "redis": latency.Round(time.Microsecond).String()})
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	u, err := s.engine.Register(r.Context(), authkeep.RegisterRequest{
		Username: req.Username,
		Password: req.Password,
		Phone:    req.Phone,
		Email:    req.Email,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	token, err := s.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, u)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	if err := s.engine.LogoutToken(r.Context(), token); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	next, err := s.engine.RefreshToken(r.Context(), token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: next})
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if !decode(w, r, &req) {
		return
	}
	token, _ := middleware.TokenFromContext(r.Context())
	u, err := s.engine.ChangePassword(r.Context(), token, req.OldPassword, req.NewPassword)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())
	if err := s.engine.DeleteAccount(r.Context(), token); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) adminAction(action func(ctx context.Context, id int64) (authkeep.User, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(w, r)
		if !ok {
			return
		}
		u, err := action(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func (s *server) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	u, err := s.engine.ResetPassword(r.Context(), id, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *server) setRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		Roles []string `json:"roles"`
	}
	if !decode(w, r, &req) {
		return
	}
	u, err := s.engine.SetRoles(r.Context(), id, req.Roles)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "invalid user id"})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "malformed JSON body"})
		return false
	}
	return true
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors to responses. Unauthorized causes are not
// distinguished on the wire.
func (s *server) writeError(w http.ResponseWriter, err error) {
	status, body := http.StatusInternalServerError, errorBody{Code: "INTERNAL_ERROR", Message: "unexpected server error"}

	switch {
	case errors.Is(err, authkeep.ErrInvalidRequest):
		status, body = http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "invalid request"}
	case errors.Is(err, authkeep.ErrUnauthorized):
		status, body = http.StatusUnauthorized, errorBody{Code: "UNAUTHORIZED", Message: "authentication required"}
	case errors.Is(err, authkeep.ErrInvalidCredentials):
		status, body = http.StatusUnauthorized, errorBody{Code: "INVALID_CREDENTIALS", Message: "invalid credentials"}
	case errors.Is(err, authkeep.ErrTooManyAttempts):
		status, body = http.StatusLocked, errorBody{Code: "TOO_MANY_ATTEMPTS", Message: "account locked after repeated failures"}
	case errors.Is(err, authkeep.ErrAccountLocked):
		status, body = http.StatusLocked, errorBody{Code: "ACCOUNT_LOCKED", Message: "account locked"}
	case errors.Is(err, authkeep.ErrAccountDisabled):
		status, body = http.StatusForbidden, errorBody{Code: "ACCOUNT_DISABLED", Message: "account disabled"}
	case errors.Is(err, authkeep.ErrLoginRateLimited):
		status, body = http.StatusTooManyRequests, errorBody{Code: "RATE_LIMITED", Message: "too many failed logins"}
	case errors.Is(err, authkeep.ErrUsernameTaken):
		status, body = http.StatusConflict, errorBody{Code: "ALREADY_EXISTS", Message: "username already taken"}
	case errors.Is(err, authkeep.ErrWrongOldPassword):
		status, body = http.StatusBadRequest, errorBody{Code: "WRONG_OLD_PASSWORD", Message: "old password does not match"}
	case errors.Is(err, authkeep.ErrPasswordReuse):
		status, body = http.StatusBadRequest, errorBody{Code: "PASSWORD_REUSE", Message: "new password must differ"}
	case errors.Is(err, authkeep.ErrUserNotFound):
		status, body = http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "user not found"}
	case errors.Is(err, authkeep.ErrSessionStoreUnavailable):
		status, body = http.StatusServiceUnavailable, errorBody{Code: "UNAVAILABLE", Message: "session store unavailable"}
	default:
		s.logger.Error("unhandled engine error", "error", err)
	}

	writeJSON(w, status, body)
}
