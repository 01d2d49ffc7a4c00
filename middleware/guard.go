package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/authkeep/authkeep"
)

// Authenticator resolves a bearer token to its account.
type Authenticator interface {
	CurrentUser(ctx context.Context, token string) (authkeep.User, error)
}

type userContextKey struct{}
type tokenContextKey struct{}

// UserFromContext returns the user Authenticate resolved for the request.
func UserFromContext(ctx context.Context) (authkeep.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(authkeep.User)
	return u, ok
}

// TokenFromContext returns the bearer token that authenticated the request.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenContextKey{}).(string)
	return tok, ok
}

// Authenticate resolves the Authorization header through engine.
//
// A missing header passes the request on unchanged. A token the engine
// rejects answers 401, and an unreachable session store answers 503.
func Authenticate(engine Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := authkeep.WithClientIP(r.Context(), ClientIP(r))
			ctx = authkeep.WithClientDevice(ctx, r.UserAgent())

			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			token, ok := BearerToken(header)
			if !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			u, err := engine.CurrentUser(ctx, token)
			if err != nil {
				if errors.Is(err, authkeep.ErrSessionStoreUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, userContextKey{}, u)
			ctx = context.WithValue(ctx, tokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser answers 401 unless Authenticate resolved a user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole answers 401 without a user and 403 when the user lacks role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := UserFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !u.HasRole(role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

// ClientIP returns the host part of r.RemoteAddr. Put a proxy-aware
// middleware such as chi's RealIP in front when running behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
