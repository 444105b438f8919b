package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pliu/ponyexpress/internal/auth"
)

type contextKey string

const authKey contextKey = "auth"

// Resolver loads the auth context of a session id.
type Resolver interface {
	Resolve(ctx context.Context, sessionID string) (auth.Context, error)
}

// WithAuth stores ac in ctx.
func WithAuth(ctx context.Context, ac auth.Context) context.Context {
	return context.WithValue(ctx, authKey, ac)
}

// AuthFrom returns the auth context of the request, logged out when none
// was stored.
func AuthFrom(ctx context.Context) auth.Context {
	ac, _ := ctx.Value(authKey).(auth.Context)
	return ac
}

// Session resolves the session cookie into an auth context. A request
// without a usable session continues logged out; a cookie that fails to
// verify or points at a dead session is cleared.
func Session(cookies auth.Cookies, resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ac auth.Context

			sessionID, err := cookies.Read(r)
			switch {
			case errors.Is(err, auth.ErrNoSession):
			case err != nil:
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("bad session cookie")
				cookies.Clear(w)
			default:
				ac, err = resolver.Resolve(r.Context(), sessionID)
				if err != nil {
					if !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrSessionExpired) {
						zerolog.Ctx(r.Context()).Warn().Err(err).Msg("resolve session")
					}
					ac = auth.Context{}
					cookies.Clear(w)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), ac)))
		})
	}
}
