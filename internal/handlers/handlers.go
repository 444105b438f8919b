package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/pliu/ponyexpress/internal/api"
	"github.com/pliu/ponyexpress/internal/auth"
	"github.com/pliu/ponyexpress/internal/middleware"
	"github.com/pliu/ponyexpress/internal/models"
	"github.com/pliu/ponyexpress/internal/session"
	"github.com/pliu/ponyexpress/internal/views"
)

// AuthService is the login state machine the handlers drive.
type AuthService interface {
	Login(ctx context.Context, creds models.Credentials) (auth.Context, error)
	Register(ctx context.Context, reg models.Registration) (auth.Context, error)
	Logout(ctx context.Context, sessionID string) error
}

// Base holds what every handler needs.
type Base struct {
	Views    *views.Renderer
	Sessions *session.Manager
	Auth     AuthService
	Cookies  auth.Cookies
	// RenderWait bounds how long a page waits on API reads before it
	// renders what it has.
	RenderWait time.Duration
	Log        zerolog.Logger
}

// state returns the in-memory session state of an authenticated request.
func (b *Base) state(r *http.Request) (auth.Context, *session.State) {
	ac := middleware.AuthFrom(r.Context())
	return ac, b.Sessions.Get(ac.SessionID, ac.Token)
}

func (b *Base) renderCtx(r *http.Request) (context.Context, context.CancelFunc) {
	wait := b.RenderWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return context.WithTimeout(r.Context(), wait)
}

func (b *Base) render(w http.ResponseWriter, r *http.Request, status int, name string, p views.Page) {
	if err := b.Views.HTML(w, status, name, p); err != nil {
		b.logger(r).Error().Err(err).Str("page", name).Msg("render")
	}
}

func (b *Base) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &b.Log
}

// endSession drops every trace of the session and sends the browser to
// the login page.
func (b *Base) endSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := b.Auth.Logout(r.Context(), sessionID); err != nil {
		b.logger(r).Error().Err(err).Msg("logout")
	}
	b.Sessions.Drop(sessionID)
	b.Cookies.Clear(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// rejected ends the session when the API no longer accepts its token.
func (b *Base) rejected(w http.ResponseWriter, r *http.Request, sessionID string, errs ...error) bool {
	for _, err := range errs {
		if api.IsUnauthorized(err) {
			b.logger(r).Info().Str("session", sessionID).Msg("token rejected by api")
			b.endSession(w, r, sessionID)
			return true
		}
	}
	return false
}

func seeOther(w http.ResponseWriter, r *http.Request, url string) {
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// pathInt reads a numeric path variable.
func pathInt(r *http.Request, name string) (int, bool) {
	v, ok := mux.Vars(r)[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// errorMessage turns an error into text fit for a form.
func errorMessage(err error) string {
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return "invalid username or password"
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return "something went wrong, please try again"
}

func topNav(me *models.User, active string) views.TopNav {
	nav := views.TopNav{LoggedIn: true, Active: active}
	if me != nil {
		nav.Username = me.Username
	}
	return nav
}
