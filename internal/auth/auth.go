// Package auth owns the login state of a browser session: the bearer token,
// how it is obtained from the API and where it is persisted.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pliu/ponyexpress/internal/api"
	"github.com/pliu/ponyexpress/internal/models"
	"github.com/pliu/ponyexpress/internal/store"
)

// DefaultSessionTTL applies when the API reports no token lifetime.
const DefaultSessionTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNoSession          = errors.New("no session")
	ErrSessionExpired     = errors.New("session expired")
)

// TokenAPI is the unauthenticated part of the API.
type TokenAPI interface {
	Token(ctx context.Context, creds models.Credentials) (*models.AccessToken, error)
	Register(ctx context.Context, reg models.Registration) (*models.User, error)
}

// Context is the auth state of one request. The zero value is logged out.
type Context struct {
	SessionID string
	Token     string
	Subject   string
	ExpiresAt time.Time
}

func (c Context) IsLoggedIn() bool {
	return c.Token != ""
}

// Identity is the marker shown for a logged-in session, empty otherwise.
func (c Context) Identity() string {
	if !c.IsLoggedIn() {
		return ""
	}
	return c.Subject
}

type Service struct {
	api    TokenAPI
	store  store.Store
	sealer *Sealer
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(tokens TokenAPI, st store.Store, sealer *Sealer, log zerolog.Logger) *Service {
	return &Service{
		api:    tokens,
		store:  st,
		sealer: sealer,
		log:    log.With().Str("component", "auth").Logger(),
		now:    time.Now,
	}
}

// Login exchanges credentials for a token and persists it under a new
// session. Nothing is persisted when the API refuses.
func (s *Service) Login(ctx context.Context, creds models.Credentials) (Context, error) {
	tok, err := s.api.Token(ctx, creds)
	if err != nil {
		if api.IsUnauthorized(err) {
			return Context{}, fmt.Errorf("login %s: %w", creds.Username, ErrInvalidCredentials)
		}
		return Context{}, fmt.Errorf("login %s: %w", creds.Username, err)
	}
	if tok.AccessToken == "" {
		return Context{}, fmt.Errorf("login %s: empty access token", creds.Username)
	}

	now := s.now()
	ac := Context{
		SessionID: uuid.NewString(),
		Token:     tok.AccessToken,
		Subject:   creds.Username,
	}
	if claims, err := ParseClaims(tok.AccessToken); err == nil {
		if claims.Subject != "" {
			ac.Subject = claims.Subject
		}
		ac.ExpiresAt = claims.ExpiresAt
	}
	if ac.ExpiresAt.IsZero() {
		ttl := DefaultSessionTTL
		if tok.ExpiresIn > 0 {
			ttl = time.Duration(tok.ExpiresIn) * time.Second
		}
		ac.ExpiresAt = now.Add(ttl)
	}

	sealed, err := s.sealer.Seal(ac.SessionID, ac.Token)
	if err != nil {
		return Context{}, err
	}
	err = s.store.SaveSession(ctx, &models.Session{
		ID:          ac.SessionID,
		SealedToken: sealed,
		Subject:     ac.Subject,
		CreatedAt:   now,
		ExpiresAt:   ac.ExpiresAt,
	})
	if err != nil {
		return Context{}, fmt.Errorf("save session: %w", err)
	}

	s.log.Info().Str("session", ac.SessionID).Str("subject", ac.Subject).Msg("logged in")
	return ac, nil
}

// Register creates the account and logs in with the same credentials.
func (s *Service) Register(ctx context.Context, reg models.Registration) (Context, error) {
	if _, err := s.api.Register(ctx, reg); err != nil {
		return Context{}, fmt.Errorf("register %s: %w", reg.Username, err)
	}
	return s.Login(ctx, models.Credentials{Username: reg.Username, Password: reg.Password})
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	s.log.Info().Str("session", sessionID).Msg("logged out")
	return nil
}

// Resolve loads the auth context for a session id. Expired sessions are
// deleted and reported as ErrSessionExpired.
func (s *Service) Resolve(ctx context.Context, sessionID string) (Context, error) {
	if sessionID == "" {
		return Context{}, ErrNoSession
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return Context{}, ErrNoSession
	}
	if err != nil {
		return Context{}, fmt.Errorf("load session: %w", err)
	}

	if sess.Expired(s.now()) {
		if err := s.store.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Str("session", sessionID).Msg("delete expired session")
		}
		return Context{}, ErrSessionExpired
	}

	token, err := s.sealer.Open(sess.ID, sess.SealedToken)
	if err != nil {
		return Context{}, err
	}
	return Context{
		SessionID: sess.ID,
		Token:     token,
		Subject:   sess.Subject,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// Sweep drops expired sessions from the store.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}
