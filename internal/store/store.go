package store

import (
	"context"
	"errors"
	"time"

	"github.com/pliu/ponyexpress/internal/models"
)

var ErrNotFound = errors.New("session not found")

// Store persists login sessions across restarts of the web client.
type Store interface {
	SaveSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpired removes sessions that expired before now and reports
	// how many went.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Close() error
}
