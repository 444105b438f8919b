package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/pliu/ponyexpress/internal/models"
	"github.com/pliu/ponyexpress/internal/store"
)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

var _ store.Store = (*SQLStore)(nil)

func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// :memory: databases are per connection.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) createTables() error {
	// Times are unix seconds so both drivers compare them the same way.
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		sealed_token TEXT NOT NULL,
		subject TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions (expires_at);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

func (s *SQLStore) SaveSession(ctx context.Context, sess *models.Session) error {
	query := s.rebind(`
		INSERT INTO sessions (id, sealed_token, subject, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			sealed_token = excluded.sealed_token,
			subject = excluded.subject,
			expires_at = excluded.expires_at
	`)
	_, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.SealedToken, sess.Subject, sess.CreatedAt.Unix(), sess.ExpiresAt.Unix())
	return err
}

func (s *SQLStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := s.rebind("SELECT id, sealed_token, subject, created_at, expires_at FROM sessions WHERE id = ?")

	var sess models.Session
	var createdAt, expiresAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&sess.ID, &sess.SealedToken, &sess.Subject, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &sess, nil
}

func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	query := s.rebind("DELETE FROM sessions WHERE id = ?")
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := s.rebind("DELETE FROM sessions WHERE expires_at <= ?")
	result, err := s.db.ExecContext(ctx, query, now.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
