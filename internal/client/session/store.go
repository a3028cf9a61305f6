// Package session keeps the CLI's tokens between invocations in a local
// SQLite key/value table.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/client/session/migrations"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const (
	keyUserID           = "user_id"
	keyIdentity         = "identity"
	keyAccessToken      = "access_token"
	keyRefreshToken     = "refresh_token"
	keyAccessExpiresAt  = "access_expires_at"
	keyRefreshExpiresAt = "refresh_expires_at"
)

var ErrNoSession = errors.New("not logged in")

// Session is what a successful login leaves behind.
type Session struct {
	UserID           string
	Identity         string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type Store struct {
	db *sql.DB
}

// gooseUpContext is a seam for tests.
var gooseUpContext = goose.UpContext

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// Open opens (creating if needed) the session database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored session.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	values := map[string]string{
		keyUserID:           sess.UserID,
		keyIdentity:         sess.Identity,
		keyAccessToken:      sess.AccessToken,
		keyRefreshToken:     sess.RefreshToken,
		keyAccessExpiresAt:  sess.AccessExpiresAt.UTC().Format(time.RFC3339Nano),
		keyRefreshExpiresAt: sess.RefreshExpiresAt.UTC().Format(time.RFC3339Nano),
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for k, v := range values {
			if err := set(ctx, tx, k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateTokens stores a rotated token pair, keeping the rest of the session.
func (s *Store) UpdateTokens(ctx context.Context, access, refresh string, accessExp, refreshExp time.Time) error {
	sess, err := s.Load(ctx)
	if err != nil {
		return err
	}
	sess.AccessToken = access
	sess.RefreshToken = refresh
	sess.AccessExpiresAt = accessExp
	sess.RefreshExpiresAt = refreshExp
	return s.Save(ctx, sess)
}

// Load returns ErrNoSession when nothing has been saved.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		values[key] = string(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metadata rows: %w", err)
	}

	if values[keyRefreshToken] == "" {
		return nil, ErrNoSession
	}

	sess := &Session{
		UserID:       values[keyUserID],
		Identity:     values[keyIdentity],
		AccessToken:  values[keyAccessToken],
		RefreshToken: values[keyRefreshToken],
	}
	sess.AccessExpiresAt, _ = time.Parse(time.RFC3339Nano, values[keyAccessExpiresAt])
	sess.RefreshExpiresAt, _ = time.Parse(time.RFC3339Nano, values[keyRefreshExpiresAt])
	return sess, nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata`)
	if err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return nil
}

func set(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}
