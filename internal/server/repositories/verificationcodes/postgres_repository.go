package verificationcodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Replace(ctx context.Context, code *models.VerificationCode, notBefore time.Time) error {
	query := `
		INSERT INTO verification_codes (user_id, purpose, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, purpose) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
		WHERE verification_codes.created_at <= $6
	`
	res, err := r.db.ExecContext(ctx, query,
		code.UserID, string(code.Purpose), code.CodeHash, code.ExpiresAt, code.CreatedAt, notBefore)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrRateLimited
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, userID string, purpose models.Purpose) (*models.VerificationCode, error) {
	query := `
		SELECT code_hash, expires_at, created_at
		FROM verification_codes
		WHERE user_id = $1 AND purpose = $2
	`
	c := &models.VerificationCode{UserID: userID, Purpose: purpose}
	err := r.db.QueryRowContext(ctx, query, userID, string(purpose)).Scan(&c.CodeHash, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, userID string, purpose models.Purpose, codeHash string) error {
	query := `
		DELETE FROM verification_codes
		WHERE user_id = $1 AND purpose = $2 AND code_hash = $3
	`
	res, err := r.db.ExecContext(ctx, query, userID, string(purpose), codeHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
