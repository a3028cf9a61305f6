package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

const userColumns = `id, identity, identity_kind, password_hash, role, status, active, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	var role, status string
	if err := row.Scan(&u.ID, &u.Identity, &u.IdentityKind, &u.PasswordHash, &role, &status, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.Status = models.Status(status)
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, identity, identity_kind, password_hash, role, status, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Identity, user.IdentityKind, user.PasswordHash, string(user.Role), string(user.Status), user.Active,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// FindByID returns common.ErrNotFound for ids that are not UUIDs; the id
// column would reject them with an invalid-input error.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *PostgresRepository) FindByIdentity(ctx context.Context, identity string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE identity = $1`
	return r.findOne(ctx, query, identity)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	query := `
		UPDATE users SET status = 'verified', updated_at = now()
		WHERE id = $1 AND status = 'unverified'
	`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	query := `
		UPDATE users SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, hash)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE users SET active = $2, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, active)
}

func (r *PostgresRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	query := `
		UPDATE users SET role = $2, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, string(role))
}

func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectUsers(rows)
}

func (r *PostgresRepository) Count(ctx context.Context, f ListFilter) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE ($1::text = '' OR status = $1)`, string(f.Status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListUnverifiedCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + ` FROM users
		WHERE status = 'unverified' AND role <> 'admin' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]*models.User, error) {
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) DeleteUnverifiedCreatedBefore(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	query := `
		DELETE FROM users
		WHERE id = $1 AND status = 'unverified' AND role <> 'admin' AND created_at < $2
	`
	res, err := r.db.ExecContext(ctx, query, id, cutoff)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
