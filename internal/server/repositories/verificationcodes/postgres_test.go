package verificationcodes

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

const replaceQuery = `(?s)INSERT\s+INTO\s+verification_codes.*ON\s+CONFLICT\s+\(user_id,\s*purpose\)\s+DO\s+UPDATE.*WHERE\s+verification_codes\.created_at\s*<=\s*\$6`

func TestReplace(t *testing.T) {
	now := time.Now()
	code := &models.VerificationCode{UserID: "u1", Purpose: models.PurposeSignup, CodeHash: "h", ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now}
	notBefore := now.Add(-time.Minute)

	t.Run("stored", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(replaceQuery).
			WithArgs("u1", "signup", "h", code.ExpiresAt, now, notBefore).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Replace(context.Background(), code, notBefore))
	})

	t.Run("previous code too recent", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(replaceQuery).WillReturnResult(sqlmock.NewResult(0, 0))
		require.ErrorIs(t, repo.Replace(context.Background(), code, notBefore), common.ErrRateLimited)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(replaceQuery).WillReturnError(errors.New("db down"))
		err := repo.Replace(context.Background(), code, notBefore)
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrRateLimited)
	})
}

func TestFind(t *testing.T) {
	q := `(?s)SELECT\s+code_hash,\s*expires_at,\s*created_at\s+FROM\s+verification_codes\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+purpose\s*=\s*\$2`
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WithArgs("u1", "reset").
			WillReturnRows(sqlmock.NewRows([]string{"code_hash", "expires_at", "created_at"}).AddRow("h", now.Add(time.Minute), now))
		got, err := repo.Find(context.Background(), "u1", models.PurposeReset)
		require.NoError(t, err)
		assert.Equal(t, "h", got.CodeHash)
		assert.Equal(t, models.PurposeReset, got.Purpose)
		assert.False(t, got.Expired(now))
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)
		_, err := repo.Find(context.Background(), "u1", models.PurposeSignup)
		require.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestConsume(t *testing.T) {
	q := `(?s)DELETE\s+FROM\s+verification_codes\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+purpose\s*=\s*\$2\s+AND\s+code_hash\s*=\s*\$3`

	t.Run("consumed once", func(t *testing.T) {
		repo, mock := newRepoWithMock(t)
		mock.ExpectExec(q).WithArgs("u1", "signup", "h").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q).WithArgs("u1", "signup", "h").WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, repo.Consume(context.Background(), "u1", models.PurposeSignup, "h"))
		require.ErrorIs(t, repo.Consume(context.Background(), "u1", models.PurposeSignup, "h"), common.ErrNotFound)
	})
}

func TestDeleteExpired(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectExec(`DELETE\s+FROM\s+verification_codes\s+WHERE\s+expires_at\s*<=\s*\$1`).WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
