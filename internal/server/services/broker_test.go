package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unverifiedUser(id string) *models.User {
	return &models.User{
		ID:           id,
		Identity:     id + "@x.com",
		IdentityKind: "email",
		Role:         models.RoleUser,
		Status:       models.StatusUnverified,
		Active:       true,
	}
}

func TestGenerate_StoresHashAndQueuesDelivery(t *testing.T) {
	h := newHarness(t, nil, nil)
	u := unverifiedUser("u1")

	code, err := h.broker.Generate(context.Background(), u, models.PurposeSignup)
	require.NoError(t, err)
	assert.Len(t, code, common.VerificationCodeDigits)

	stored, err := memCodes{h.store}.Find(context.Background(), "u1", models.PurposeSignup)
	require.NoError(t, err)
	assert.Equal(t, common.HashToken(code), stored.CodeHash)
	assert.NotContains(t, stored.CodeHash, code)
	assert.Equal(t, h.clock.Now().Add(10*time.Minute), stored.ExpiresAt)

	msg := h.notifier.last(t)
	assert.Equal(t, "u1@x.com", msg.To)
	assert.Equal(t, "email", msg.Channel)
	assert.Equal(t, code, msg.Code)
}

func TestGenerate_ResendInterval(t *testing.T) {
	h := newHarness(t, nil, nil)
	u := unverifiedUser("u1")
	ctx := context.Background()

	_, err := h.broker.Generate(ctx, u, models.PurposeSignup)
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	_, err = h.broker.Generate(ctx, u, models.PurposeSignup)
	require.ErrorIs(t, err, common.ErrRateLimited)

	_, err = h.broker.Generate(ctx, u, models.PurposeReset)
	require.NoError(t, err, "purposes are limited independently")

	h.clock.Advance(30 * time.Second)
	_, err = h.broker.Generate(ctx, u, models.PurposeSignup)
	require.NoError(t, err)
}

func TestGenerate_SecondCodeInvalidatesFirst(t *testing.T) {
	h := newHarness(t, nil, nil)
	u := unverifiedUser("u1")
	ctx := context.Background()

	first, err := h.broker.Generate(ctx, u, models.PurposeSignup)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	second, err := h.broker.Generate(ctx, u, models.PurposeSignup)
	require.NoError(t, err)

	if first != second {
		err = h.broker.Verify(ctx, "u1", models.PurposeSignup, first, nil)
		require.ErrorIs(t, err, common.ErrCodeMismatch)
	}
	require.NoError(t, h.broker.Verify(ctx, "u1", models.PurposeSignup, second, nil))

	err = h.broker.Verify(ctx, "u1", models.PurposeSignup, first, nil)
	require.ErrorIs(t, err, common.ErrNoPendingCode)
}

func TestVerify_Outcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("no pending code", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		err := h.broker.Verify(ctx, "u1", models.PurposeSignup, "123456", nil)
		require.ErrorIs(t, err, common.ErrNoPendingCode)
	})

	t.Run("expired code is deleted", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		code, err := h.broker.Generate(ctx, unverifiedUser("u1"), models.PurposeSignup)
		require.NoError(t, err)

		h.clock.Advance(10 * time.Minute)
		err = h.broker.Verify(ctx, "u1", models.PurposeSignup, code, nil)
		require.ErrorIs(t, err, common.ErrCodeExpired)

		err = h.broker.Verify(ctx, "u1", models.PurposeSignup, code, nil)
		require.ErrorIs(t, err, common.ErrNoPendingCode)
	})

	t.Run("expired cleanup keeps a code issued meanwhile", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		u := unverifiedUser("u1")
		stale, err := h.broker.Generate(ctx, u, models.PurposeSignup)
		require.NoError(t, err)
		h.clock.Advance(10 * time.Minute)

		var fresh string
		h.store.onCodeConsume = func() {
			fresh, err = h.broker.Generate(ctx, u, models.PurposeSignup)
			require.NoError(t, err)
		}
		require.ErrorIs(t, h.broker.Verify(ctx, "u1", models.PurposeSignup, stale, nil), common.ErrCodeExpired)

		require.NotEmpty(t, fresh)
		require.NoError(t, h.broker.Verify(ctx, "u1", models.PurposeSignup, fresh, nil))
	})

	t.Run("consumed at most once", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		code, err := h.broker.Generate(ctx, unverifiedUser("u1"), models.PurposeSignup)
		require.NoError(t, err)

		calls := 0
		onSuccess := func(ctx context.Context, tx dbx.DBTX) error { calls++; return nil }
		require.NoError(t, h.broker.Verify(ctx, "u1", models.PurposeSignup, code, onSuccess))
		require.ErrorIs(t, h.broker.Verify(ctx, "u1", models.PurposeSignup, code, onSuccess), common.ErrNoPendingCode)
		assert.Equal(t, 1, calls)
	})

	t.Run("wrong purpose", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		code, err := h.broker.Generate(ctx, unverifiedUser("u1"), models.PurposeSignup)
		require.NoError(t, err)
		require.ErrorIs(t, h.broker.Verify(ctx, "u1", models.PurposeReset, code, nil), common.ErrNoPendingCode)
	})
}

func TestVerify_OnSuccessErrorRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := newHarness(t, db, nil)
	code, err := h.broker.Generate(context.Background(), unverifiedUser("u1"), models.PurposeSignup)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = h.broker.Verify(context.Background(), "u1", models.PurposeSignup, code,
		func(ctx context.Context, tx dbx.DBTX) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerify_AttemptLimit(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewRedisLimiter(client, "test", 3, 10*time.Minute)

	h := newHarness(t, nil, limiter)
	ctx := context.Background()
	code, err := h.broker.Generate(ctx, unverifiedUser("u1"), models.PurposeSignup)
	require.NoError(t, err)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, h.broker.Verify(ctx, "u1", models.PurposeSignup, wrong, nil), common.ErrCodeMismatch)
	}

	err = h.broker.Verify(ctx, "u1", models.PurposeSignup, code, nil)
	require.ErrorIs(t, err, common.ErrRateLimited, "correct code is refused once attempts are used up")

	m.FastForward(10 * time.Minute)
	require.NoError(t, h.broker.Verify(ctx, "u1", models.PurposeSignup, code, nil))
}

func TestVerify_ConcurrentGuessesAreLimited(t *testing.T) {
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewRedisLimiter(client, "test", 3, 10*time.Minute)

	h := newHarness(t, nil, limiter)
	ctx := context.Background()
	code, err := h.broker.Generate(ctx, unverifiedUser("u1"), models.PurposeSignup)
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	var mismatched, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := h.broker.Verify(ctx, "u1", models.PurposeSignup, wrong, nil); {
			case errors.Is(err, common.ErrCodeMismatch):
				mismatched.Add(1)
			case errors.Is(err, common.ErrRateLimited):
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), mismatched.Load(), "only maxAttempts guesses reach the compare")
	assert.Equal(t, int32(37), limited.Load())
}

type brokenLimiter struct{ ratelimit.Nop }

func (brokenLimiter) Attempt(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestVerify_LimiterOutageFailsOpen(t *testing.T) {
	h := newHarness(t, nil, brokenLimiter{})
	ctx := context.Background()
	code, err := h.broker.Generate(ctx, unverifiedUser("u1"), models.PurposeSignup)
	require.NoError(t, err)
	require.NoError(t, h.broker.Verify(ctx, "u1", models.PurposeSignup, code, nil))
}
