package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const grace = 48 * time.Hour

func newTestSweeper(t *testing.T, store *memStore, clock *testClock, batch int) *Sweeper {
	t.Helper()
	s := NewSweeper(newTxDB(t), &fakeRepoManager{s: store}, grace, batch, metrics.New(), logging.Nop{})
	s.now = clock.Now
	return s
}

func seedUser(store *memStore, id string, role models.Role, status models.Status, createdAt time.Time) {
	store.putUser(&models.User{ID: id, Identity: id, Role: role, Status: status, Active: true, CreatedAt: createdAt})
}

func TestSweep_DeletesOnlyStaleUnverifiedNonAdmins(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemStore()
	old := clock.now.Add(-grace - time.Hour)

	seedUser(store, "stale", models.RoleUser, models.StatusUnverified, old)
	seedUser(store, "stale-admin", models.RoleAdmin, models.StatusUnverified, old.Add(-365*24*time.Hour))
	seedUser(store, "stale-verified", models.RoleUser, models.StatusVerified, old)
	seedUser(store, "fresh", models.RoleUser, models.StatusUnverified, clock.now.Add(-time.Hour))

	report, err := newTestSweeper(t, store, clock, 10).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, clock.now, report.StartedAt)
	assert.Equal(t, clock.now.Add(-grace), report.Cutoff)

	assert.Nil(t, store.user("stale"))
	assert.NotNil(t, store.user("stale-admin"))
	assert.NotNil(t, store.user("stale-verified"))
	assert.NotNil(t, store.user("fresh"))
}

func TestSweep_CutoffIsFixedAtStart(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemStore()
	start := clock.now

	for i := 0; i < 5; i++ {
		seedUser(store, fmt.Sprintf("old-%d", i), models.RoleUser, models.StatusUnverified, start.Add(-grace-time.Duration(i+1)*time.Minute))
	}

	// Between pages the clock moves past the grace boundary of a user that
	// signed up just after the cutoff. It must survive this sweep.
	seedUser(store, "borderline", models.RoleUser, models.StatusUnverified, start.Add(-grace+time.Second))
	store.onList = func() { clock.Advance(time.Hour) }

	report, err := newTestSweeper(t, store, clock, 2).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Deleted)
	assert.NotNil(t, store.user("borderline"))
	assert.Equal(t, start.Add(-grace), report.Cutoff)
}

func TestSweep_SkipsFailuresAndContinues(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemStore()
	old := clock.now.Add(-grace - time.Hour)

	for i := 0; i < 6; i++ {
		seedUser(store, fmt.Sprintf("u%d", i), models.RoleUser, models.StatusUnverified, old.Add(time.Duration(i)*time.Second))
	}
	store.deleteUserErr["u0"] = errors.New("lock timeout")
	store.deleteUserErr["u1"] = errors.New("lock timeout")

	report, err := newTestSweeper(t, store, clock, 2).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Deleted)
	assert.Equal(t, 2, report.Skipped)
	assert.NotNil(t, store.user("u0"))
	assert.NotNil(t, store.user("u1"))
	for i := 2; i < 6; i++ {
		assert.Nil(t, store.user(fmt.Sprintf("u%d", i)))
	}
}

func TestSweep_PurgesExpiredTokensAndCodes(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemStore()
	ctx := context.Background()

	require.NoError(t, memTokens{store}.Create(ctx, &models.RefreshToken{TokenHash: "old", ExpiresAt: clock.now.Add(-time.Second)}))
	require.NoError(t, memTokens{store}.Create(ctx, &models.RefreshToken{TokenHash: "live", ExpiresAt: clock.now.Add(time.Hour)}))
	require.NoError(t, memCodes{store}.Replace(ctx, &models.VerificationCode{UserID: "u", Purpose: models.PurposeSignup, ExpiresAt: clock.now.Add(-time.Minute)}, clock.now))

	report, err := newTestSweeper(t, store, clock, 10).Run(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, report.ExpiredTokens)
	assert.EqualValues(t, 1, report.ExpiredCodes)
	assert.Len(t, store.tokens, 1)
}

func TestSweep_CancelledContext(t *testing.T) {
	clock := &testClock{now: time.Now()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestSweeper(t, newMemStore(), clock, 10).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
