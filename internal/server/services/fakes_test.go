package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/delivery"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/verificationcodes"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// memStore is an in-memory stand-in for the three tables. It mirrors the
// conditional semantics of the Postgres repositories.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*models.User
	codes  map[string]*models.VerificationCode
	tokens map[string]*models.RefreshToken

	deleteUserErr map[string]error
	onList        func()
	onCodeConsume func()
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]*models.User{},
		codes:         map[string]*models.VerificationCode{},
		tokens:        map[string]*models.RefreshToken{},
		deleteUserErr: map[string]error{},
	}
}

func codeKey(userID string, p models.Purpose) string { return userID + "/" + string(p) }

func (s *memStore) putUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *memStore) user(id string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Identity == u.Identity {
			return nil, common.ErrConflict
		}
	}
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = cp.CreatedAt
	r.s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u := r.s.user(id); u != nil {
		return u, nil
	}
	return nil, common.ErrNotFound
}

func (r memUsers) FindByIdentity(ctx context.Context, identity string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Identity == identity {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memUsers) MarkVerified(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.Status != models.StatusUnverified {
		return common.ErrNotFound
	}
	u.Status = models.StatusVerified
	return nil
}

func (r memUsers) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r memUsers) SetActive(ctx context.Context, id string, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.Active = active
	return nil
}

func (r memUsers) SetRole(ctx context.Context, id string, role models.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrNotFound
	}
	u.Role = role
	return nil
}

func (r memUsers) filtered(f users.ListFilter) []*models.User {
	var out []*models.User
	for _, u := range r.s.users {
		if f.Status == "" || u.Status == f.Status {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r memUsers) List(ctx context.Context, f users.ListFilter) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.filtered(f)
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memUsers) Count(ctx context.Context, f users.ListFilter) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.filtered(f)), nil
}

func (r memUsers) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.users, id)
	for h, t := range r.s.tokens {
		if t.UserID == id {
			delete(r.s.tokens, h)
		}
	}
	for k, c := range r.s.codes {
		if c.UserID == id {
			delete(r.s.codes, k)
		}
	}
	return nil
}

func (r memUsers) ListUnverifiedCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.User, error) {
	if r.s.onList != nil {
		r.s.onList()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.User
	for _, u := range r.s.users {
		if u.Status == models.StatusUnverified && u.Role != models.RoleAdmin && u.CreatedAt.Before(cutoff) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memUsers) DeleteUnverifiedCreatedBefore(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.deleteUserErr[id]; err != nil {
		return false, err
	}
	u, ok := r.s.users[id]
	if !ok || u.Status != models.StatusUnverified || u.Role == models.RoleAdmin || !u.CreatedAt.Before(cutoff) {
		return false, nil
	}
	delete(r.s.users, id)
	return true, nil
}

type memTokens struct{ s *memStore }

func (r memTokens) Create(ctx context.Context, t *models.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[t.TokenHash]; ok {
		return common.ErrConflict
	}
	cp := *t
	r.s.tokens[t.TokenHash] = &cp
	return nil
}

func (r memTokens) Consume(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[hash]
	if !ok || !t.ExpiresAt.After(now) {
		return nil, common.ErrNotFound
	}
	delete(r.s.tokens, hash)
	return t, nil
}

func (r memTokens) Delete(ctx context.Context, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.tokens, hash)
	return nil
}

func (r memTokens) DeleteByUser(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, h)
		}
	}
	return nil
}

func (r memTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for h, t := range r.s.tokens {
		if !t.ExpiresAt.After(now) {
			delete(r.s.tokens, h)
			n++
		}
	}
	return n, nil
}

type memCodes struct{ s *memStore }

func (r memCodes) Replace(ctx context.Context, c *models.VerificationCode, notBefore time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := codeKey(c.UserID, c.Purpose)
	if old, ok := r.s.codes[k]; ok && old.CreatedAt.After(notBefore) {
		return common.ErrRateLimited
	}
	cp := *c
	r.s.codes[k] = &cp
	return nil
}

func (r memCodes) Find(ctx context.Context, userID string, p models.Purpose) (*models.VerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[codeKey(userID, p)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memCodes) Consume(ctx context.Context, userID string, p models.Purpose, hash string) error {
	if hook := r.s.onCodeConsume; hook != nil {
		r.s.onCodeConsume = nil
		hook()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := codeKey(userID, p)
	c, ok := r.s.codes[k]
	if !ok || c.CodeHash != hash {
		return common.ErrNotFound
	}
	delete(r.s.codes, k)
	return nil
}

func (r memCodes) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, c := range r.s.codes {
		if c.Expired(now) {
			delete(r.s.codes, k)
			n++
		}
	}
	return n, nil
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository          { return memUsers{m.s} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return memTokens{m.s}
}
func (m *fakeRepoManager) VerificationCodes(dbx.DBTX) verificationcodes.Repository {
	return memCodes{m.s}
}

// captureNotifier records queued messages instead of delivering them.
type captureNotifier struct {
	mu   sync.Mutex
	msgs []delivery.Message
}

func (n *captureNotifier) Enqueue(ctx context.Context, msg delivery.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return true
}

func (n *captureNotifier) last(t *testing.T) delivery.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.msgs, "no message queued")
	return n.msgs[len(n.msgs)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type harness struct {
	store    *memStore
	clock    *testClock
	notifier *captureNotifier
	broker   *VerificationBroker
	svc      *UserService
}

func newHarness(t *testing.T, db *sql.DB, limiter ratelimit.AttemptLimiter) *harness {
	t.Helper()
	if db == nil {
		db = newTxDB(t)
	}
	h := &harness{
		store:    newMemStore(),
		clock:    &testClock{now: time.Now().Truncate(time.Second)},
		notifier: &captureNotifier{},
	}
	rm := &fakeRepoManager{s: h.store}

	h.broker = NewVerificationBroker(db, rm, h.notifier, limiter, 10*time.Minute, time.Minute, logging.Nop{})
	h.broker.now = h.clock.Now

	issuer := auth.NewIssuer([]byte("k"), 15*time.Minute, time.Hour, auth.WithClock(h.clock.Now), auth.WithLeeway(5*time.Second))
	h.svc = NewUserService(db, rm, issuer, auth.NewPasswordHasher(bcrypt.MinCost), h.broker, "US", logging.Nop{})
	h.svc.now = h.clock.Now
	return h
}
