package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/delivery"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

// Notifier accepts codes for asynchronous delivery. *delivery.Dispatcher
// implements it.
type Notifier interface {
	Enqueue(ctx context.Context, msg delivery.Message) bool
}

// VerificationBroker issues one-time codes and checks them. At most one code
// is outstanding per (user, purpose); issuing a new one replaces the old.
type VerificationBroker struct {
	db             *sql.DB
	repomanager    repomanager.RepositoryManager
	notifier       Notifier
	limiter        ratelimit.AttemptLimiter
	metrics        *metrics.Metrics
	log            logging.Logger
	ttl            time.Duration
	resendInterval time.Duration
	now            func() time.Time
}

func NewVerificationBroker(db *sql.DB, m repomanager.RepositoryManager, notifier Notifier,
	limiter ratelimit.AttemptLimiter, ttl, resendInterval time.Duration, log logging.Logger) *VerificationBroker {
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	return &VerificationBroker{
		db:             db,
		repomanager:    m,
		notifier:       notifier,
		limiter:        limiter,
		log:            log.With("module", "broker"),
		ttl:            ttl,
		resendInterval: resendInterval,
		now:            time.Now,
	}
}

func (b *VerificationBroker) WithMetrics(m *metrics.Metrics) *VerificationBroker {
	b.metrics = m
	return b
}

// Generate stores a fresh code for (user, purpose) and queues it for
// delivery. It fails with common.ErrRateLimited when the previous code is
// younger than the resend interval. Delivery problems never fail Generate.
func (b *VerificationBroker) Generate(ctx context.Context, user *models.User, purpose models.Purpose) (string, error) {
	msg, err := b.issue(ctx, b.db, user, purpose)
	if err != nil {
		return "", err
	}
	b.dispatch(ctx, msg)
	return msg.Code, nil
}

// issue persists a code through db, which may be an open transaction, and
// returns the message to dispatch once the caller has committed.
func (b *VerificationBroker) issue(ctx context.Context, db dbx.DBTX, user *models.User, purpose models.Purpose) (*delivery.Message, error) {
	code, err := common.MakeRandDigits(common.VerificationCodeDigits)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := b.now()
	rec := &models.VerificationCode{
		UserID:    user.ID,
		Purpose:   purpose,
		CodeHash:  common.HashToken(code),
		ExpiresAt: now.Add(b.ttl),
		CreatedAt: now,
	}
	if err := b.repomanager.VerificationCodes(db).Replace(ctx, rec, now.Add(-b.resendInterval)); err != nil {
		if errors.Is(err, common.ErrRateLimited) {
			return nil, err
		}
		return nil, fmt.Errorf("store verification code: %w", err)
	}

	b.metrics.ObserveCodeIssued(string(purpose))
	return &delivery.Message{
		Channel:   user.IdentityKind,
		To:        user.Identity,
		Purpose:   string(purpose),
		Code:      code,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func (b *VerificationBroker) dispatch(ctx context.Context, msg *delivery.Message) {
	if b.notifier == nil {
		return
	}
	if !b.notifier.Enqueue(ctx, *msg) {
		b.log.Warn(ctx, "verification code not queued for delivery", "purpose", msg.Purpose)
	}
}

// Verify checks code against the outstanding one for (userID, purpose). On a
// match the code is consumed and onSuccess runs in the same transaction; if
// onSuccess fails the code stays valid.
func (b *VerificationBroker) Verify(ctx context.Context, userID string, purpose models.Purpose, code string,
	onSuccess func(ctx context.Context, tx dbx.DBTX) error) error {
	key := userID + ":" + string(purpose)

	allowed, err := b.limiter.Attempt(ctx, key)
	if err != nil {
		b.log.Warn(ctx, "attempt limiter unavailable", "error", err)
		allowed = true
	}
	if !allowed {
		return common.ErrRateLimited
	}

	repo := b.repomanager.VerificationCodes(b.db)
	rec, err := repo.Find(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNoPendingCode
		}
		return fmt.Errorf("find verification code: %w", err)
	}

	if rec.Expired(b.now()) {
		// only the row that was read; a resend may have replaced it since
		if err := repo.Consume(ctx, userID, purpose, rec.CodeHash); err != nil && !errors.Is(err, common.ErrNotFound) {
			b.log.Warn(ctx, "delete expired code", "user_id", userID, "error", err)
		}
		return common.ErrCodeExpired
	}

	hash := common.HashToken(code)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(rec.CodeHash)) != 1 {
		return common.ErrCodeMismatch
	}

	err = dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := b.repomanager.VerificationCodes(tx).Consume(ctx, userID, purpose, hash); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				// replaced or consumed since Find
				return common.ErrNoPendingCode
			}
			return err
		}
		if onSuccess == nil {
			return nil
		}
		return onSuccess(ctx, tx)
	})
	if err != nil {
		return err
	}

	if err := b.limiter.Reset(ctx, key); err != nil {
		b.log.Warn(ctx, "reset attempt counter", "error", err)
	}
	return nil
}
