package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

// SweepReport summarises one run of the cleanup sweep.
type SweepReport struct {
	StartedAt     time.Time
	Cutoff        time.Time
	Deleted       int
	Skipped       int
	ExpiredTokens int64
	ExpiredCodes  int64
	Duration      time.Duration
}

// Sweeper deletes accounts that stayed unverified past the grace period and
// purges expired refresh tokens and codes. Admins are never deleted.
type Sweeper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	grace       time.Duration
	batchSize   int
	metrics     *metrics.Metrics
	log         logging.Logger
	now         func() time.Time
}

func NewSweeper(db *sql.DB, m repomanager.RepositoryManager, grace time.Duration, batchSize int,
	mx *metrics.Metrics, log logging.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Sweeper{
		db:          db,
		repomanager: m,
		grace:       grace,
		batchSize:   batchSize,
		metrics:     mx,
		log:         log.With("module", "sweeper"),
		now:         time.Now,
	}
}

func (s *Sweeper) Name() string { return "unverified-sweep" }

// Run performs one sweep. The cutoff is fixed from the start time, so users
// that sign up while the sweep is running are never eligible. A user whose
// conditional delete fails or matches nothing is logged and skipped.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	start := s.now()
	report := SweepReport{StartedAt: start, Cutoff: start.Add(-s.grace)}

	err := s.sweepUsers(ctx, &report)
	if err == nil {
		s.purge(ctx, &report)
	}

	report.Duration = s.now().Sub(start)
	s.metrics.ObserveSweep(report.Deleted, report.Skipped, report.Duration, err)
	if err != nil {
		s.log.Error(ctx, "sweep aborted", "deleted", report.Deleted, "skipped", report.Skipped, "error", err)
		return report, err
	}

	s.log.Info(ctx, "sweep finished",
		"cutoff", report.Cutoff, "deleted", report.Deleted, "skipped", report.Skipped,
		"expired_tokens", report.ExpiredTokens, "expired_codes", report.ExpiredCodes,
		"duration", report.Duration)
	return report, nil
}

func (s *Sweeper) sweepUsers(ctx context.Context, report *SweepReport) error {
	repo := s.repomanager.Users(s.db)
	skipped := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Skipped users may still match, so widen the page to see past them.
		limit := s.batchSize + len(skipped)
		batch, err := repo.ListUnverifiedCreatedBefore(ctx, report.Cutoff, limit)
		if err != nil {
			return fmt.Errorf("list unverified users: %w", err)
		}

		fresh := 0
		for _, u := range batch {
			if _, seen := skipped[u.ID]; seen {
				continue
			}
			fresh++

			deleted, err := repo.DeleteUnverifiedCreatedBefore(ctx, u.ID, report.Cutoff)
			switch {
			case err != nil:
				s.log.Warn(ctx, "could not delete unverified user", "user_id", u.ID, "error", err)
			case !deleted:
				s.log.Info(ctx, "user changed during sweep, skipped", "user_id", u.ID)
			default:
				report.Deleted++
				continue
			}
			skipped[u.ID] = struct{}{}
			report.Skipped++
		}

		if fresh == 0 || len(batch) < limit {
			return nil
		}
	}
}

func (s *Sweeper) purge(ctx context.Context, report *SweepReport) {
	n, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, report.StartedAt)
	if err != nil {
		s.log.Warn(ctx, "purge expired refresh tokens", "error", err)
	}
	report.ExpiredTokens = n

	n, err = s.repomanager.VerificationCodes(s.db).DeleteExpired(ctx, report.StartedAt)
	if err != nil {
		s.log.Warn(ctx, "purge expired codes", "error", err)
	}
	report.ExpiredCodes = n
}
