// Package jobs runs background work on a fixed interval, independent of
// request handling.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type jobFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (j jobFunc) Name() string                  { return j.name }
func (j jobFunc) Run(ctx context.Context) error { return j.fn(ctx) }

// Func adapts fn to Job.
func Func(name string, fn func(ctx context.Context) error) Job {
	return jobFunc{name: name, fn: fn}
}

// Scheduler runs one Job every interval. A tick that arrives while the
// previous run is still going is dropped.
type Scheduler struct {
	job        Job
	interval   time.Duration
	runOnStart bool
	log        logging.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewScheduler(job Job, interval time.Duration, runOnStart bool, log logging.Logger) *Scheduler {
	return &Scheduler{
		job:        job,
		interval:   interval,
		runOnStart: runOnStart,
		log:        log.With("module", "scheduler", "job", job.Name()),
	}
}

// Run blocks until ctx is cancelled, then waits for an in-flight run.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.wg.Wait()

	if s.interval <= 0 {
		s.log.Info(ctx, "scheduler disabled")
		return
	}

	if s.runOnStart {
		s.trigger(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn(ctx, "previous run still in progress, tick dropped")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		if err := s.job.Run(ctx); err != nil {
			s.log.Error(ctx, "job failed", "error", err)
		}
	}()
}
