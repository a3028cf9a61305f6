package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/sethvargo/go-retry"
)

// Dispatcher queues messages and sends them from a fixed pool of workers,
// retrying failures with exponential backoff. Enqueue never blocks.
type Dispatcher struct {
	sender     Sender
	log        logging.Logger
	metrics    *metrics.Metrics
	queue      chan Message
	workers    int
	maxRetries uint64
	baseDelay  time.Duration
	drainFor   time.Duration

	wg sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) { d.workers = n }
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.queue = make(chan Message, n) }
}

func WithRetry(maxRetries uint64, base time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxRetries = maxRetries
		d.baseDelay = base
	}
}

// WithDrainTimeout bounds how long workers keep sending queued messages
// after shutdown starts.
func WithDrainTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.drainFor = d }
}

func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(sender Sender, log logging.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sender:     sender,
		log:        log.With("module", "dispatcher"),
		queue:      make(chan Message, 256),
		workers:    4,
		maxRetries: 5,
		baseDelay:  200 * time.Millisecond,
		drainFor:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue schedules msg for delivery. A full queue drops the message.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) bool {
	select {
	case d.queue <- msg:
		return true
	default:
		d.log.Warn(ctx, "delivery queue full, message dropped", "to", msg.To, "purpose", msg.Purpose)
		d.metrics.ObserveDelivery("dropped")
		return false
	}
}

// Start launches the workers. When ctx is cancelled they send what is still
// queued, for at most the drain timeout, and exit; Wait blocks until they
// have.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.work(ctx)
		}()
	}
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx)
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) drain(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.drainFor)
	defer cancel()
	for {
		if ctx.Err() != nil {
			if n := len(d.queue); n > 0 {
				d.log.Warn(parent, "shutdown drain timed out, messages dropped", "queued", n)
			}
			return
		}
		select {
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	b := retry.WithMaxRetries(d.maxRetries, retry.WithJitterPercent(10, retry.NewExponential(d.baseDelay)))
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := d.sender.Send(ctx, msg); err != nil {
			d.log.Debug(ctx, "delivery attempt failed", "to", msg.To, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.log.Error(ctx, "delivery failed", "to", msg.To, "purpose", msg.Purpose, "attempts", attempt, "error", err)
		d.metrics.ObserveDelivery("failed")
		return
	}
	d.metrics.ObserveDelivery("sent")
}
