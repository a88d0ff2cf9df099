package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/indexwarden/internal/async"
	iwerrors "github.com/Aman-CERP/indexwarden/internal/errors"
	"github.com/Aman-CERP/indexwarden/internal/event"
	"github.com/Aman-CERP/indexwarden/internal/metrics"
)

// applyShutdownTimeout bounds the batch write that still runs after the
// dispatcher's context is cancelled. Results already earned are persisted
// even when shutdown interrupts the cycle.
const applyShutdownTimeout = 5 * time.Second

// Config tunes the dispatcher. Zero fields fall back to defaults.
type Config struct {
	// PollInterval is how long the loop sleeps after an empty cycle.
	PollInterval time.Duration

	// BatchSize caps how many entries one cycle delivers.
	BatchSize int

	// MaxAttempts is the delivery budget per entry. An entry reaching it is
	// retained for inspection but never dispatched again.
	MaxAttempts int

	// InitialBackoff is the delay after the first failed attempt and the
	// floor for all later delays.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential delay growth.
	MaxBackoff time.Duration
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		BatchSize:      50,
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = def.MaxBackoff
	}
	return c
}

// backoffDelay returns how long an entry must age before its next attempt:
// min(MaxBackoff, InitialBackoff*(2^attempts-1)), floored at InitialBackoff.
// Zero attempts means the entry has never been tried and is always ready.
func (c Config) backoffDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	if attempts >= 63 {
		return c.MaxBackoff
	}
	factor := (int64(1) << uint(attempts)) - 1
	if c.InitialBackoff > 0 && factor > int64(c.MaxBackoff/c.InitialBackoff) {
		return c.MaxBackoff
	}
	delay := c.InitialBackoff * time.Duration(factor)
	if delay < c.InitialBackoff {
		delay = c.InitialBackoff
	}
	if delay > c.MaxBackoff {
		delay = c.MaxBackoff
	}
	return delay
}

// ReadyAt returns the earliest time the entry may be dispatched again.
func (c Config) ReadyAt(e Entry) time.Time {
	return e.CreatedAt.Add(c.backoffDelay(e.Attempts))
}

// Dispatcher drains the outbox as a single logical worker: load candidates,
// gate them on backoff readiness, publish in creation order, persist the
// outcome as one batch.
type Dispatcher struct {
	store  Store
	pub    Publisher
	cfg    Config
	gate   *async.Gate
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithGate attaches a pause gate. The dispatcher blocks at its idle points
// while the gate is paused.
func WithGate(g *async.Gate) Option {
	return func(d *Dispatcher) {
		d.gate = g
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithNow overrides the readiness clock.
func WithNow(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a dispatcher over the given store and publisher.
func NewDispatcher(store Store, pub Publisher, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		pub:    pub,
		cfg:    cfg.normalized(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the normalized dispatcher configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Run drives dispatch cycles until the context is cancelled. An empty cycle
// sleeps the poll interval; a productive one loops immediately. Store and
// publish errors are logged and retried, never fatal.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("outbox_dispatcher_started",
		slog.Duration("poll_interval", d.cfg.PollInterval),
		slog.Int("batch_size", d.cfg.BatchSize),
		slog.Int("max_attempts", d.cfg.MaxAttempts))

	for {
		delivered, err := d.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("outbox_dispatcher_stopped")
				return ctx.Err()
			}
			d.logger.Error("outbox_dispatch_failed", slog.String("error", err.Error()))
			delivered = 0
		}

		// A productive cycle goes straight into the next one; the
		// zero-duration wait is still a pause point and cancel check.
		wait := d.cfg.PollInterval
		if delivered > 0 {
			wait = 0
		}
		if err := async.Wait(ctx, d.gate, wait); err != nil {
			d.logger.Info("outbox_dispatcher_stopped")
			return err
		}
	}
}

// RunOnce executes a single dispatch cycle and returns how many entries were
// delivered. Safe to call directly for one-shot draining.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	now := d.now()

	candidates, err := d.store.Candidates(ctx, d.cfg.BatchSize*4, d.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("load outbox candidates: %w", err)
	}
	metrics.OutboxPending.Set(float64(len(candidates)))

	// FIFO among ready entries: candidates arrive oldest first and the
	// filter preserves that order. Untried entries are ready regardless of
	// CreatedAt, so writer clock skew cannot delay a first attempt.
	ready := make([]Entry, 0, len(candidates))
	for _, e := range candidates {
		if e.Attempts == 0 || !now.Before(d.cfg.ReadyAt(e)) {
			ready = append(ready, e)
		}
	}
	if len(ready) > d.cfg.BatchSize {
		ready = ready[:d.cfg.BatchSize]
	}

	var batch Batch
	for _, e := range ready {
		ev, err := event.Decode(e.Kind, e.Payload)
		if err != nil {
			d.fail(&batch, e, "decode", err)
			continue
		}

		err = d.pub.Publish(ctx, ev)
		if err == nil {
			batch.Delivered = append(batch.Delivered, e.ID)
			metrics.OutboxDeliveredTotal.Inc()
			metrics.OutboxDeliveryLatency.Observe(now.Sub(e.CreatedAt).Seconds())
			continue
		}

		if errors.Is(err, iwerrors.ErrCircuitOpen) {
			// The consumer is down. Abandon the rest of the cycle
			// without charging attempts to entries never tried.
			d.logger.Warn("outbox_circuit_open",
				slog.Int("untried", len(ready)-len(batch.Delivered)-len(batch.Failed)))
			break
		}

		d.fail(&batch, e, "publish", err)

		if ctx.Err() != nil {
			break
		}
	}

	if !batch.Empty() {
		applyCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			applyCtx, cancel = context.WithTimeout(context.Background(), applyShutdownTimeout)
			defer cancel()
		}
		if err := d.store.Apply(applyCtx, batch); err != nil {
			return 0, fmt.Errorf("apply outbox batch: %w", err)
		}
		d.logger.Debug("outbox_batch_applied",
			slog.Int("delivered", len(batch.Delivered)),
			slog.Int("failed", len(batch.Failed)),
			slog.Duration("duration", time.Since(start)))
	}

	metrics.OutboxDispatchDuration.Observe(time.Since(start).Seconds())
	return len(batch.Delivered), nil
}

// fail records a per-entry delivery failure. The increment that exhausts an
// entry's budget is reported at error severity; candidates exclude exhausted
// entries, so that report fires exactly once per entry.
func (d *Dispatcher) fail(batch *Batch, e Entry, stage string, err error) {
	attempts := e.Attempts + 1
	batch.Failed = append(batch.Failed, Failure{
		ID:        e.ID,
		Attempts:  attempts,
		LastError: err.Error(),
	})
	metrics.OutboxFailuresTotal.WithLabelValues(stage).Inc()

	if attempts >= d.cfg.MaxAttempts {
		metrics.OutboxExhaustedTotal.Inc()
		d.logger.Error("outbox_entry_exhausted",
			slog.String("id", e.ID.String()),
			slog.String("kind", e.Kind),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
		return
	}
	d.logger.Warn("outbox_delivery_failed",
		slog.String("id", e.ID.String()),
		slog.String("kind", e.Kind),
		slog.String("stage", stage),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()))
}

// GuardedPublisher wraps a Publisher in a circuit breaker so a dead consumer
// fails fast instead of burning delivery attempts.
type GuardedPublisher struct {
	inner Publisher
	cb    *iwerrors.CircuitBreaker
}

// NewGuardedPublisher wraps pub with the given breaker.
func NewGuardedPublisher(pub Publisher, cb *iwerrors.CircuitBreaker) *GuardedPublisher {
	return &GuardedPublisher{inner: pub, cb: cb}
}

// Publish implements Publisher. While the breaker is open it returns
// ErrCircuitOpen without calling the consumer.
func (p *GuardedPublisher) Publish(ctx context.Context, ev event.Event) error {
	return p.cb.Execute(func() error {
		return p.inner.Publish(ctx, ev)
	})
}
