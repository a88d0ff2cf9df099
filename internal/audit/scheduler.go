package audit

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/metrics"
)

// SchedulerConfig tunes the background audit loop.
type SchedulerConfig struct {
	// Interval between runs. Clamped to MinInterval.
	Interval time.Duration

	// MinInterval is the floor a misconfigured interval cannot go below.
	MinInterval time.Duration

	// IterationTimeout bounds one run. A timeout cancels only that run,
	// never the loop.
	IterationTimeout time.Duration

	// JitterFraction randomizes delays by ±fraction. Values outside [0, 1)
	// disable jitter.
	JitterFraction float64

	// Repair enqueues Missing and Drift findings after each verify.
	Repair bool
}

// DefaultSchedulerConfig returns the audit loop defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:         24 * time.Hour,
		MinInterval:      time.Hour,
		IterationTimeout: 10 * time.Minute,
		JitterFraction:   0.1,
		Repair:           true,
	}
}

func (c SchedulerConfig) normalized() SchedulerConfig {
	if c.MinInterval <= 0 {
		c.MinInterval = time.Hour
	}
	if c.Interval < c.MinInterval {
		c.Interval = c.MinInterval
	}
	if c.IterationTimeout <= 0 {
		c.IterationTimeout = 10 * time.Minute
	}
	if c.JitterFraction < 0 || c.JitterFraction >= 1 {
		c.JitterFraction = 0
	}
	return c
}

// Scheduler runs the verifier on a jittered interval. Failures back off,
// panics are contained, and only cancellation ends the loop.
type Scheduler struct {
	verifier *Verifier
	cfg      SchedulerConfig
	gate     *async.Gate
	logger   *slog.Logger
	kick     chan struct{}

	failures int
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerGate attaches a pause gate honored before each run starts.
func WithSchedulerGate(g *async.Gate) SchedulerOption {
	return func(s *Scheduler) {
		s.gate = g
	}
}

// WithSchedulerLogger sets the logger. Defaults to slog.Default().
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a scheduler around the verifier.
func NewScheduler(v *Verifier, cfg SchedulerConfig, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		verifier: v,
		cfg:      cfg.normalized(),
		logger:   slog.Default(),
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the normalized scheduler configuration.
func (s *Scheduler) Config() SchedulerConfig {
	return s.cfg
}

// Kick schedules an early run, typically after the analyzer configuration
// changed on disk. Non-blocking; a pending kick already covers it.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run drives audit runs until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("audit_scheduler_started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("iteration_timeout", s.cfg.IterationTimeout),
		slog.Bool("repair", s.cfg.Repair))

	// The first run is spread out so a restarted fleet does not audit in
	// lockstep; a kick still forces it early.
	delay := s.initialDelay()

	for {
		if err := s.waitNext(ctx, delay); err != nil {
			s.logger.Info("audit_scheduler_stopped")
			return err
		}

		if err := s.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("audit_scheduler_stopped")
				return ctx.Err()
			}
			s.failures++
			delay = s.failureDelay()
			s.logger.Warn("audit_iteration_failed",
				slog.Int("consecutive_failures", s.failures),
				slog.Duration("retry_in", delay),
				slog.String("error", err.Error()))
			continue
		}

		s.failures = 0
		delay = async.Jitter(s.cfg.Interval, s.cfg.JitterFraction)
	}
}

// iterate executes one bounded audit run. The timeout cancels the run, not
// the host context, and a panic is converted into an ordinary failure.
func (s *Scheduler) iterate(parent context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.AuditRunsTotal.WithLabelValues("error").Inc()
			s.logger.Error("audit_iteration_panic", slog.Any("panic", r))
			err = fmt.Errorf("audit iteration panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, s.cfg.IterationTimeout)
	defer cancel()

	_, _, err = s.verifier.RunOnce(ctx, s.cfg.Repair)
	return err
}

// waitNext blocks for the delay, a kick, or cancellation, then waits out any
// pause before letting the next run start.
func (s *Scheduler) waitNext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case <-s.kick:
		s.logger.Info("audit_kicked")
	}

	if s.gate == nil {
		return nil
	}
	return s.gate.AwaitRunning(ctx)
}

// failureDelay implements the consecutive-failure backoff: 5s doubling per
// failure, capped at two minutes, jittered.
func (s *Scheduler) failureDelay() time.Duration {
	exp := s.failures - 1
	if exp < 0 {
		exp = 0
	}
	if exp > 5 {
		exp = 5
	}
	d := 5 * time.Second * time.Duration(1<<uint(exp))
	if d > 2*time.Minute {
		d = 2 * time.Minute
	}
	return async.Jitter(d, s.cfg.JitterFraction)
}

func (s *Scheduler) initialDelay() time.Duration {
	if s.cfg.JitterFraction <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * s.cfg.JitterFraction * float64(s.cfg.Interval))
}
