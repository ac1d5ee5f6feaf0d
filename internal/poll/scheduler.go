package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Backoff for consecutive failures. Threshold: 3 consecutive failures
// before any backoff is added to the poll interval.
const (
	backoffThreshold = 3
	backoffMaxCap    = 1 * time.Hour
)

// backoffSteps maps consecutive failure counts (starting at the threshold)
// to their backoff durations: 3→1m, 4→5m, 5→15m, 6+→1h.
var backoffSteps = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	backoffMaxCap,
}

// backoffDuration returns the extra delay for the given number of
// consecutive failures. Returns 0 below backoffThreshold.
func backoffDuration(failures int) time.Duration {
	if failures < backoffThreshold {
		return 0
	}

	idx := failures - backoffThreshold
	if idx >= len(backoffSteps) {
		return backoffMaxCap
	}

	return backoffSteps[idx]
}

// Runner is what the scheduler drives. Implemented by *Source.
type Runner interface {
	Name() string
	Activate(ctx context.Context) (*RunReport, error)
	Run(ctx context.Context) (*RunReport, error)
}

// Schedule pairs a runner with its poll interval.
type Schedule struct {
	Runner   Runner
	Interval time.Duration
}

// waitFunc blocks for d, or until trigger fires or ctx ends. Returns false
// when ctx ended.
type waitFunc func(ctx context.Context, d time.Duration, trigger <-chan struct{}) bool

// Scheduler runs many sources, each on its own interval. One source never
// overlaps itself; different sources run concurrently. A panic or error in
// one source does not affect the others.
type Scheduler struct {
	schedules []Schedule
	logger    *slog.Logger
	wait      waitFunc

	mu       sync.Mutex
	triggers map[string]chan struct{}

	// OnReport, when set, receives every finished run report.
	OnReport func(*RunReport)
}

// NewScheduler creates a scheduler for the given schedules.
func NewScheduler(schedules []Schedule, logger *slog.Logger) *Scheduler {
	triggers := make(map[string]chan struct{}, len(schedules))
	for _, s := range schedules {
		triggers[s.Runner.Name()] = make(chan struct{}, 1)
	}

	return &Scheduler{
		schedules: schedules,
		logger:    logger,
		wait:      timerWait,
		triggers:  triggers,
	}
}

// Trigger requests an immediate run of the named source. Returns false for
// unknown names. Repeated triggers before the run starts collapse into one.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	ch, ok := s.triggers[name]
	s.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case ch <- struct{}{}:
	default:
	}

	return true
}

// Run drives every schedule until ctx is canceled. It returns nil on
// cancellation; individual source failures are logged, never returned.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.schedules) == 0 {
		return errors.New("poll: no sources to schedule")
	}

	s.logger.Info("scheduler starting", slog.Int("sources", len(s.schedules)))

	g, gctx := errgroup.WithContext(ctx)

	for _, sched := range s.schedules {
		g.Go(func() error {
			s.loop(gctx, sched)
			return nil
		})
	}

	err := g.Wait()

	s.logger.Info("scheduler stopped")

	return err
}

// loop activates the source if needed, then runs it every interval.
func (s *Scheduler) loop(ctx context.Context, sched Schedule) {
	name := sched.Runner.Name()
	logger := s.logger.With(slog.String("source", name))

	s.mu.Lock()
	trigger := s.triggers[name]
	s.mu.Unlock()

	activated := false
	failures := 0

	for {
		fn := sched.Runner.Run
		if !activated {
			fn = sched.Runner.Activate
		}

		rep, err := safeRun(ctx, name, fn)
		if rep != nil && s.OnReport != nil {
			s.OnReport(rep)
		}

		switch {
		case err == nil:
			activated = true
			failures = 0
		case ctx.Err() != nil:
			return
		case !Retryable(err):
			logger.Error("source misconfigured, not scheduling again",
				slog.String("error", err.Error()),
			)

			return
		default:
			failures++
		}

		delay := sched.Interval + backoffDuration(failures)
		if failures > 0 {
			logger.Warn("run failed, will retry",
				slog.Int("consecutive_failures", failures),
				slog.Duration("next_in", delay),
			)
		}

		if !s.wait(ctx, delay, trigger) {
			return
		}
	}
}

// safeRun executes fn with panic recovery.
func safeRun(ctx context.Context, name string, fn func(context.Context) (*RunReport, error)) (rep *RunReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			rep = nil
			err = fmt.Errorf("poll: panic in source %s: %v", name, r)
		}
	}()

	return fn(ctx)
}

// timerWait is the default waitFunc.
func timerWait(ctx context.Context, d time.Duration, trigger <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-trigger:
		return true
	case <-timer.C:
		return true
	}
}
