package cycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
)

// Runner is the scheduler's view of the orchestrator.
type Runner interface {
	RunCycle(ctx context.Context, reason string) (*Trace, error)
}

type SchedulerConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Runner   Runner
	Interval time.Duration

	// Enabled gates the loop; when false the scheduler idles and cycles only
	// run via the admin API.
	Enabled bool
}

func (cfg *SchedulerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Runner == nil {
		return errors.New("runner is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return nil
}

// Scheduler runs cycles on a fixed interval until its context is cancelled.
type Scheduler struct {
	log *slog.Logger
	cfg SchedulerConfig
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{log: cfg.Logger, cfg: cfg}, nil
}

// Run blocks until ctx is cancelled. Cycle failures are reported and the
// loop keeps going; the next tick gets a fresh attempt.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("scheduler: disabled, cycles run on demand only")
		<-ctx.Done()
		return nil
	}

	s.log.Info("scheduler: started", "interval", s.cfg.Interval)
	ticker := s.cfg.Clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return nil
		case <-ticker.Chan():
			if _, err := s.cfg.Runner.RunCycle(ctx, "cron"); err != nil {
				if errors.Is(err, ErrCycleInFlight) {
					s.log.Warn("scheduler: previous cycle still running, tick skipped")
					continue
				}
				sentry.CaptureException(err)
				s.log.Error("scheduler: cycle failed", "error", err)
			}
		}
	}
}
