package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iho/gocredit/internal/infrastructure/metrics"
)

// Job is a unit of periodic background work. Run returns how many items it
// processed.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs jobs on their own tickers until its context is cancelled.
// A failed run is logged and retried on the next tick.
type Scheduler struct {
	jobs    []Job
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a new Scheduler.
func New(logger zerolog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		logger:  logger.With().Str("component", "scheduler").Logger(),
		metrics: m,
	}
}

// Add registers a job. Jobs without a positive interval are skipped.
func (s *Scheduler) Add(job Job) {
	if job.Interval <= 0 {
		s.logger.Warn().Str("job", job.Name).Msg("job disabled, no interval")
		return
	}
	s.jobs = append(s.jobs, job)
}

// Jobs returns the names of registered jobs.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, job := range s.jobs {
		names = append(names, job.Name)
	}
	return names
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			return s.loop(ctx, job)
		})
	}

	<-ctx.Done()
	err := g.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

func (s *Scheduler) loop(ctx context.Context, job Job) error {
	s.logger.Info().
		Str("job", job.Name).
		Dur("interval", job.Interval).
		Msg("job started")

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("job", job.Name).Msg("job stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes one run of job and records its outcome.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) {
	start := time.Now()
	processed, err := job.Run(ctx)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		if ctx.Err() != nil {
			status = "cancelled"
		}
	}

	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues(job.Name, status).Inc()
		s.metrics.JobDuration.WithLabelValues(job.Name).Observe(elapsed.Seconds())
	}

	if err != nil {
		if status == "cancelled" {
			return
		}
		s.logger.Error().Err(err).
			Str("job", job.Name).
			Int("processed", processed).
			Dur("elapsed", elapsed).
			Msg("job run failed")
		return
	}

	if processed > 0 {
		s.logger.Info().
			Str("job", job.Name).
			Int("processed", processed).
			Dur("elapsed", elapsed).
			Msg("job run completed")
	}
}
