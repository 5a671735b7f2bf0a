// Package schedule runs a job on a cron expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

const retryDelay = 30 * time.Second

// Job is the unit of work executed on every tick.
type Job func(ctx context.Context) error

// Scheduler fires a job at each tick of a cron expression. Ticks that come
// due while the job is still running are skipped.
type Scheduler struct {
	cron string
	job  Job
	log  zerolog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Option customises a Scheduler.
type Option func(*Scheduler)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithClock replaces the time source and timer, for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
		if after != nil {
			s.after = after
		}
	}
}

// New validates the cron expression and returns a scheduler.
func New(cron string, job Job, opts ...Option) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("schedule: job is required")
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("schedule: invalid cron expression %q", cron)
	}
	s := &Scheduler{
		cron:  cron,
		job:   job,
		log:   zerolog.Nop(),
		now:   time.Now,
		after: time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.cron, t, false)
}

// Run blocks until ctx is cancelled, executing the job at each tick. Job
// errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Str("cron", s.cron).Msg("Scheduler started")
	defer s.log.Info().Msg("Scheduler stopped")

	for {
		next, err := s.Next(s.now())
		if err != nil {
			s.log.Error().Err(err).Str("cron", s.cron).Msg("Failed to compute next tick")
			select {
			case <-s.after(retryDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		s.log.Debug().Time("next", next).Msg("Waiting for next tick")

		select {
		case <-s.after(wait):
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}

		if err := s.job(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("Scheduled run failed")
		}
	}
}
