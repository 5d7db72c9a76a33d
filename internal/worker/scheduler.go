package worker

import (
	"context"
	"log/slog"
	"time"

	"rundown/internal/core"
	"rundown/internal/log"
)

// Runner regenerates rundown profiles; services.Generator satisfies it.
type Runner interface {
	Generate(ctx context.Context, projectID string) (core.GenerationResult, error)
}

// Scheduler runs a full batch once a day at a fixed wall-clock time.
type Scheduler struct {
	runner       Runner
	hour, minute int
	loc          *time.Location

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler creates a daily scheduler firing at hour:minute in loc (UTC when nil).
func NewScheduler(runner Runner, hour, minute int, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runner: runner,
		hour:   hour,
		minute: minute,
		loc:    loc,
		now:    time.Now,
		after:  time.After,
	}
}

// NextRun returns the first scheduled instant strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	return nextRun(now.In(s.loc), s.hour, s.minute)
}

func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return next
}

// Run blocks until ctx is cancelled, running the batch at each scheduled time.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.NextRun(s.now())
		slog.InfoContext(ctx, "Next scheduled generation",
			"component", log.ComponentScheduler,
			"next_run", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
		}

		s.RunOnce(ctx)
	}
}

// RunOnce executes one batch immediately and logs its summary.
func (s *Scheduler) RunOnce(ctx context.Context) {
	res, err := s.runner.Generate(ctx, "")
	if err != nil {
		slog.ErrorContext(ctx, "Scheduled generation failed",
			"component", log.ComponentScheduler,
			"error", err)
		return
	}
	slog.InfoContext(ctx, "Scheduled generation complete",
		"component", log.ComponentScheduler,
		log.FieldExecutionID, res.ExecutionID,
		log.FieldProjects, res.ProjectsProcessed,
		log.FieldProfiles, res.ProfilesCreated,
		log.FieldErrors, len(res.Errors),
		log.FieldDuration, res.ExecutionTimeMs)
}
