package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rundown/internal/amqp"
	"rundown/internal/debounce"
	"rundown/internal/log"
)

// ChangeConsumer turns change notifications into debounced project regenerations.
// A burst of notifications for one project inside the window yields one run.
type ChangeConsumer struct {
	ctx       context.Context
	runner    Runner
	debouncer *debounce.Debouncer
}

// NewChangeConsumer creates a consumer whose regenerations run under ctx.
func NewChangeConsumer(ctx context.Context, runner Runner, window time.Duration) *ChangeConsumer {
	c := &ChangeConsumer{ctx: ctx, runner: runner}
	c.debouncer = debounce.New(window, c.regenerate)
	return c
}

// Notify schedules a regeneration of projectID. It reports false after Close.
func (c *ChangeConsumer) Notify(projectID string) bool {
	return c.debouncer.Trigger(projectID)
}

// HandleProjectChanged is the AMQP handler. An error sends the message back
// to the queue.
func (c *ChangeConsumer) HandleProjectChanged(ctx context.Context, msg *amqp.ProjectChangedMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid change notification: %w", err)
	}
	slog.DebugContext(ctx, "Change notification received",
		"component", log.ComponentWorker,
		log.FieldProjectID, msg.ProjectID,
		"change", msg.Change,
		"event_id", msg.EventID)

	if !c.Notify(msg.ProjectID) {
		return fmt.Errorf("change consumer closed")
	}
	return nil
}

// Pending returns the number of projects waiting for their debounce window.
func (c *ChangeConsumer) Pending() int {
	return c.debouncer.Pending()
}

// Drain runs every pending regeneration now and waits for them.
func (c *ChangeConsumer) Drain() {
	c.debouncer.Flush()
}

// Close drops pending regenerations and waits for running ones.
func (c *ChangeConsumer) Close() {
	c.debouncer.Stop()
}

func (c *ChangeConsumer) regenerate(projectID string) {
	ctx := c.ctx
	if ctx.Err() != nil {
		return
	}

	res, err := c.runner.Generate(ctx, projectID)
	if err != nil {
		slog.ErrorContext(ctx, "Debounced regeneration failed",
			"component", log.ComponentWorker,
			log.FieldProjectID, projectID,
			"error", err)
		return
	}
	if len(res.Errors) > 0 {
		slog.WarnContext(ctx, "Debounced regeneration finished with errors",
			"component", log.ComponentWorker,
			log.FieldProjectID, projectID,
			log.FieldExecutionID, res.ExecutionID,
			log.FieldErrorType, res.Errors[0].ErrorType,
			"error", res.Errors[0].Message)
		return
	}
	slog.InfoContext(ctx, "Debounced regeneration complete",
		"component", log.ComponentWorker,
		log.FieldProjectID, projectID,
		log.FieldExecutionID, res.ExecutionID,
		log.FieldProfiles, res.ProfilesCreated)
}
