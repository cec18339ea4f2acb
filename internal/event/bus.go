package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/FulfillmentGo/internal/queue"
)

// QueueEvents is the durable queue all saga events travel through.
const QueueEvents = "events"

// Bus gives saga events durability: Emit persists the event as a job, and the
// relay worker later dispatches it on the in-process emitter. A handler
// failure fails the relay job, which the queue retries with backoff.
type Bus struct {
	store       *queue.Store
	emitter     *Emitter
	maxAttempts int
	logger      *slog.Logger
}

// NewBus creates a bus over the given job store and emitter. maxAttempts is
// the delivery budget for every saga event.
func NewBus(store *queue.Store, emitter *Emitter, maxAttempts int, logger *slog.Logger) *Bus {
	return &Bus{
		store:       store,
		emitter:     emitter,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Emit persists the event on the durable events queue.
func (b *Bus) Emit(ctx context.Context, evt *Event) error {
	payload, err := evt.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.Name, err)
	}

	if _, err := b.store.Enqueue(ctx, QueueEvents, payload, b.maxAttempts); err != nil {
		return fmt.Errorf("emit %s: %w", evt.Name, err)
	}

	b.logger.DebugContext(ctx, "event emitted",
		slog.String("event", evt.Name),
		slog.String("event_id", evt.EventID),
		slog.String("aggregate_id", evt.AggregateID),
	)
	return nil
}

// EmitNew builds an event from the payload and emits it.
func (b *Bus) EmitNew(ctx context.Context, name, aggregateID string, data any) error {
	evt, err := New(name, aggregateID, data)
	if err != nil {
		return fmt.Errorf("build event %s: %w", name, err)
	}
	return b.Emit(ctx, evt)
}

// RelayHandler returns the queue handler that replays persisted events on the
// emitter. An unparseable payload is dropped rather than retried; it can
// never succeed.
func (b *Bus) RelayHandler() queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		evt, err := Unmarshal(job.Payload)
		if err != nil {
			b.logger.ErrorContext(ctx, "dropping undecodable event job",
				slog.Int64("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return b.emitter.Publish(ctx, evt)
	}
}
