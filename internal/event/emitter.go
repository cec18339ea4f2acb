package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var emitterDispatchTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "saga_event_dispatch_total",
		Help: "Total number of saga event handler dispatches",
	},
	[]string{"event", "result"},
)

// Handler processes one event. Handlers must be idempotent: the durable queue
// delivers at least once, and a failed sibling handler causes the whole event
// to be redelivered.
type Handler func(ctx context.Context, evt *Event) error

// Emitter is an explicit in-process event registry. All subscriptions are made
// at startup; Publish dispatches synchronously to every subscriber in
// registration order.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// NewEmitter creates an empty emitter.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for the named event.
func (e *Emitter) Subscribe(name string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = append(e.handlers[name], h)
}

// Publish dispatches the event to all subscribed handlers. Every handler runs
// even if an earlier one fails; the joined error is returned so the caller
// (the relay worker) can retry the event.
func (e *Emitter) Publish(ctx context.Context, evt *Event) error {
	e.mu.RLock()
	handlers := e.handlers[evt.Name]
	e.mu.RUnlock()

	if len(handlers) == 0 {
		e.logger.WarnContext(ctx, "event has no subscribers",
			slog.String("event", evt.Name),
			slog.String("event_id", evt.EventID),
		)
		return nil
	}

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			emitterDispatchTotal.WithLabelValues(evt.Name, "error").Inc()
			e.logger.ErrorContext(ctx, "event handler failed",
				slog.String("event", evt.Name),
				slog.String("event_id", evt.EventID),
				slog.String("aggregate_id", evt.AggregateID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("handle %s: %w", evt.Name, err))
			continue
		}
		emitterDispatchTotal.WithLabelValues(evt.Name, "ok").Inc()
	}

	return errors.Join(errs...)
}
