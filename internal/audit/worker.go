package audit

import (
	"context"
	"log/slog"

	"github.com/xyo-geohacker/chaincheck-sub003/internal/audit/models"
)

// Recorder is the producer side of the audit pipeline. Publish hands the
// event to the worker without blocking the settlement path; when the inbox
// is full the event is dropped and counted against the log, never the
// settlement outcome.
type Recorder struct {
	inbox  chan models.Event
	logger *slog.Logger
}

func NewRecorder(buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{inbox: make(chan models.Event, buffer), logger: logger}
}

func (r *Recorder) Publish(_ context.Context, event models.Event) error {
	select {
	case r.inbox <- event:
		return nil
	default:
		if r.logger != nil {
			r.logger.Warn("audit inbox full, dropping event",
				"event", string(event.Type), "delivery_id", event.DeliveryID.String())
		}
		return nil
	}
}

// Inbox exposes the channel for the worker.
func (r *Recorder) Inbox() <-chan models.Event { return r.inbox }

// Worker consumes audit events from the recorder and fans them out to the
// store and, when configured, the Kafka sink.
type Worker struct {
	store  Store
	sink   Sink
	inbox  <-chan models.Event
	logger *slog.Logger
}

func NewWorker(store Store, sink Sink, inbox <-chan models.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, sink: sink, inbox: inbox, logger: logger}
}

// Run processes events until the context is canceled. Sink failures are
// logged and skipped; the store append is the durable record.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
			if w.sink == nil {
				continue
			}
			if err := w.sink.Emit(ctx, event); err != nil && w.logger != nil {
				w.logger.WarnContext(ctx, "audit sink emit failed",
					"event", string(event.Type), "error", err.Error())
			}
		}
	}
}
