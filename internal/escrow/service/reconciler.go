package service

import (
	"context"
	"log/slog"
	"time"
)

// Reconciler drives Coordinator.Reconcile on a fixed interval so settlements
// interrupted mid-flight (process restart, receipt timeout) converge on the
// chain's view without operator intervention.
type Reconciler struct {
	coordinator *Coordinator
	every       time.Duration
	logger      *slog.Logger
}

func NewReconciler(coordinator *Coordinator, every time.Duration, logger *slog.Logger) *Reconciler {
	if every <= 0 {
		every = time.Minute
	}
	return &Reconciler{coordinator: coordinator, every: every, logger: logger}
}

// Run blocks until the context is canceled. An individual sweep failing is
// logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			repaired, err := r.coordinator.Reconcile(ctx)
			if err != nil {
				if r.logger != nil {
					r.logger.WarnContext(ctx, "reconciliation sweep failed", "error", err.Error())
				}
				continue
			}
			if repaired > 0 && r.logger != nil {
				r.logger.InfoContext(ctx, "reconciliation repaired deliveries", "repaired", repaired)
			}
		}
	}
}
