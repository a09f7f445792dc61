package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/5vraa/swims.cc-website-sub000/internal/events"
	"github.com/5vraa/swims.cc-website-sub000/internal/models"
	"github.com/5vraa/swims.cc-website-sub000/internal/store"
)

// DefaultMaxAttempts is how often a queued benefit is tried before the
// reconciler gives up on it.
const DefaultMaxAttempts = 10

// PendingStore is the queue of benefits waiting to be applied.
type PendingStore interface {
	ListPending(ctx context.Context, limit, maxAttempts int) ([]models.PendingBenefit, error)
	// ApplyPending claims the row and applies it atomically. It returns
	// false when another worker got there first.
	ApplyPending(ctx context.Context, item models.PendingBenefit) (bool, error)
	MarkPendingFailed(ctx context.Context, id uint, cause error, abandon bool) error
}

// Reconciler periodically re-applies benefits whose first application
// failed after the code was consumed.
type Reconciler struct {
	store       PendingStore
	audit       events.Sink
	log         *slog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewReconciler(pending PendingStore, audit events.Sink, log *slog.Logger, interval time.Duration, batchSize int) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reconciler{
		store:       pending,
		audit:       audit,
		log:         log.With("module", "reconciler"),
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: DefaultMaxAttempts,
	}
}

// WithMaxAttempts sets the attempt cap. Values below 1 keep the default.
func (r *Reconciler) WithMaxAttempts(n int) *Reconciler {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

// Run processes the queue every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.ErrorContext(ctx, "reconcile pass failed", "operation", "run_once", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes one batch and returns how many benefits this call
// applied. Rows claimed by a concurrent reconciler are skipped.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	items, err := r.store.ListPending(ctx, r.batchSize, r.maxAttempts)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}
		log := r.log.With("pending_id", item.ID, "principal_id", item.PrincipalID, "code_id", item.CodeID)
		ok, err := r.store.ApplyPending(ctx, item)
		if err != nil {
			attempts := item.Attempts + 1
			abandon := errors.Is(err, store.ErrInvalidBenefit) || attempts >= r.maxAttempts
			if abandon {
				log.ErrorContext(ctx, "giving up on benefit", "operation", "apply_benefit", "attempts", attempts, "error", err)
			} else {
				log.WarnContext(ctx, "benefit still failing", "operation", "apply_benefit", "attempts", attempts, "error", err)
			}
			if markErr := r.store.MarkPendingFailed(ctx, item.ID, err, abandon); markErr != nil {
				log.ErrorContext(ctx, "could not record failure", "operation", "mark_failed", "error", markErr)
			}
			continue
		}
		if !ok {
			log.DebugContext(ctx, "pending benefit claimed elsewhere", "operation", "apply_benefit")
			continue
		}
		applied++
		r.emit(ctx, log, item)
	}
	return applied, nil
}

func (r *Reconciler) emit(ctx context.Context, log *slog.Logger, item models.PendingBenefit) {
	if r.audit == nil {
		return
	}
	e := events.NewAuditEvent(item.PrincipalID, "redeem_code", strconv.FormatUint(uint64(item.CodeID), 10), events.ActionBenefitApplied, map[string]any{
		"type":     string(item.Type),
		"attempts": item.Attempts + 1,
	})
	if err := r.audit.Emit(ctx, e); err != nil {
		log.WarnContext(ctx, "audit emit failed", "operation", "audit", "error", err)
	}
}
