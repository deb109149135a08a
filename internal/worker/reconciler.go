package worker

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"pricememory/internal/core"
	"pricememory/internal/log"
	"pricememory/internal/sheets"
)

// Source is the authoritative list of purchases.
type Source interface {
	List(ctx context.Context) ([]core.Purchase, error)
}

// ReconcileResult counts the repairs made by one pass.
type ReconcileResult struct {
	Appended int
	Deleted  int
	Failed   int
}

// Reconciler makes the mirror hold exactly the purchases in the source,
// once at start and then every interval.
type Reconciler struct {
	source   Source
	mirror   sheets.Mirror
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	last    ReconcileResult
	lastAt  time.Time
}

func NewReconciler(source Source, mirror sheets.Mirror, interval time.Duration, logger *log.Logger) *Reconciler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Reconciler{
		source:   source,
		mirror:   mirror,
		interval: interval,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins the loop. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	r.stopCh, r.doneCh = stopCh, doneCh
	r.mu.Unlock()

	go r.runLoop(ctx, stopCh, doneCh)

	r.logger.InfoContext(ctx, "Reconciler started", "interval", r.interval.String())
	return nil
}

// Stop ends the loop and waits for the current pass to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		r.logger.InfoContext(ctx, "Reconciler stopped gracefully")
		return nil
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}
}

// Last returns the outcome of the most recent pass and when it ran.
func (r *Reconciler) Last() (ReconcileResult, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.lastAt
}

func (r *Reconciler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	res, err := r.Reconcile(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Reconcile pass failed",
			log.FieldOperation, log.OpSync,
			log.FieldError, err)
		return
	}
	if res.Appended+res.Deleted+res.Failed > 0 {
		r.logger.InfoContext(ctx, "Reconcile pass repaired mirror",
			"appended", res.Appended,
			"deleted", res.Deleted,
			"failed", res.Failed)
	}
}

// Reconcile runs one pass: purchases missing from the mirror are
// appended oldest first, mirror rows with no purchase are deleted.
// Per-row failures are counted and the pass continues.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult

	purchases, err := r.source.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list purchases: %w", err)
	}
	mirrored, err := r.mirror.ListPurchaseIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list mirrored ids: %w", err)
	}

	inMirror := make(map[string]struct{}, len(mirrored))
	for _, id := range mirrored {
		inMirror[id] = struct{}{}
	}
	inStore := make(map[string]struct{}, len(purchases))
	for _, p := range purchases {
		inStore[p.ID] = struct{}{}
	}

	// Source lists newest first.
	for _, p := range slices.Backward(purchases) {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if _, ok := inMirror[p.ID]; ok {
			continue
		}
		if _, err := r.mirror.AppendPurchase(ctx, p); err != nil {
			res.Failed++
			r.logger.WarnContext(ctx, "Failed to append missing purchase",
				log.FieldPurchaseID, p.ID,
				log.FieldError, err)
			continue
		}
		res.Appended++
	}

	for _, id := range mirrored {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if _, ok := inStore[id]; ok {
			continue
		}
		if _, err := r.mirror.DeletePurchase(ctx, id); err != nil {
			res.Failed++
			r.logger.WarnContext(ctx, "Failed to delete orphaned row",
				log.FieldPurchaseID, id,
				log.FieldError, err)
			continue
		}
		res.Deleted++
	}

	r.mu.Lock()
	r.last = res
	r.lastAt = time.Now()
	r.mu.Unlock()
	return res, nil
}
