package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"recipe_importer/internal/domain"
)

// Store persists checkpoints keyed by source name.
// Get returns domain.ErrCheckpointNotFound when nothing was saved yet.
type Store interface {
	Get(ctx context.Context, sourceName string) (*domain.Checkpoint, error)
	Save(ctx context.Context, cp *domain.Checkpoint) error
	Close() error
}

type Options struct {
	// ResetOnComplete drops processed ids when the previous run finished,
	// so a completed source is imported again from scratch.
	ResetOnComplete bool
	// RetryFailed forgets failed ids on load so they are attempted again.
	RetryFailed bool
	Now         func() time.Time
}

// Tracker is the per-run bookkeeping of item outcomes. It is not safe for
// concurrent use; the import loop is sequential.
type Tracker struct {
	store  Store
	logger *slog.Logger
	opts   Options

	cp        *domain.Checkpoint
	processed map[string]struct{}

	degraded   bool
	persistErr error
	closeOnce  sync.Once
}

func NewTracker(store Store, logger *slog.Logger, opts Options) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		store:     store,
		logger:    logger,
		opts:      opts,
		processed: make(map[string]struct{}),
	}
}

// Load reads the checkpoint of sourceName. An unreadable store never blocks
// the run: the tracker logs a warning and starts from an empty checkpoint.
func (t *Tracker) Load(ctx context.Context, sourceName string) *domain.Checkpoint {
	t.logger = t.logger.With("checkpoint", sourceName)

	cp, err := t.store.Get(ctx, sourceName)
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
		cp = t.fresh(sourceName)
		t.logger.Info("no checkpoint found, starting fresh")
	case err != nil:
		t.logger.Warn("failed to load checkpoint, starting fresh", "error", err)
		cp = t.fresh(sourceName)
	case cp.Complete:
		cp = t.nextRun(cp)
	default:
		t.logger.Info("resuming from checkpoint",
			"run_id", cp.RunID,
			"processed", len(cp.ProcessedIDs),
			"status", statusString(cp),
		)
	}

	cp.SourceName = sourceName
	t.cp = cp
	t.rebuildIndex()

	if t.opts.RetryFailed {
		t.forgetFailures()
	}

	return t.cp.Clone()
}

func (t *Tracker) fresh(sourceName string) *domain.Checkpoint {
	now := t.opts.Now()
	return &domain.Checkpoint{
		SourceName: sourceName,
		RunID:      uuid.NewString(),
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

// nextRun starts a new logical run after a completed one. History is kept
// unless ResetOnComplete is set, so finished items are still skipped.
func (t *Tracker) nextRun(prev *domain.Checkpoint) *domain.Checkpoint {
	if t.opts.ResetOnComplete {
		t.logger.Info("previous run complete, resetting checkpoint", "previous_run_id", prev.RunID)
		return t.fresh(prev.SourceName)
	}

	t.logger.Info("previous run complete, starting new run with history",
		"previous_run_id", prev.RunID,
		"processed", len(prev.ProcessedIDs),
	)

	cp := prev.Clone()
	cp.RunID = uuid.NewString()
	cp.Complete = false
	cp.CompletedAt = nil
	cp.Total = 0
	cp.StartedAt = t.opts.Now()
	return cp
}

func (t *Tracker) rebuildIndex() {
	t.processed = make(map[string]struct{}, len(t.cp.ProcessedIDs))
	ids := t.cp.ProcessedIDs[:0]
	for _, id := range t.cp.ProcessedIDs {
		if _, dup := t.processed[id]; dup {
			continue
		}
		t.processed[id] = struct{}{}
		ids = append(ids, id)
	}
	t.cp.ProcessedIDs = ids
}

func (t *Tracker) forgetFailures() {
	if len(t.cp.Failures) == 0 {
		return
	}

	failed := make(map[string]struct{}, len(t.cp.Failures))
	for _, f := range t.cp.Failures {
		failed[f.ExternalID] = struct{}{}
	}

	ids := t.cp.ProcessedIDs[:0]
	for _, id := range t.cp.ProcessedIDs {
		if _, ok := failed[id]; ok {
			delete(t.processed, id)
			continue
		}
		ids = append(ids, id)
	}
	t.cp.ProcessedIDs = ids
	t.cp.FailedCount -= len(failed)
	if t.cp.FailedCount < 0 {
		t.cp.FailedCount = 0
	}
	t.cp.Failures = nil

	t.logger.Info("failed items will be retried", "count", len(failed))
}

// SetTotal records the expected item count. Display only.
func (t *Tracker) SetTotal(n int) {
	t.cp.Total = n
	t.touch()
}

// ShouldSkip reports whether id was already decided in this or a prior run.
func (t *Tracker) ShouldSkip(externalID string) bool {
	_, ok := t.processed[externalID]
	return ok
}

func (t *Tracker) MarkImported(externalID string) bool {
	if !t.record(externalID) {
		return false
	}
	t.cp.ImportedCount++
	return true
}

func (t *Tracker) MarkSkipped(externalID string) bool {
	if !t.record(externalID) {
		return false
	}
	t.cp.SkippedCount++
	return true
}

func (t *Tracker) MarkFailed(externalID, reason string) bool {
	if !t.record(externalID) {
		return false
	}
	t.cp.FailedCount++
	t.cp.Failures = append(t.cp.Failures, domain.Failure{ExternalID: externalID, Reason: reason})
	return true
}

func (t *Tracker) record(externalID string) bool {
	if t.ShouldSkip(externalID) {
		t.logger.Debug("item already recorded", "external_id", externalID)
		return false
	}
	t.processed[externalID] = struct{}{}
	t.cp.ProcessedIDs = append(t.cp.ProcessedIDs, externalID)
	t.touch()
	return true
}

func (t *Tracker) touch() {
	t.cp.UpdatedAt = t.opts.Now()
}

// Persist writes the checkpoint. A failed write is retried once; a second
// failure switches the tracker to in-memory mode for the rest of the run.
// The returned error is non-nil only on the call that degraded the tracker.
func (t *Tracker) Persist(ctx context.Context) error {
	if t.degraded {
		return nil
	}

	err := t.store.Save(ctx, t.cp.Clone())
	if err == nil {
		return nil
	}

	t.logger.Warn("failed to persist checkpoint, retrying", "error", err)

	if err = t.store.Save(ctx, t.cp.Clone()); err == nil {
		return nil
	}

	t.degraded = true
	t.persistErr = err
	t.logger.Error("checkpoint persistence disabled for this run", "error", err)
	return fmt.Errorf("persist checkpoint: %w", err)
}

// MarkComplete flags the run as finished and persists it.
func (t *Tracker) MarkComplete(ctx context.Context) error {
	now := t.opts.Now()
	t.cp.Complete = true
	t.cp.CompletedAt = &now
	t.touch()
	return t.Persist(ctx)
}

// StatusString renders imported/skipped/failed/total.
func (t *Tracker) StatusString() string {
	return statusString(t.cp)
}

func statusString(cp *domain.Checkpoint) string {
	return fmt.Sprintf("%d/%d/%d/%d", cp.ImportedCount, cp.SkippedCount, cp.FailedCount, cp.Total)
}

// Checkpoint returns a snapshot of the current state.
func (t *Tracker) Checkpoint() *domain.Checkpoint {
	return t.cp.Clone()
}

// Degraded reports whether persistence was given up during this run.
func (t *Tracker) Degraded() bool {
	return t.degraded
}

func (t *Tracker) PersistError() error {
	return t.persistErr
}

// Cleanup releases the store. Safe to call more than once.
func (t *Tracker) Cleanup() {
	t.closeOnce.Do(func() {
		if err := t.store.Close(); err != nil {
			t.logger.Warn("failed to close checkpoint store", "error", err)
		}
	})
}
