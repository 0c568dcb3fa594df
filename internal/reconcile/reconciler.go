// Package reconcile replays fallback-committed elections into the election
// store once it is reachable again. The process is idempotent, guarded by
// per-record in-flight flags, and safe to re-run until it converges.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safeballot/backend/internal/election"
	"github.com/safeballot/backend/internal/ledger"
	"github.com/safeballot/backend/internal/models"
	"github.com/safeballot/backend/pkg/queue"
)

// Flags guards a record against concurrent reconciliation passes.
type Flags interface {
	// TryAcquire returns false if another pass holds the record.
	TryAcquire(ctx context.Context, id uuid.UUID) (bool, error)
	Release(ctx context.Context, id uuid.UUID) error
}

// Reconciler drains the fallback ledger into the election store.
type Reconciler struct {
	ledger   ledger.Ledger
	store    election.Store
	flags    Flags
	queue    *queue.Queue
	logger   *zap.Logger
	interval time.Duration
}

// New creates a reconciler. queue may be nil when only Sweep is used.
func New(led ledger.Ledger, store election.Store, flags Flags, q *queue.Queue, interval time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{ledger: led, store: store, flags: flags, queue: q, logger: logger, interval: interval}
}

// Sweep replays every unsynced record, provided the store answers a probe.
// Returns how many records were synced this pass.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	if err := r.store.Ping(ctx); err != nil {
		r.logger.Debug("election store still unreachable, skipping sweep", zap.Error(err))
		return 0, nil
	}
	records, err := r.ledger.GetAllUnsynced(ctx)
	if err != nil {
		return 0, err
	}
	synced := 0
	for i := range records {
		if err := r.ReconcileRecord(ctx, &records[i]); err != nil {
			r.logger.Warn("reconcile failed, will retry on a later pass",
				zap.String("election_id", records[i].ID.String()), zap.Error(err))
			continue
		}
		synced++
	}
	return synced, nil
}

// ReconcileRecord replays one record. Replaying an already-synced record is
// harmless: the store deduplicates by id and the ledger eviction is a no-op.
func (r *Reconciler) ReconcileRecord(ctx context.Context, rec *models.ElectionRecord) error {
	ok, err := r.flags.TryAcquire(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !ok {
		// Another pass owns it right now.
		return nil
	}
	defer func() { _ = r.flags.Release(ctx, rec.ID) }()

	if err := r.store.Create(ctx, rec); err != nil {
		var rejected *election.RejectedError
		if errors.As(err, &rejected) {
			// A definitive rejection of a record the admin already paid
			// for; keep it in the ledger and make noise for support.
			r.logger.Error("store rejected fallback election, manual intervention needed",
				zap.String("election_id", rec.ID.String()),
				zap.String("payment_intent_id", rec.PaymentIntentID),
				zap.Error(err))
		}
		return err
	}

	rec.Origin = models.OriginRemote
	if err := r.ledger.MarkSynced(ctx, rec.ID); err != nil {
		return err
	}
	r.logger.Info("fallback election reconciled to store", zap.String("election_id", rec.ID.String()))
	return nil
}

// processJob handles one queued reconcile job.
func (r *Reconciler) processJob(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeReconcileElection {
		r.logger.Warn("unknown job type", zap.String("type", string(job.Type)))
		return nil
	}
	var payload queue.ReconcilePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		r.logger.Warn("invalid reconcile payload", zap.Error(err))
		return nil
	}
	rec, err := r.ledger.Get(ctx, payload.RecordID)
	if errors.Is(err, ledger.ErrNotFound) {
		// Already synced and evicted by an earlier pass.
		return nil
	}
	if err != nil {
		return err
	}
	return r.ReconcileRecord(ctx, rec)
}

// Run drives the reconciler: a job loop fed by the queue plus a periodic
// sweep that catches records whose jobs were lost.
func (r *Reconciler) Run(ctx context.Context) {
	go r.sweepLoop(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return
		default:
		}

		job, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		if err := r.processJob(ctx, job); err != nil {
			r.logger.Warn("reconcile job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := r.queue.Retry(ctx, job); reErr != nil {
				r.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}

func (r *Reconciler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.Warn("sweep error", zap.Error(err))
			} else if n > 0 {
				r.logger.Info("sweep reconciled records", zap.Int("count", n))
			}
		}
	}
}
