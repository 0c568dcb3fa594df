// Package attempts journals every payment attempt a workflow makes, so a
// charge can always be traced even when the election behind it was never
// persisted.
package attempts

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/safeballot/backend/internal/models"
)

// Repository handles ballot attempt persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attempts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new attempt row.
func (r *Repository) Create(ctx context.Context, a *models.BallotAttempt) error {
	const q = `INSERT INTO ballot_attempts (id, session_id, intent_id, amount_cents, currency, status, draft_snapshot, failure_reason)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, a.SessionID, a.IntentID, a.AmountCents, a.Currency, a.Status, a.DraftSnapshot, a.FailureReason).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// SetIntent records the gateway intent id once authorization opened.
func (r *Repository) SetIntent(ctx context.Context, id uuid.UUID, intentID, status string) error {
	const q = `UPDATE ballot_attempts SET intent_id = $2, status = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, intentID, status)
	return err
}

// UpdateStatus moves an attempt to a new status with an optional reason.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status, failureReason string) error {
	const q = `UPDATE ballot_attempts SET status = $2, failure_reason = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, status, failureReason)
	return err
}

// ListBySession returns all attempts for a workflow session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.BallotAttempt, error) {
	const q = `SELECT id, session_id, intent_id, amount_cents, currency, status, draft_snapshot, failure_reason, created_at, updated_at
		FROM ballot_attempts WHERE session_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.BallotAttempt
	for rows.Next() {
		var a models.BallotAttempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.IntentID, &a.AmountCents, &a.Currency, &a.Status, &a.DraftSnapshot, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
