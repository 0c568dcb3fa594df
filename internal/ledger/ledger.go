// Package ledger is the device-local durable cache for elections that
// could not be persisted remotely at commit time. Records stay here until
// reconciliation replays them into the election store.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/safeballot/backend/internal/models"
)

// ErrNotFound is returned when no record exists for the id.
var ErrNotFound = errors.New("ledger: record not found")

// Ledger is durable key-value storage keyed by election record id.
// Writes must be atomic: the reconciliation reader never observes a
// partial record.
type Ledger interface {
	Put(ctx context.Context, rec *models.ElectionRecord) error
	Get(ctx context.Context, id uuid.UUID) (*models.ElectionRecord, error)
	GetAllUnsynced(ctx context.Context) ([]models.ElectionRecord, error)
	// MarkSynced evicts a record once the store has acknowledged it.
	MarkSynced(ctx context.Context, id uuid.UUID) error
}
