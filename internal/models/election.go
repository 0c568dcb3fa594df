package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/safeballot/backend/internal/ballot"
)

// PersistenceOrigin records where an election record currently lives.
type PersistenceOrigin string

const (
	// OriginRemote means the record is acknowledged by the election store.
	OriginRemote PersistenceOrigin = "remote"
	// OriginLocalFallback means the record was committed to the local
	// ledger because the store was unreachable; reconciliation will flip
	// it to remote.
	OriginLocalFallback PersistenceOrigin = "local_fallback"
)

// ElectionRecord is the durable outcome of a completed ballot workflow.
// One exists if and only if its payment authorization succeeded.
type ElectionRecord struct {
	ID              uuid.UUID         `json:"id"`
	Snapshot        ballot.Draft      `json:"snapshot"`
	PaymentIntentID string            `json:"payment_intent_id"`
	ShareableSlug   string            `json:"shareable_slug"`
	CreatedAt       time.Time         `json:"created_at"`
	Origin          PersistenceOrigin `json:"persistence_origin"`
}
