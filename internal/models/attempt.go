package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Attempt statuses for the payment-attempt journal.
const (
	AttemptStatusAuthorizing       = "authorizing"
	AttemptStatusIntentFailed      = "intent_failed"
	AttemptStatusConfirming        = "confirming"
	AttemptStatusDeclined          = "declined"
	AttemptStatusCanceled          = "canceled"
	AttemptStatusCommittedRemote   = "committed_remote"
	AttemptStatusCommittedFallback = "committed_fallback"
	AttemptStatusServerRejected    = "server_rejected"
)

// BallotAttempt is one journaled payment attempt for a workflow session.
// The server_rejected rows carry everything support needs to trace a
// charge that has no election behind it.
type BallotAttempt struct {
	ID            uuid.UUID       `json:"id"`
	SessionID     uuid.UUID       `json:"session_id"`
	IntentID      string          `json:"intent_id,omitempty"`
	AmountCents   int64           `json:"amount_cents"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	DraftSnapshot json.RawMessage `json:"draft_snapshot,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
