package workflow

import (
	"github.com/google/uuid"

	"github.com/safeballot/backend/internal/models"
)

// Status names a workflow state.
type Status string

const (
	StatusEditing            Status = "editing"
	StatusReviewAndPay       Status = "review_and_pay"
	StatusAuthorizingPayment Status = "authorizing_payment"
	StatusConfirmingPayment  Status = "confirming_payment"
	StatusCommitting         Status = "committing"
	StatusCompleted          Status = "completed"
	StatusCanceled           Status = "canceled"
	StatusFailed             Status = "failed"
)

// FailureReason distinguishes terminal failures.
type FailureReason string

const (
	// FailureServerRejected: the store definitively refused the election
	// after payment succeeded. The single worst user-visible outcome.
	FailureServerRejected FailureReason = "server_rejected"
	// FailureFallbackWriteFailed: both the store and the local ledger
	// were unable to take the record after payment succeeded.
	FailureFallbackWriteFailed FailureReason = "fallback_write_failed"
)

// State is the externally observable workflow state.
type State struct {
	Status Status `json:"status"`
	// Step is 1..3 while editing, zero otherwise.
	Step int `json:"step,omitempty"`
	// Message is a human-readable note for the admin (payment errors,
	// required-action prompts, support guidance).
	Message string `json:"message,omitempty"`
	// ActionDetails carries the gateway's pending verification detail
	// while confirmation re-prompts.
	ActionDetails string `json:"action_details,omitempty"`
	// ClientSecret binds the embedded payment widget to the open intent.
	ClientSecret  string        `json:"client_secret,omitempty"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	// SupportReference is the payment intent id, present whenever a
	// charge may exist, so support can trace it.
	SupportReference string                   `json:"support_reference,omitempty"`
	ElectionID       *uuid.UUID               `json:"election_id,omitempty"`
	ShareableSlug    string                   `json:"shareable_slug,omitempty"`
	Origin           models.PersistenceOrigin `json:"persistence_origin,omitempty"`
}

// Terminal reports whether no further transitions are accepted.
func (s State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCanceled || s.Status == StatusFailed
}

// EventType identifies a UI-driven transition request.
type EventType string

const (
	EventNext         EventType = "next"
	EventBack         EventType = "back"
	EventJumpTo       EventType = "jump_to"
	EventStartPayment EventType = "start_payment"
	EventConfirm      EventType = "confirm"
	EventCancel       EventType = "cancel"
)

// Event is one transition request from the UI.
type Event struct {
	Type EventType `json:"type"`
	// Step is the target for jump_to.
	Step int `json:"step,omitempty"`
	// CredentialsHandle references the collected payment credentials
	// (a gateway payment-method id) for confirm.
	CredentialsHandle string `json:"credentials_handle,omitempty"`
}
