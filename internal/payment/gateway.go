// Package payment defines the payment gateway boundary used by the ballot
// workflow, plus the Stripe implementation.
package payment

import (
	"context"
	"fmt"

	"github.com/safeballot/backend/internal/models"
)

// ErrorKind classifies gateway failures for the workflow.
type ErrorKind string

const (
	// ErrorNetwork is transient; the adapter retries it with bounded
	// backoff before surfacing it.
	ErrorNetwork ErrorKind = "network"
	// ErrorCardDeclined is terminal for the attempt and user-facing.
	ErrorCardDeclined ErrorKind = "card_declined"
	// ErrorConfiguration is terminal and operator-facing (bad keys,
	// malformed requests).
	ErrorConfiguration ErrorKind = "configuration"
)

// GatewayError is the failure taxonomy surfaced to the workflow.
type GatewayError struct {
	Kind        ErrorKind
	Message     string
	DeclineCode string
}

func (e *GatewayError) Error() string {
	if e.DeclineCode != "" {
		return fmt.Sprintf("payment gateway: %s (%s): %s", e.Kind, e.DeclineCode, e.Message)
	}
	return fmt.Sprintf("payment gateway: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure is worth retrying.
func (e *GatewayError) Retryable() bool { return e.Kind == ErrorNetwork }

// EventKind identifies a confirmation stream event.
type EventKind string

const (
	EventRequiresAction EventKind = "requires_action"
	EventSucceeded      EventKind = "succeeded"
	EventFailed         EventKind = "failed"
	EventCanceled       EventKind = "canceled"
)

// ConfirmEvent is one step of the asynchronous confirmation protocol.
// Confirmation may need zero or more user-interaction round trips
// (3-D Secure, redirects) before a terminal outcome.
type ConfirmEvent struct {
	Kind          EventKind
	ActionDetails string
	FailureReason string
}

// Terminal reports whether the event ends the confirmation stream.
func (e ConfirmEvent) Terminal() bool {
	return e.Kind == EventSucceeded || e.Kind == EventFailed || e.Kind == EventCanceled
}

// Gateway is the external payment service boundary.
type Gateway interface {
	// CreateIntent opens an authorization for the amount. The idempotency
	// key lets a retried call reuse the intent instead of double-billing.
	CreateIntent(ctx context.Context, amountCents int64, currency, idempotencyKey string) (*models.PaymentAuthorization, error)
	// Confirm submits credentials and streams outcomes until a terminal
	// event. The channel is closed after the terminal event.
	Confirm(ctx context.Context, intentID, credentialsHandle string) (<-chan ConfirmEvent, error)
	// CancelIntent voids an open intent; best-effort during cancellation.
	CancelIntent(ctx context.Context, intentID string) error
}
