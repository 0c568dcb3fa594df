package models

// PaymentStatus tracks the gateway-side authorization lifecycle.
type PaymentStatus string

const (
	PaymentStatusCreated        PaymentStatus = "created"
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusCanceled       PaymentStatus = "canceled"
)

// PaymentAuthorization is one gateway authorization attempt. It is owned by
// a single workflow for the lifetime of one ballot-creation attempt and is
// never shared across attempts; a retry mints a new intent.
type PaymentAuthorization struct {
	IntentID     string        `json:"intent_id"`
	ClientSecret string        `json:"client_secret,omitempty"`
	AmountCents  int64         `json:"amount_cents"`
	Currency     string        `json:"currency"`
	Status       PaymentStatus `json:"status"`
}
