package payment

import (
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v72"

	"github.com/safeballot/backend/internal/models"
)

func TestMapStripeError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    ErrorKind
		wantDecline string
		retryable   bool
	}{
		{
			name:        "card declined",
			err:         &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined.", DeclineCode: stripe.DeclineCodeInsufficientFunds},
			wantKind:    ErrorCardDeclined,
			wantDecline: "insufficient_funds",
		},
		{
			name:     "bad api key",
			err:      &stripe.Error{Type: stripe.ErrorTypeAuthentication, Msg: "Invalid API Key"},
			wantKind: ErrorConfiguration,
		},
		{
			name:     "invalid request",
			err:      &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "No such payment_intent"},
			wantKind: ErrorConfiguration,
		},
		{
			name:      "api error",
			err:       &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "An error occurred"},
			wantKind:  ErrorNetwork,
			retryable: true,
		},
		{
			name:      "plain network error",
			err:       errors.New("dial tcp: connection refused"),
			wantKind:  ErrorNetwork,
			retryable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ge := mapStripeError(tt.err)
			if ge.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", ge.Kind, tt.wantKind)
			}
			if ge.DeclineCode != tt.wantDecline {
				t.Errorf("decline code = %q, want %q", ge.DeclineCode, tt.wantDecline)
			}
			if ge.Retryable() != tt.retryable {
				t.Errorf("retryable = %v, want %v", ge.Retryable(), tt.retryable)
			}
		})
	}
}

func TestMapIntentStatus(t *testing.T) {
	tests := []struct {
		in   stripe.PaymentIntentStatus
		want models.PaymentStatus
	}{
		{stripe.PaymentIntentStatusSucceeded, models.PaymentStatusSucceeded},
		{stripe.PaymentIntentStatusRequiresAction, models.PaymentStatusRequiresAction},
		{stripe.PaymentIntentStatusCanceled, models.PaymentStatusCanceled},
		{stripe.PaymentIntentStatusRequiresConfirmation, models.PaymentStatusCreated},
	}
	for _, tt := range tests {
		if got := mapIntentStatus(tt.in); got != tt.want {
			t.Errorf("mapIntentStatus(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestGatewayErrorMessage(t *testing.T) {
	ge := &GatewayError{Kind: ErrorCardDeclined, Message: "declined", DeclineCode: "insufficient_funds"}
	want := "payment gateway: card_declined (insufficient_funds): declined"
	if ge.Error() != want {
		t.Errorf("got %q, want %q", ge.Error(), want)
	}
}

func TestConfirmEventTerminal(t *testing.T) {
	if (ConfirmEvent{Kind: EventRequiresAction}).Terminal() {
		t.Error("requires_action marked terminal")
	}
	for _, k := range []EventKind{EventSucceeded, EventFailed, EventCanceled} {
		if !(ConfirmEvent{Kind: k}).Terminal() {
			t.Errorf("%s not terminal", k)
		}
	}
}
