package payment

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"

	"github.com/safeballot/backend/internal/models"
)

const defaultPollInterval = 3 * time.Second

// StripeGateway implements Gateway against the Stripe PaymentIntents API.
type StripeGateway struct {
	api          *client.API
	logger       *zap.Logger
	maxRetries   uint64
	pollInterval time.Duration
}

// NewStripeGateway creates a Stripe-backed gateway.
func NewStripeGateway(secretKey string, maxRetries uint64, logger *zap.Logger) *StripeGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{
		api:          api,
		logger:       logger,
		maxRetries:   maxRetries,
		pollInterval: defaultPollInterval,
	}
}

// CreateIntent opens a payment intent. Network failures are retried with
// exponential backoff; the idempotency key makes retries reuse the same
// intent on Stripe's side.
func (g *StripeGateway) CreateIntent(ctx context.Context, amountCents int64, currency, idempotencyKey string) (*models.PaymentAuthorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amountCents),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card", "us_bank_account"}),
	}
	params.SetIdempotencyKey(idempotencyKey)

	var pi *stripe.PaymentIntent
	op := func() error {
		var err error
		pi, err = g.api.PaymentIntents.New(params)
		if err == nil {
			return nil
		}
		ge := mapStripeError(err)
		if ge.Retryable() {
			return ge
		}
		return backoff.Permanent(ge)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		g.logger.Warn("create payment intent failed", zap.Error(err))
		return nil, err
	}

	g.logger.Info("payment intent created",
		zap.String("intent_id", pi.ID),
		zap.Int64("amount_cents", amountCents),
		zap.String("currency", currency),
	)
	return &models.PaymentAuthorization{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  amountCents,
		Currency:     currency,
		Status:       mapIntentStatus(pi.Status),
	}, nil
}

// Confirm submits the payment method and streams the intent's progress.
// While Stripe reports requires_action the customer completes the action
// out of band (3-D Secure in the embedded widget); the adapter polls the
// intent until it settles.
func (g *StripeGateway) Confirm(ctx context.Context, intentID, credentialsHandle string) (<-chan ConfirmEvent, error) {
	events := make(chan ConfirmEvent, 4)
	go func() {
		defer close(events)

		pi, err := g.api.PaymentIntents.Confirm(intentID, &stripe.PaymentIntentConfirmParams{
			PaymentMethod: stripe.String(credentialsHandle),
		})
		if err != nil {
			events <- failureEvent(mapStripeError(err))
			return
		}

		actionEmitted := false
		for {
			switch pi.Status {
			case stripe.PaymentIntentStatusSucceeded:
				events <- ConfirmEvent{Kind: EventSucceeded}
				return
			case stripe.PaymentIntentStatusCanceled:
				events <- ConfirmEvent{Kind: EventCanceled}
				return
			case stripe.PaymentIntentStatusRequiresPaymentMethod:
				// Post-confirm this means the attempt was declined.
				events <- ConfirmEvent{Kind: EventFailed, FailureReason: "card_declined"}
				return
			case stripe.PaymentIntentStatusRequiresAction:
				if !actionEmitted {
					details := ""
					if pi.NextAction != nil {
						details = string(pi.NextAction.Type)
					}
					events <- ConfirmEvent{Kind: EventRequiresAction, ActionDetails: details}
					actionEmitted = true
				}
			}

			select {
			case <-ctx.Done():
				events <- ConfirmEvent{Kind: EventFailed, FailureReason: "confirmation_aborted"}
				return
			case <-time.After(g.pollInterval):
			}

			pi, err = g.api.PaymentIntents.Get(intentID, nil)
			if err != nil {
				events <- failureEvent(mapStripeError(err))
				return
			}
		}
	}()
	return events, nil
}

// CancelIntent voids an open intent.
func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	_, err := g.api.PaymentIntents.Cancel(intentID, nil)
	if err != nil {
		return mapStripeError(err)
	}
	g.logger.Info("payment intent canceled", zap.String("intent_id", intentID))
	return nil
}

func failureEvent(ge *GatewayError) ConfirmEvent {
	reason := string(ge.Kind)
	if ge.DeclineCode != "" {
		reason = ge.DeclineCode
	}
	return ConfirmEvent{Kind: EventFailed, FailureReason: reason}
}

func mapIntentStatus(s stripe.PaymentIntentStatus) models.PaymentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusRequiresAction:
		return models.PaymentStatusRequiresAction
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentStatusCanceled
	default:
		return models.PaymentStatusCreated
	}
}

func mapStripeError(err error) *GatewayError {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		switch sErr.Type {
		case stripe.ErrorTypeCard:
			return &GatewayError{Kind: ErrorCardDeclined, Message: sErr.Msg, DeclineCode: string(sErr.DeclineCode)}
		case stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeAuthentication:
			return &GatewayError{Kind: ErrorConfiguration, Message: sErr.Msg}
		default:
			return &GatewayError{Kind: ErrorNetwork, Message: sErr.Msg}
		}
	}
	return &GatewayError{Kind: ErrorNetwork, Message: err.Error()}
}
