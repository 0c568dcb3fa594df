// Package workflow drives the ballot-creation payment-and-persistence
// state machine: step-validated editing, payment authorization and
// confirmation, and the commit with its local-fallback safety net.
package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safeballot/backend/internal/ballot"
	"github.com/safeballot/backend/internal/election"
	"github.com/safeballot/backend/internal/ledger"
	"github.com/safeballot/backend/internal/models"
	"github.com/safeballot/backend/internal/payment"
	"github.com/safeballot/backend/pkg/queue"
)

const (
	firstStep = 1
	lastStep  = 3
)

// Journal records payment attempts durably. Implemented by
// attempts.Repository; journal failures are logged, never fatal.
type Journal interface {
	Create(ctx context.Context, a *models.BallotAttempt) error
	SetIntent(ctx context.Context, id uuid.UUID, intentID, status string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status, failureReason string) error
}

// ReconcileEnqueuer hands a fallback-committed record to the reconciler.
// Implemented by queue.Queue.
type ReconcileEnqueuer interface {
	EnqueueReconcile(ctx context.Context, p queue.ReconcilePayload) error
}

// Config wires a workflow's collaborators.
type Config struct {
	Gateway payment.Gateway
	Store   election.Store
	Ledger  ledger.Ledger
	Jobs    ReconcileEnqueuer
	Journal Journal
	Logger  *zap.Logger

	PricePerSeatCents int64
	Currency          string

	// Clock and NewID are injectable for tests.
	Clock func() time.Time
	NewID func() uuid.UUID
	// OnTransition observes every state change, including re-entries.
	OnTransition func(State)
}

// Workflow is one ballot-creation attempt. Exactly one instance exists per
// attempt and all transitions are serialized: a request arriving while a
// transition (including its awaited external call) is in flight is
// rejected with ErrWorkflowBusy.
type Workflow struct {
	// transMu serializes transitions; taken with TryLock so concurrent
	// requests fail fast instead of queueing.
	transMu sync.Mutex
	// stateMu protects the observable snapshot so reads never block on
	// an awaited external call.
	stateMu sync.RWMutex

	sessionID uuid.UUID
	draft     ballot.Draft
	state     State
	auth      *models.PaymentAuthorization
	// attemptSeq feeds the idempotency key. It bumps only after a
	// declined payment, so a retry with new credentials mints a fresh
	// key while a transient-error retry reuses the old one.
	attemptSeq   int
	attemptRowID uuid.UUID

	gateway payment.Gateway
	store   election.Store
	ledger  ledger.Ledger
	jobs    ReconcileEnqueuer
	journal Journal
	logger  *zap.Logger

	pricePerSeatCents int64
	currency          string
	clock             func() time.Time
	newID             func() uuid.UUID
	onTransition      func(State)
}

// New creates a workflow in Editing(1) with an empty draft.
func New(sessionID uuid.UUID, cfg Config) *Workflow {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.New
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "usd"
	}
	w := &Workflow{
		sessionID:         sessionID,
		state:             State{Status: StatusEditing, Step: firstStep},
		gateway:           cfg.Gateway,
		store:             cfg.Store,
		ledger:            cfg.Ledger,
		jobs:              cfg.Jobs,
		journal:           cfg.Journal,
		logger:            logger.With(zap.String("session_id", sessionID.String())),
		pricePerSeatCents: cfg.PricePerSeatCents,
		currency:          currency,
		clock:             clock,
		newID:             newID,
		onTransition:      cfg.OnTransition,
	}
	return w
}

// SessionID identifies this attempt.
func (w *Workflow) SessionID() uuid.UUID { return w.sessionID }

// State returns the current observable state without blocking on any
// in-flight transition.
func (w *Workflow) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// Draft returns a read-only snapshot of the draft.
func (w *Workflow) Draft() ballot.Draft {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.draft.Clone()
}

// Transition dispatches one UI event.
func (w *Workflow) Transition(ctx context.Context, ev Event) (State, error) {
	switch ev.Type {
	case EventNext:
		return w.Next(ctx)
	case EventBack:
		return w.Back()
	case EventJumpTo:
		return w.JumpTo(ev.Step)
	case EventStartPayment:
		return w.StartPayment(ctx)
	case EventConfirm:
		return w.Confirm(ctx, ev.CredentialsHandle)
	case EventCancel:
		return w.Cancel(ctx)
	default:
		return w.State(), fmt.Errorf("workflow: unknown event type %q", ev.Type)
	}
}

// DraftUpdate mutates only the fields whose pointers are set.
type DraftUpdate struct {
	Title       *string
	Description *string
	QuickBallot *bool
	Questions   *[]ballot.Question
	StartAt     *time.Time
	EndAt       *time.Time
	SeatCount   *int
}

// ApplyDraftUpdate mutates the draft through the workflow. Rejected with
// ErrFrozenDraft unless the workflow is in an editing step; the draft is
// untouched on rejection.
func (w *Workflow) ApplyDraftUpdate(upd DraftUpdate) (ballot.Draft, error) {
	if err := w.begin(); err != nil {
		return w.Draft(), err
	}
	defer w.transMu.Unlock()

	if w.state.Status != StatusEditing {
		return w.draft.Clone(), ErrFrozenDraft
	}

	w.stateMu.Lock()
	if upd.Title != nil {
		w.draft.Title = *upd.Title
	}
	if upd.Description != nil {
		w.draft.Description = *upd.Description
	}
	if upd.QuickBallot != nil {
		w.draft.QuickBallot = *upd.QuickBallot
	}
	if upd.Questions != nil {
		qs := make([]ballot.Question, len(*upd.Questions))
		copy(qs, *upd.Questions)
		w.draft.Questions = qs
	}
	if upd.StartAt != nil {
		t := *upd.StartAt
		w.draft.StartAt = &t
	}
	if upd.EndAt != nil {
		t := *upd.EndAt
		w.draft.EndAt = &t
	}
	if upd.SeatCount != nil {
		w.draft.SeatCount = *upd.SeatCount
	}
	out := w.draft.Clone()
	w.stateMu.Unlock()
	return out, nil
}

// Next advances from the current editing step, gated by that step's
// validator; from step 3 it moves to review-and-pay.
func (w *Workflow) Next(ctx context.Context) (State, error) {
	if err := w.begin(); err != nil {
		return w.State(), err
	}
	defer w.transMu.Unlock()

	if w.state.Status != StatusEditing {
		return w.state, ErrInvalidTransition
	}
	step := w.state.Step
	if issue := w.draft.ValidateStep(step); issue != ballot.IssueNone {
		return w.state, &ValidationError{Step: step, Issue: issue}
	}
	if step < lastStep {
		w.setState(State{Status: StatusEditing, Step: step + 1})
	} else {
		w.setState(State{Status: StatusReviewAndPay})
	}
	return w.state, nil
}

// Back returns to the previous step. At step 1 it is a no-op; from
// review-and-pay it returns to step 3 and the draft is editable again.
func (w *Workflow) Back() (State, error) {
	if err := w.begin(); err != nil {
		return w.State(), err
	}
	defer w.transMu.Unlock()

	switch w.state.Status {
	case StatusEditing:
		if w.state.Step > firstStep {
			w.setState(State{Status: StatusEditing, Step: w.state.Step - 1})
		}
		return w.state, nil
	case StatusReviewAndPay:
		w.setState(State{Status: StatusEditing, Step: lastStep})
		return w.state, nil
	default:
		return w.state, ErrInvalidTransition
	}
}

// JumpTo moves directly to an editing step. Jumping forward validates
// every step being skipped over, the same gate Next applies.
func (w *Workflow) JumpTo(target int) (State, error) {
	if err := w.begin(); err != nil {
		return w.State(), err
	}
	defer w.transMu.Unlock()

	if w.state.Status != StatusEditing {
		return w.state, ErrInvalidTransition
	}
	if target < firstStep || target > lastStep {
		return w.state, fmt.Errorf("workflow: step %d out of range", target)
	}
	for step := w.state.Step; step < target; step++ {
		if issue := w.draft.ValidateStep(step); issue != ballot.IssueNone {
			return w.state, &ValidationError{Step: step, Issue: issue}
		}
	}
	w.setState(State{Status: StatusEditing, Step: target})
	return w.state, nil
}

// StartPayment freezes the draft, computes the amount and opens a payment
// intent. A gateway failure returns the workflow to review-and-pay with
// the error surfaced; no charge exists at that point.
func (w *Workflow) StartPayment(ctx context.Context) (State, error) {
	if err := w.begin(); err != nil {
		return w.State(), err
	}
	defer w.transMu.Unlock()

	if w.state.Status != StatusReviewAndPay {
		return w.state, ErrInvalidTransition
	}

	amount := int64(w.draft.SeatCount) * w.pricePerSeatCents
	key, err := w.idempotencyKey()
	if err != nil {
		return w.state, err
	}
	snapshot, _ := w.draft.SnapshotJSON()

	w.setState(State{Status: StatusAuthorizingPayment})
	w.journalCreate(ctx, &models.BallotAttempt{
		SessionID:     w.sessionID,
		AmountCents:   amount,
		Currency:      w.currency,
		Status:        models.AttemptStatusAuthorizing,
		DraftSnapshot: snapshot,
	})

	auth, err := w.gateway.CreateIntent(ctx, amount, w.currency, key)
	if err != nil {
		w.logger.Warn("payment intent creation failed", zap.Error(err))
		w.journalStatus(ctx, models.AttemptStatusIntentFailed, err.Error())
		w.setState(State{Status: StatusReviewAndPay, Message: userMessage(err)})
		return w.state, err
	}

	w.stateMu.Lock()
	w.auth = auth
	w.stateMu.Unlock()
	w.journalSetIntent(ctx, auth.IntentID, models.AttemptStatusConfirming)
	w.setState(State{
		Status:           StatusConfirmingPayment,
		ClientSecret:     auth.ClientSecret,
		SupportReference: auth.IntentID,
	})
	return w.state, nil
}

// Confirm submits credentials and consumes the gateway's confirmation
// stream until a terminal outcome. Requires-action events re-enter the
// confirming state so the UI re-prompts; they are not failures.
func (w *Workflow) Confirm(ctx context.Context, credentialsHandle string) (State, error) {
	if err := w.begin(); err != nil {
		return w.State(), err
	}
	defer w.transMu.Unlock()

	if w.state.Status != StatusConfirmingPayment {
		return w.state, ErrInvalidTransition
	}
	if w.auth == nil {
		w.logger.Error("confirming without an authorization")
		return w.state, ErrInconsistentState
	}

	events, err := w.gateway.Confirm(ctx, w.auth.IntentID, credentialsHandle)
	if err != nil {
		return w.handleConfirmError(ctx, err)
	}

	for ev := range events {
		switch ev.Kind {
		case payment.EventRequiresAction:
			w.setAuthStatus(models.PaymentStatusRequiresAction)
			w.setState(State{
				Status:           StatusConfirmingPayment,
				ActionDetails:    ev.ActionDetails,
				ClientSecret:     w.auth.ClientSecret,
				SupportReference: w.auth.IntentID,
				Message:          "additional verification required",
			})
		case payment.EventSucceeded:
			w.setAuthStatus(models.PaymentStatusSucceeded)
			return w.commit(ctx)
		case payment.EventFailed:
			w.setAuthStatus(models.PaymentStatusFailed)
			w.attemptSeq++
			w.journalStatus(ctx, models.AttemptStatusDeclined, ev.FailureReason)
			w.setState(State{
				Status:           StatusReviewAndPay,
				Message:          "payment failed: " + ev.FailureReason,
				SupportReference: w.auth.IntentID,
			})
			return w.state, fmt.Errorf("workflow: payment failed: %s", ev.FailureReason)
		case payment.EventCanceled:
			w.cancelIntentBestEffort(ctx)
			w.setAuthStatus(models.PaymentStatusCanceled)
			w.journalStatus(ctx, models.AttemptStatusCanceled, "")
			w.setState(State{Status: StatusCanceled})
			return w.state, nil
		}
	}

	// The stream ended without a terminal outcome; stay confirming so the
	// UI can retry with the same intent.
	return w.state, fmt.Errorf("workflow: confirmation ended without outcome")
}

// Cancel abandons the attempt. After payment started it voids the intent
// best-effort; once committing has begun it is refused, because a captured
// charge is about to have an election behind it.
func (w *Workflow) Cancel(ctx context.Context) (State, error) {
	if err := w.begin(); err != nil {
		return w.State(), err
	}
	defer w.transMu.Unlock()

	switch w.state.Status {
	case StatusCompleted, StatusCanceled, StatusFailed:
		return w.state, ErrInvalidTransition
	case StatusCommitting:
		return w.state, ErrCancelRefused
	case StatusAuthorizingPayment, StatusConfirmingPayment:
		w.cancelIntentBestEffort(ctx)
		if w.auth != nil {
			w.setAuthStatus(models.PaymentStatusCanceled)
		}
		w.journalStatus(ctx, models.AttemptStatusCanceled, "")
	}
	w.setState(State{Status: StatusCanceled})
	return w.state, nil
}

// commit persists the election. Payment success is a hard precondition,
// enforced here rather than by convention.
func (w *Workflow) commit(ctx context.Context) (State, error) {
	if w.auth == nil || w.auth.Status != models.PaymentStatusSucceeded {
		w.logger.Error("commit attempted without succeeded authorization")
		return w.state, ErrInconsistentState
	}

	w.setState(State{Status: StatusCommitting, SupportReference: w.auth.IntentID})

	id := w.newID()
	rec := &models.ElectionRecord{
		ID:              id,
		Snapshot:        w.draft.Clone(),
		PaymentIntentID: w.auth.IntentID,
		ShareableSlug:   election.ShareableSlug(w.draft.Title, id),
		CreatedAt:       w.clock(),
		Origin:          models.OriginRemote,
	}

	err := w.store.Create(ctx, rec)
	if err == nil {
		w.journalStatus(ctx, models.AttemptStatusCommittedRemote, "")
		w.setState(State{
			Status:           StatusCompleted,
			ElectionID:       &id,
			ShareableSlug:    rec.ShareableSlug,
			Origin:           models.OriginRemote,
			SupportReference: w.auth.IntentID,
		})
		return w.state, nil
	}

	var rejected *election.RejectedError
	if errors.As(err, &rejected) {
		// The worst outcome: a charge exists with no election. Log with
		// full context for manual reconciliation.
		snapshot, _ := w.draft.SnapshotJSON()
		w.logger.Error("store rejected election after successful payment",
			zap.String("payment_intent_id", w.auth.IntentID),
			zap.String("rejection_code", rejected.Code),
			zap.ByteString("draft_snapshot", snapshot),
			zap.Error(err),
		)
		w.journalStatus(ctx, models.AttemptStatusServerRejected, rejected.Message)
		w.setState(State{
			Status:           StatusFailed,
			FailureReason:    FailureServerRejected,
			Message:          "your payment went through but the election could not be saved; contact support with the reference below",
			SupportReference: w.auth.IntentID,
		})
		return w.state, nil
	}

	// Store unreachable after retries. Payment is already captured, so
	// failing here would charge the admin with no election; commit to the
	// local ledger instead and let reconciliation catch up.
	rec.Origin = models.OriginLocalFallback
	if lerr := w.ledger.Put(ctx, rec); lerr != nil {
		snapshot, _ := w.draft.SnapshotJSON()
		w.logger.Error("fallback ledger write failed after successful payment",
			zap.String("payment_intent_id", w.auth.IntentID),
			zap.ByteString("draft_snapshot", snapshot),
			zap.NamedError("store_error", err),
			zap.Error(lerr),
		)
		w.journalStatus(ctx, models.AttemptStatusServerRejected, "fallback ledger write failed: "+lerr.Error())
		w.setState(State{
			Status:           StatusFailed,
			FailureReason:    FailureFallbackWriteFailed,
			Message:          "your payment went through but the election could not be saved; contact support with the reference below",
			SupportReference: w.auth.IntentID,
		})
		return w.state, nil
	}

	if w.jobs != nil {
		if qerr := w.jobs.EnqueueReconcile(ctx, queue.ReconcilePayload{RecordID: id}); qerr != nil {
			// The periodic sweep still picks the record up.
			w.logger.Warn("reconcile enqueue failed", zap.Error(qerr))
		}
	}
	w.journalStatus(ctx, models.AttemptStatusCommittedFallback, "")
	w.logger.Warn("election committed to local fallback, store unreachable",
		zap.String("election_id", id.String()), zap.Error(err))
	w.setState(State{
		Status:           StatusCompleted,
		ElectionID:       &id,
		ShareableSlug:    rec.ShareableSlug,
		Origin:           models.OriginLocalFallback,
		SupportReference: w.auth.IntentID,
	})
	return w.state, nil
}

func (w *Workflow) handleConfirmError(ctx context.Context, err error) (State, error) {
	var ge *payment.GatewayError
	if errors.As(err, &ge) && ge.Retryable() {
		// Transient; the same intent is still open, let the UI retry.
		return w.state, err
	}
	w.setAuthStatus(models.PaymentStatusFailed)
	w.attemptSeq++
	w.journalStatus(ctx, models.AttemptStatusDeclined, err.Error())
	w.setState(State{
		Status:           StatusReviewAndPay,
		Message:          userMessage(err),
		SupportReference: w.auth.IntentID,
	})
	return w.state, err
}

func (w *Workflow) cancelIntentBestEffort(ctx context.Context) {
	if w.auth == nil {
		return
	}
	switch w.auth.Status {
	case models.PaymentStatusSucceeded, models.PaymentStatusCanceled, models.PaymentStatusFailed:
		return
	}
	if err := w.gateway.CancelIntent(ctx, w.auth.IntentID); err != nil {
		w.logger.Warn("intent cancel failed", zap.String("intent_id", w.auth.IntentID), zap.Error(err))
	}
}

func (w *Workflow) begin() error {
	if !w.transMu.TryLock() {
		return ErrWorkflowBusy
	}
	return nil
}

func (w *Workflow) setState(s State) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
	if w.onTransition != nil {
		w.onTransition(s)
	}
}

func (w *Workflow) setAuthStatus(s models.PaymentStatus) {
	w.stateMu.Lock()
	w.auth.Status = s
	w.stateMu.Unlock()
}

// idempotencyKey hashes the draft snapshot, session and attempt sequence.
// An unchanged draft in the same session and attempt always derives the
// same key, so a retried startPayment cannot double-bill.
func (w *Workflow) idempotencyKey() (string, error) {
	snapshot, err := w.draft.SnapshotJSON()
	if err != nil {
		return "", fmt.Errorf("snapshot draft: %w", err)
	}
	h := sha256.New()
	h.Write(snapshot)
	h.Write([]byte(w.sessionID.String()))
	fmt.Fprintf(h, ":%d", w.attemptSeq)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (w *Workflow) journalCreate(ctx context.Context, a *models.BallotAttempt) {
	if w.journal == nil {
		return
	}
	if err := w.journal.Create(ctx, a); err != nil {
		w.logger.Warn("attempt journal create failed", zap.Error(err))
		return
	}
	w.attemptRowID = a.ID
}

func (w *Workflow) journalSetIntent(ctx context.Context, intentID, status string) {
	if w.journal == nil || w.attemptRowID == uuid.Nil {
		return
	}
	if err := w.journal.SetIntent(ctx, w.attemptRowID, intentID, status); err != nil {
		w.logger.Warn("attempt journal update failed", zap.Error(err))
	}
}

func (w *Workflow) journalStatus(ctx context.Context, status, reason string) {
	if w.journal == nil || w.attemptRowID == uuid.Nil {
		return
	}
	if err := w.journal.UpdateStatus(ctx, w.attemptRowID, status, reason); err != nil {
		w.logger.Warn("attempt journal update failed", zap.Error(err))
	}
}

func userMessage(err error) string {
	var ge *payment.GatewayError
	if errors.As(err, &ge) {
		switch ge.Kind {
		case payment.ErrorCardDeclined:
			return "your card was declined; try a different payment method"
		case payment.ErrorConfiguration:
			return "payment is misconfigured; contact the operator"
		default:
			return "payment service is unreachable; try again"
		}
	}
	return err.Error()
}
