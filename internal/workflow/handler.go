package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safeballot/backend/internal/ballot"
	"github.com/safeballot/backend/internal/models"
	"github.com/safeballot/backend/internal/payment"
	"github.com/safeballot/backend/pkg/response"
)

// AttemptLister reads the payment-attempt journal for a session.
type AttemptLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.BallotAttempt, error)
}

// Handler exposes the workflow over HTTP.
type Handler struct {
	manager  *Manager
	attempts AttemptLister
	logger   *zap.Logger
}

// NewHandler creates a workflow handler. attempts may be nil when the
// journal is not deployed.
func NewHandler(manager *Manager, attempts AttemptLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, attempts: attempts, logger: logger}
}

// Create handles POST /workflows: start a new ballot-creation attempt.
func (h *Handler) Create(c *gin.Context) {
	w := h.manager.Create()
	response.Created(c, gin.H{
		"session_id": w.SessionID(),
		"state":      w.State(),
		"draft":      w.Draft(),
	})
}

// Get handles GET /workflows/:id.
func (h *Handler) Get(c *gin.Context) {
	w, ok := h.lookup(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{
		"session_id": w.SessionID(),
		"state":      w.State(),
		"draft":      w.Draft(),
	})
}

// DraftRequest is the body for PUT /workflows/:id/draft. Only present
// fields are applied.
type DraftRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	QuickBallot *bool              `json:"quick_ballot"`
	Questions   *[]ballot.Question `json:"questions"`
	StartAt     *time.Time         `json:"start_at"`
	EndAt       *time.Time         `json:"end_at"`
	SeatCount   *int               `json:"seat_count"`
}

// UpdateDraft handles PUT /workflows/:id/draft.
func (h *Handler) UpdateDraft(c *gin.Context) {
	w, ok := h.lookup(c)
	if !ok {
		return
	}
	var req DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	draft, err := w.ApplyDraftUpdate(DraftUpdate{
		Title:       req.Title,
		Description: req.Description,
		QuickBallot: req.QuickBallot,
		Questions:   req.Questions,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		SeatCount:   req.SeatCount,
	})
	switch {
	case errors.Is(err, ErrFrozenDraft):
		response.Conflict(c, "draft is frozen during payment")
	case errors.Is(err, ErrWorkflowBusy):
		response.Conflict(c, "another transition is in flight")
	case err != nil:
		response.Internal(c, "failed to update draft")
	default:
		response.OK(c, gin.H{"draft": draft, "state": w.State()})
	}
}

// EventRequest is the body for POST /workflows/:id/events.
type EventRequest struct {
	Type              EventType `json:"type" binding:"required"`
	Step              int       `json:"step"`
	CredentialsHandle string    `json:"credentials_handle"`
}

// HandleEvent handles POST /workflows/:id/events.
func (h *Handler) HandleEvent(c *gin.Context) {
	w, ok := h.lookup(c)
	if !ok {
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	state, err := w.Transition(c.Request.Context(), Event{
		Type:              req.Type,
		Step:              req.Step,
		CredentialsHandle: req.CredentialsHandle,
	})
	if err == nil {
		response.OK(c, gin.H{"state": state})
		return
	}

	var ve *ValidationError
	var ge *payment.GatewayError
	switch {
	case errors.As(err, &ve):
		response.UnprocessableEntity(c, gin.H{"state": state, "step": ve.Step, "issue": ve.Issue}, ve.Error())
	case errors.Is(err, ErrWorkflowBusy):
		response.Conflict(c, "another transition is in flight")
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(c, "transition not allowed in current state")
	case errors.Is(err, ErrCancelRefused):
		response.Conflict(c, "payment captured and commit in progress; contact support")
	case errors.As(err, &ge):
		response.PaymentRequired(c, gin.H{"state": state}, err.Error())
	case errors.Is(err, ErrInconsistentState):
		h.logger.Error("workflow contract violation", zap.String("session_id", w.SessionID().String()), zap.Error(err))
		response.Internal(c, "internal workflow error")
	default:
		// Payment declines and similar attempt-level failures: the state
		// already reflects the outcome, surface both.
		response.PaymentRequired(c, gin.H{"state": state}, err.Error())
	}
}

// ListAttempts handles GET /workflows/:id/attempts.
func (h *Handler) ListAttempts(c *gin.Context) {
	w, ok := h.lookup(c)
	if !ok {
		return
	}
	if h.attempts == nil {
		response.OK(c, []models.BallotAttempt{})
		return
	}
	list, err := h.attempts.ListBySession(c.Request.Context(), w.SessionID())
	if err != nil {
		response.Internal(c, "failed to list attempts")
		return
	}
	response.OK(c, list)
}

func (h *Handler) lookup(c *gin.Context) (*Workflow, bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid workflow id")
		return nil, false
	}
	w, ok := h.manager.Get(sessionID)
	if !ok {
		response.NotFound(c, "workflow not found")
		return nil, false
	}
	return w, true
}
