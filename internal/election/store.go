// Package election talks to the external election persistence service.
package election

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safeballot/backend/internal/models"
)

// Store is the persistence boundary the workflow and reconciler depend on.
type Store interface {
	// Create persists a record. The caller-minted id lets the server
	// deduplicate replays; a conflict on id counts as success.
	Create(ctx context.Context, rec *models.ElectionRecord) error
	Get(ctx context.Context, id uuid.UUID) (*models.ElectionRecord, error)
	Ping(ctx context.Context) error
}

// RejectedError is a definitive 4xx from the store. Retrying cannot help.
type RejectedError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("election store rejected request (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// UnavailableError is a transient store failure (5xx, timeout, refused
// connection) surfaced after retries are exhausted.
type UnavailableError struct {
	Message string
}

func (e *UnavailableError) Error() string {
	return "election store unavailable: " + e.Message
}

// ClientConfig tunes the HTTP client.
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	MaxRetries      uint64        // bounded retries on transient failures
	InitialInterval time.Duration // first backoff delay; zero means library default
}

// Client is the HTTP implementation of Store.
type Client struct {
	baseURL         string
	http            *http.Client
	maxRetries      uint64
	initialInterval time.Duration
	logger          *zap.Logger
}

// NewClient creates an election store client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:         cfg.BaseURL,
		http:            &http.Client{Timeout: timeout},
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		logger:          logger,
	}
}

type questionPayload struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Kind         string   `json:"kind"`
	Options      []string `json:"options"`
	AllowWriteIn bool     `json:"allow_write_in"`
}

type createRequest struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	QuickBallot     bool              `json:"quick_ballot"`
	Questions       []questionPayload `json:"questions"`
	StartAt         time.Time         `json:"start_at"`
	EndAt           time.Time         `json:"end_at"`
	SeatCount       int               `json:"seat_count"`
	PaymentIntentID string            `json:"payment_intent_id"`
	ShareableSlug   string            `json:"shareable_slug,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Create posts the record, retrying transient failures with exponential
// backoff up to MaxRetries. A 409 means the record already exists (a
// reconciliation replay) and is treated as success.
func (c *Client) Create(ctx context.Context, rec *models.ElectionRecord) error {
	body, err := json.Marshal(buildCreateRequest(rec))
	if err != nil {
		return fmt.Errorf("marshal election: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/elections", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &UnavailableError{Message: err.Error()}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode == http.StatusConflict:
			c.logger.Info("election already exists, treating as success", zap.String("election_id", rec.ID.String()))
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			var er errorResponse
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			_ = json.Unmarshal(raw, &er)
			msg := er.Message
			if msg == "" {
				msg = string(raw)
			}
			return backoff.Permanent(&RejectedError{StatusCode: resp.StatusCode, Code: er.Error, Message: msg})
		default:
			return &UnavailableError{Message: fmt.Sprintf("status %d", resp.StatusCode)}
		}
	}

	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		return err
	}
	return nil
}

// Get fetches a record by id.
func (c *Client) Get(ctx context.Context, id uuid.UUID) (*models.ElectionRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/elections/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UnavailableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var rec models.ElectionRecord
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode election: %w", err)
		}
		rec.Origin = models.OriginRemote
		return &rec, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &RejectedError{StatusCode: resp.StatusCode, Code: "not_found", Message: "election not found"}
	case resp.StatusCode >= 500:
		return nil, &UnavailableError{Message: fmt.Sprintf("status %d", resp.StatusCode)}
	default:
		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: "unexpected response"}
	}
}

// Ping probes the store; used by the reconciler before a sweep.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &UnavailableError{Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &UnavailableError{Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if c.initialInterval > 0 {
		eb.InitialInterval = c.initialInterval
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)
}

func buildCreateRequest(rec *models.ElectionRecord) createRequest {
	qs := make([]questionPayload, len(rec.Snapshot.Questions))
	for i, q := range rec.Snapshot.Questions {
		qs[i] = questionPayload{
			Title:        q.Title,
			Description:  q.Description,
			Kind:         q.Kind,
			Options:      q.Options,
			AllowWriteIn: q.AllowWriteIn,
		}
	}
	out := createRequest{
		ID:              rec.ID.String(),
		Title:           rec.Snapshot.Title,
		Description:     rec.Snapshot.Description,
		QuickBallot:     rec.Snapshot.QuickBallot,
		Questions:       qs,
		SeatCount:       rec.Snapshot.SeatCount,
		PaymentIntentID: rec.PaymentIntentID,
		ShareableSlug:   rec.ShareableSlug,
	}
	if rec.Snapshot.StartAt != nil {
		out.StartAt = *rec.Snapshot.StartAt
	}
	if rec.Snapshot.EndAt != nil {
		out.EndAt = *rec.Snapshot.EndAt
	}
	return out
}
