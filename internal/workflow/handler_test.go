package workflow

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/safeballot/backend/internal/ledger"
	"github.com/safeballot/backend/internal/payment"
	"github.com/safeballot/backend/pkg/response"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Manager, *fakeGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gw := newFakeGateway()
	manager := NewManager(Config{
		Gateway:           gw,
		Store:             &fakeStore{},
		Ledger:            ledger.NewMemoryLedger(),
		Jobs:              &fakeJobs{},
		PricePerSeatCents: 10,
	})
	h := NewHandler(manager, nil, nil)

	r := gin.New()
	r.POST("/workflows", h.Create)
	r.GET("/workflows/:id", h.Get)
	r.PUT("/workflows/:id/draft", h.UpdateDraft)
	r.POST("/workflows/:id/events", h.HandleEvent)
	r.GET("/workflows/:id/attempts", h.ListAttempts)
	return r, manager, gw
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) response.Body {
	t.Helper()
	var b response.Body
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return b
}

func createSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/workflows", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}
	var out struct {
		Data struct {
			SessionID string `json:"session_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(out.Data.SessionID); err != nil {
		t.Fatalf("bad session id %q", out.Data.SessionID)
	}
	return out.Data.SessionID
}

func TestHandlerCreateAndGet(t *testing.T) {
	r, _, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodGet, "/workflows/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	var out struct {
		Data struct {
			State State `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Data.State.Status != StatusEditing || out.Data.State.Step != 1 {
		t.Errorf("new workflow state = %+v", out.Data.State)
	}
}

func TestHandlerUnknownWorkflow(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/workflows/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status %d", rec.Code)
	}
	rec = doJSON(t, r, http.MethodGet, "/workflows/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: status %d", rec.Code)
	}
}

func TestHandlerDraftUpdate(t *testing.T) {
	r, _, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodPut, "/workflows/"+id+"/draft", gin.H{
		"title":      "Board Election 2026",
		"seat_count": 10,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("draft update: status %d body %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data struct {
			Draft struct {
				Title     string `json:"title"`
				SeatCount int    `json:"seat_count"`
			} `json:"draft"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Data.Draft.Title != "Board Election 2026" || out.Data.Draft.SeatCount != 10 {
		t.Errorf("draft = %+v", out.Data.Draft)
	}
}

func TestHandlerValidationRefusal(t *testing.T) {
	r, _, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodPost, "/workflows/"+id+"/events", gin.H{"type": "next"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty draft next: status %d", rec.Code)
	}
	b := decodeBody(t, rec)
	if b.Success {
		t.Error("validation refusal marked success")
	}
}

func TestHandlerFrozenDraftConflict(t *testing.T) {
	r, manager, _ := newTestRouter(t)
	id := createSession(t, r)

	w, _ := manager.Get(uuid.MustParse(id))
	fillAndReview(t, w)

	rec := doJSON(t, r, http.MethodPut, "/workflows/"+id+"/draft", gin.H{"title": "Changed"})
	if rec.Code != http.StatusConflict {
		t.Errorf("frozen draft update: status %d", rec.Code)
	}
}

func TestHandlerPaymentFailureSurfacesState(t *testing.T) {
	r, manager, gw := newTestRouter(t)
	id := createSession(t, r)

	w, _ := manager.Get(uuid.MustParse(id))
	fillAndReview(t, w)
	gw.createErr = &payment.GatewayError{Kind: payment.ErrorCardDeclined, Message: "declined"}

	rec := doJSON(t, r, http.MethodPost, "/workflows/"+id+"/events", gin.H{"type": "start_payment"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("gateway failure: status %d", rec.Code)
	}
	var out struct {
		Data struct {
			State State `json:"state"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Data.State.Status != StatusReviewAndPay {
		t.Errorf("state after failure = %+v", out.Data.State)
	}
	if out.Error == "" {
		t.Error("error message missing")
	}
}

func TestHandlerInvalidTransitionConflict(t *testing.T) {
	r, _, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodPost, "/workflows/"+id+"/events", gin.H{"type": "confirm"})
	if rec.Code != http.StatusConflict {
		t.Errorf("confirm while editing: status %d", rec.Code)
	}
}

func TestHandlerFullRunOverHTTP(t *testing.T) {
	r, _, gw := newTestRouter(t)
	id := createSession(t, r)
	gw.scripts = [][]payment.ConfirmEvent{{{Kind: payment.EventSucceeded}}}

	rec := doJSON(t, r, http.MethodPut, "/workflows/"+id+"/draft", gin.H{
		"title": "Board Election 2026",
		"questions": []gin.H{
			{"title": "Chairperson", "kind": "choice", "options": []string{"Alice", "Bob"}},
		},
		"start_at":   "2026-03-10T09:00:00Z",
		"end_at":     "2026-03-12T09:00:00Z",
		"seat_count": 10,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("draft: status %d body %s", rec.Code, rec.Body.String())
	}

	for i := 0; i < 3; i++ {
		rec = doJSON(t, r, http.MethodPost, "/workflows/"+id+"/events", gin.H{"type": "next"})
		if rec.Code != http.StatusOK {
			t.Fatalf("next %d: status %d body %s", i+1, rec.Code, rec.Body.String())
		}
	}
	rec = doJSON(t, r, http.MethodPost, "/workflows/"+id+"/events", gin.H{"type": "start_payment"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start_payment: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, r, http.MethodPost, "/workflows/"+id+"/events", gin.H{
		"type":               "confirm",
		"credentials_handle": "pm_card",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d body %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Data struct {
			State State `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Data.State.Status != StatusCompleted {
		t.Errorf("final state = %+v", out.Data.State)
	}
	if out.Data.State.ShareableSlug == "" {
		t.Error("completed state missing shareable slug")
	}
}

func TestHandlerListAttemptsWithoutJournal(t *testing.T) {
	r, _, _ := newTestRouter(t)
	id := createSession(t, r)

	rec := doJSON(t, r, http.MethodGet, "/workflows/"+id+"/attempts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("attempts: status %d", rec.Code)
	}
}
