package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/safeballot/backend/internal/ballot"
	"github.com/safeballot/backend/internal/election"
	"github.com/safeballot/backend/internal/ledger"
	"github.com/safeballot/backend/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	createErr map[uuid.UUID]error
	created   []uuid.UUID
	pingErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{createErr: make(map[uuid.UUID]error)}
}

func (s *fakeStore) Create(ctx context.Context, rec *models.ElectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[rec.ID]; err != nil {
		return err
	}
	s.created = append(s.created, rec.ID)
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id uuid.UUID) (*models.ElectionRecord, error) {
	return nil, &election.RejectedError{StatusCode: 404, Code: "not_found", Message: "not found"}
}

func (s *fakeStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func fallbackRecord() *models.ElectionRecord {
	return &models.ElectionRecord{
		ID: uuid.New(),
		Snapshot: ballot.Draft{
			Title:     "Board Election 2026",
			SeatCount: 10,
		},
		PaymentIntentID: "pi_123",
		CreatedAt:       time.Now(),
		Origin:          models.OriginLocalFallback,
	}
}

func TestSweepReplaysAllRecords(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemoryLedger()
	store := newFakeStore()
	r := New(led, store, NewMemoryFlags(), nil, time.Minute, nil)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		rec := fallbackRecord()
		ids = append(ids, rec.ID)
		if err := led.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	n, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 3 {
		t.Errorf("synced %d, want 3", n)
	}
	if len(store.created) != 3 {
		t.Errorf("store got %d creates", len(store.created))
	}
	for _, id := range ids {
		if _, err := led.Get(ctx, id); err != ledger.ErrNotFound {
			t.Errorf("record %s not evicted after sync", id)
		}
	}
}

func TestSweepSkipsWhenStoreUnreachable(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemoryLedger()
	store := newFakeStore()
	store.pingErr = &election.UnavailableError{Message: "refused"}
	r := New(led, store, NewMemoryFlags(), nil, time.Minute, nil)

	if err := led.Put(ctx, fallbackRecord()); err != nil {
		t.Fatal(err)
	}
	n, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 || len(store.created) != 0 {
		t.Error("sweep ran against an unreachable store")
	}
	if recs, _ := led.GetAllUnsynced(ctx); len(recs) != 1 {
		t.Error("record lost while store was unreachable")
	}
}

func TestSweepKeepsFailingRecords(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemoryLedger()
	store := newFakeStore()
	r := New(led, store, NewMemoryFlags(), nil, time.Minute, nil)

	good := fallbackRecord()
	bad := fallbackRecord()
	store.createErr[bad.ID] = &election.UnavailableError{Message: "timeout"}
	if err := led.Put(ctx, good); err != nil {
		t.Fatal(err)
	}
	if err := led.Put(ctx, bad); err != nil {
		t.Fatal(err)
	}

	n, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("synced %d, want 1", n)
	}
	if _, err := led.Get(ctx, bad.ID); err != nil {
		t.Error("failing record evicted before sync")
	}

	// Next pass converges once the store recovers.
	delete(store.createErr, bad.ID)
	n, err = r.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("second sweep synced %d, want 1", n)
	}
	if recs, _ := led.GetAllUnsynced(ctx); len(recs) != 0 {
		t.Error("ledger did not converge to empty")
	}
}

func TestRejectedRecordStaysInLedger(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemoryLedger()
	store := newFakeStore()
	r := New(led, store, NewMemoryFlags(), nil, time.Minute, nil)

	rec := fallbackRecord()
	store.createErr[rec.ID] = &election.RejectedError{StatusCode: 400, Code: "invalid", Message: "bad record"}
	if err := led.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if err := r.ReconcileRecord(ctx, rec); err == nil {
		t.Fatal("rejection swallowed")
	}
	// Kept for manual intervention, never silently dropped.
	if _, err := led.Get(ctx, rec.ID); err != nil {
		t.Error("rejected record evicted from ledger")
	}
}

func TestInFlightFlagSkipsRecord(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemoryLedger()
	store := newFakeStore()
	flags := NewMemoryFlags()
	r := New(led, store, flags, nil, time.Minute, nil)

	rec := fallbackRecord()
	if err := led.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if ok, _ := flags.TryAcquire(ctx, rec.ID); !ok {
		t.Fatal("could not pre-acquire flag")
	}

	if err := r.ReconcileRecord(ctx, rec); err != nil {
		t.Fatalf("flagged record: %v", err)
	}
	if len(store.created) != 0 {
		t.Error("flagged record was replayed concurrently")
	}

	// Released flag: the record syncs on the next pass.
	if err := flags.Release(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.ReconcileRecord(ctx, rec); err != nil {
		t.Fatalf("after release: %v", err)
	}
	if len(store.created) != 1 {
		t.Error("record not replayed after flag release")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	led := ledger.NewMemoryLedger()
	store := newFakeStore()
	r := New(led, store, NewMemoryFlags(), nil, time.Minute, nil)

	rec := fallbackRecord()
	if err := led.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := r.ReconcileRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	// Replaying an already-synced record is harmless: the store dedupes
	// by id and eviction is a no-op.
	if err := r.ReconcileRecord(ctx, rec); err != nil {
		t.Fatalf("replay: %v", err)
	}
}

func TestMemoryFlags(t *testing.T) {
	ctx := context.Background()
	flags := NewMemoryFlags()
	id := uuid.New()

	if ok, _ := flags.TryAcquire(ctx, id); !ok {
		t.Fatal("fresh flag not acquirable")
	}
	if ok, _ := flags.TryAcquire(ctx, id); ok {
		t.Fatal("held flag acquired twice")
	}
	if err := flags.Release(ctx, id); err != nil {
		t.Fatal(err)
	}
	if ok, _ := flags.TryAcquire(ctx, id); !ok {
		t.Fatal("released flag not acquirable")
	}
}
