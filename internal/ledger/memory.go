package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/safeballot/backend/internal/models"
)

// MemoryLedger is an in-process Ledger for tests and local development.
type MemoryLedger struct {
	mu       sync.Mutex
	records  map[uuid.UUID]models.ElectionRecord
	unsynced map[uuid.UUID]bool
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records:  make(map[uuid.UUID]models.ElectionRecord),
		unsynced: make(map[uuid.UUID]bool),
	}
}

func (l *MemoryLedger) Put(ctx context.Context, rec *models.ElectionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.ID] = *rec
	l.unsynced[rec.ID] = true
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, id uuid.UUID) (*models.ElectionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (l *MemoryLedger) GetAllUnsynced(ctx context.Context) ([]models.ElectionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.ElectionRecord
	for id := range l.unsynced {
		if rec, ok := l.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *MemoryLedger) MarkSynced(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.unsynced, id)
	delete(l.records, id)
	return nil
}
