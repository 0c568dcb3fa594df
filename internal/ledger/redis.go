package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/safeballot/backend/internal/models"
)

const (
	recordsKey  = "ledger:elections"
	unsyncedKey = "ledger:elections:unsynced"
)

// RedisLedger stores fallback-committed elections in a Redis hash with a
// companion set of unsynced ids. Each write goes through a transactional
// pipeline so both keys change together.
type RedisLedger struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLedger creates a Redis-backed ledger.
func NewRedisLedger(client *redis.Client, logger *zap.Logger) *RedisLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLedger{client: client, logger: logger}
}

// Put writes or overwrites a record and flags it unsynced.
func (l *RedisLedger) Put(ctx context.Context, rec *models.ElectionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, recordsKey, rec.ID.String(), raw)
	pipe.SAdd(ctx, unsyncedKey, rec.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledger put: %w", err)
	}
	l.logger.Info("election written to fallback ledger", zap.String("election_id", rec.ID.String()))
	return nil
}

// Get returns one record by id.
func (l *RedisLedger) Get(ctx context.Context, id uuid.UUID) (*models.ElectionRecord, error) {
	raw, err := l.client.HGet(ctx, recordsKey, id.String()).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger get: %w", err)
	}
	var rec models.ElectionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// GetAllUnsynced returns every record awaiting reconciliation.
func (l *RedisLedger) GetAllUnsynced(ctx context.Context) ([]models.ElectionRecord, error) {
	ids, err := l.client.SMembers(ctx, unsyncedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger unsynced ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raws, err := l.client.HMGet(ctx, recordsKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger unsynced records: %w", err)
	}
	out := make([]models.ElectionRecord, 0, len(raws))
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			l.logger.Warn("unsynced id without record", zap.String("election_id", ids[i]))
			continue
		}
		var rec models.ElectionRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			l.logger.Warn("invalid ledger record", zap.String("election_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarkSynced evicts an acknowledged record.
func (l *RedisLedger) MarkSynced(ctx context.Context, id uuid.UUID) error {
	pipe := l.client.TxPipeline()
	pipe.SRem(ctx, unsyncedKey, id.String())
	pipe.HDel(ctx, recordsKey, id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledger mark synced: %w", err)
	}
	return nil
}
