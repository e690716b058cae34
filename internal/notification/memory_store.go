package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
)

// MemoryStore is a process-local DeliveryStore for the CLI and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]domain.DeliveryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.DeliveryRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, txHash string, logIndex int64) (*domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[memoryKey(txHash, logIndex)]
	if !ok {
		return nil, errors.ErrDeliveryNotFound
	}
	return &rec, nil
}

// RecordAttempt upserts rec, counting attempts and keeping a delivered status sticky.
func (s *MemoryStore) RecordAttempt(ctx context.Context, rec *domain.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey(rec.TxHash, rec.LogIndex)
	existing, ok := s.records[key]
	if !ok {
		s.records[key] = *rec
		return nil
	}
	existing.Attempts++
	existing.UpdatedAt = rec.UpdatedAt
	if existing.Status != domain.DeliveryDelivered {
		existing.Status = rec.Status
		existing.LastError = rec.LastError
		existing.DeliveredAt = rec.DeliveredAt
	}
	s.records[key] = existing
	return nil
}

// ListUndelivered mirrors the SQL store: pending or failed, under maxAttempts,
// least recently attempted first.
func (s *MemoryStore) ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]*domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.DeliveryRecord
	for _, rec := range s.records {
		retry := rec.Status == domain.DeliveryPending || rec.Status == domain.DeliveryFailed
		if !retry || rec.Attempts >= maxAttempts {
			continue
		}
		r := rec
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func memoryKey(txHash string, logIndex int64) string {
	return fmt.Sprintf("%s:%d", txHash, logIndex)
}
