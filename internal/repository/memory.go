package repository

import (
	"context"
	"sync"
	"time"

	"terrana/internal/domain"
	"terrana/internal/metrics"
	"terrana/internal/models"
)

type memoryEntry struct {
	records  []models.ReservationRecord
	storedAt time.Time
}

// MemoryAvailabilityStore is the in-process availability cache. Within the
// TTL window, Get returns the exact slice stored by Put, so unchanged
// facility selections re-render without a refetch.
type MemoryAvailabilityStore struct {
	mu      sync.RWMutex
	entries map[int64]memoryEntry
	ttl     time.Duration
	clock   domain.Clock
}

func NewMemoryAvailabilityStore(ttl time.Duration, clock domain.Clock) *MemoryAvailabilityStore {
	if ttl <= 0 {
		ttl = models.AvailabilityTTLSeconds * time.Second
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &MemoryAvailabilityStore{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (s *MemoryAvailabilityStore) Get(ctx context.Context, facilityID int64) ([]models.ReservationRecord, bool) {
	s.mu.RLock()
	entry, ok := s.entries[facilityID]
	s.mu.RUnlock()

	if !ok || s.clock.Now().Sub(entry.storedAt) >= s.ttl {
		metrics.IncCache("miss")
		return nil, false
	}

	metrics.IncCache("hit")
	return entry.records, true
}

func (s *MemoryAvailabilityStore) Put(ctx context.Context, facilityID int64, records []models.ReservationRecord) {
	s.mu.Lock()
	s.entries[facilityID] = memoryEntry{records: records, storedAt: s.clock.Now()}
	s.mu.Unlock()
}

func (s *MemoryAvailabilityStore) Invalidate(ctx context.Context, facilityID int64) {
	s.mu.Lock()
	delete(s.entries, facilityID)
	s.mu.Unlock()
}
