package repository

import (
	"context"

	"terrana/internal/domain"
	"terrana/internal/models"

	"github.com/rs/zerolog"
)

// FailoverAvailabilityStore layers a shared primary store (Redis) over a
// local fallback. Writes go to both, reads prefer the primary, and
// invalidations always reach both so the fallback cannot keep serving a
// slot that was just booked through the primary path. Because store
// lookups never fail, a broken primary simply degrades to local caching.
type FailoverAvailabilityStore struct {
	primary  domain.AvailabilityStore
	fallback domain.AvailabilityStore
	logger   *zerolog.Logger
}

func NewFailoverAvailabilityStore(primary, fallback domain.AvailabilityStore, logger *zerolog.Logger) *FailoverAvailabilityStore {
	return &FailoverAvailabilityStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (s *FailoverAvailabilityStore) Get(ctx context.Context, facilityID int64) ([]models.ReservationRecord, bool) {
	if records, ok := s.primary.Get(ctx, facilityID); ok {
		return records, ok
	}
	return s.fallback.Get(ctx, facilityID)
}

func (s *FailoverAvailabilityStore) Put(ctx context.Context, facilityID int64, records []models.ReservationRecord) {
	s.primary.Put(ctx, facilityID, records)
	s.fallback.Put(ctx, facilityID, records)
}

func (s *FailoverAvailabilityStore) Invalidate(ctx context.Context, facilityID int64) {
	s.primary.Invalidate(ctx, facilityID)
	s.fallback.Invalidate(ctx, facilityID)
}
