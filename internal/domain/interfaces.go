package domain

import (
	"context"
	"time"

	"terrana/internal/models"
)

// ReservationAPI is the backend reservation service the core talks to.
// The backend is the final arbiter of slot exclusivity and quota.
type ReservationAPI interface {
	ListReservations(ctx context.Context, facilityID int64) ([]models.ReservationRecord, error)
	CreateReservation(ctx context.Context, draft *models.BookingDraft) (*models.CreateReservationResult, error)
	UpdateReservation(ctx context.Context, id int64, fields map[string]any) error
	RefreshDailyCount(ctx context.Context) (int, error)
}

// AvailabilityStore caches raw reservation lists per facility. Lookups
// never fail: a miss, an expired entry or a broken store all report
// ok=false and the caller falls through to a network fetch.
type AvailabilityStore interface {
	Get(ctx context.Context, facilityID int64) ([]models.ReservationRecord, bool)
	Put(ctx context.Context, facilityID int64, records []models.ReservationRecord)
	Invalidate(ctx context.Context, facilityID int64)
}

// EventPublisher broadcasts core events to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Clock abstracts wall-clock time so grid classification and cache TTLs
// are testable with a frozen clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
