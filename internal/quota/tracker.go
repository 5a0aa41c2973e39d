package quota

import (
	"context"
	"sync"

	"terrana/internal/domain"
	"terrana/internal/events"
	"terrana/internal/models"

	"github.com/rs/zerolog"
)

// Tracker holds the daily reservation counter for the logged-in user.
// Submissions bump it optimistically for a responsive UI; Refresh replaces
// it with the backend value, which always wins. Applies only to metered
// actors — admins and guests skip the quota entirely.
type Tracker struct {
	mu     sync.Mutex
	count  int
	limit  int
	api    domain.ReservationAPI
	bus    domain.EventPublisher
	logger *zerolog.Logger
}

func NewTracker(api domain.ReservationAPI, bus domain.EventPublisher, limit int, logger *zerolog.Logger) *Tracker {
	if limit <= 0 {
		limit = models.MaxDailyReservations
	}
	return &Tracker{
		limit:  limit,
		api:    api,
		bus:    bus,
		logger: logger,
	}
}

// CurrentCount reads the local counter.
func (t *Tracker) CurrentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// IsAtLimit reports whether new bookings must be blocked client-side.
func (t *Tracker) IsAtLimit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count >= t.limit
}

// Increment bumps the counter optimistically, right after a submission
// succeeds and before the backend confirms the authoritative count.
func (t *Tracker) Increment() {
	t.mu.Lock()
	t.count++
	count := t.count
	atLimit := t.count >= t.limit
	t.mu.Unlock()

	t.broadcast(count, atLimit)
}

// Refresh replaces the local counter with the backend's value. On failure
// the optimistic value stays put and no change is broadcast.
func (t *Tracker) Refresh(ctx context.Context) error {
	serverCount, err := t.api.RefreshDailyCount(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("quota refresh failed, keeping local count")
		return err
	}

	t.mu.Lock()
	t.count = serverCount
	atLimit := t.count >= t.limit
	t.mu.Unlock()

	t.broadcast(serverCount, atLimit)
	return nil
}

func (t *Tracker) broadcast(count int, atLimit bool) {
	if t.bus == nil {
		return
	}
	payload := events.QuotaChangedPayload{Count: count, AtLimit: atLimit}
	if err := t.bus.PublishJSON(events.EventQuotaChanged, payload); err != nil {
		t.logger.Error().Err(err).Msg("publish quota change")
	}
}
