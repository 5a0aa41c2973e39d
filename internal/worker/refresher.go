package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// AvailabilityRefresher forces a cache-bypassing availability fetch.
type AvailabilityRefresher interface {
	ForceRefresh(ctx context.Context, facilityID int64) error
}

// QuotaRefresher pulls the authoritative daily count.
type QuotaRefresher interface {
	Refresh(ctx context.Context) error
}

// Refresher runs the two background loops the orchestration core needs:
// a periodic forced availability refresh (to surface bookings made by
// other clients regardless of cache validity) and an hourly authoritative
// quota refresh. Failed quota refreshes back off instead of hammering a
// struggling backend.
type Refresher struct {
	availability AvailabilityRefresher
	quota        QuotaRefresher
	facilityIDs  []int64

	availabilityEvery time.Duration
	quotaEvery        time.Duration
	retry             RetryPolicy
	logger            *zerolog.Logger
}

func NewRefresher(
	availability AvailabilityRefresher,
	quota QuotaRefresher,
	facilityIDs []int64,
	availabilityEvery, quotaEvery time.Duration,
	logger *zerolog.Logger,
) *Refresher {
	if availabilityEvery <= 0 {
		availabilityEvery = 5 * time.Minute
	}
	if quotaEvery <= 0 {
		quotaEvery = time.Hour
	}
	return &Refresher{
		availability:      availability,
		quota:             quota,
		facilityIDs:       facilityIDs,
		availabilityEvery: availabilityEvery,
		quotaEvery:        quotaEvery,
		retry: RetryPolicy{
			MaxRetries:    5,
			InitialDelay:  30 * time.Second,
			MaxDelay:      quotaEvery,
			BackoffFactor: 2,
		},
		logger: logger,
	}
}

// Start runs both loops until ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	r.logger.Info().Msg("refresher started")
	defer r.logger.Info().Msg("refresher stopped")

	availabilityTicker := time.NewTicker(r.availabilityEvery)
	defer availabilityTicker.Stop()

	quotaTimer := time.NewTimer(r.quotaEvery)
	defer quotaTimer.Stop()

	quotaFailures := 0

	for {
		select {
		case <-ctx.Done():
			return

		case <-availabilityTicker.C:
			for _, id := range r.facilityIDs {
				if err := r.availability.ForceRefresh(ctx, id); err != nil {
					r.logger.Warn().Err(err).Int64("terrain_id", id).Msg("forced availability refresh failed")
				}
			}

		case <-quotaTimer.C:
			if err := r.quota.Refresh(ctx); err != nil {
				quotaFailures++
				delay := r.retry.NextDelay(quotaFailures)
				r.logger.Warn().Err(err).Dur("retry_in", delay).Msg("background quota refresh failed")
				quotaTimer.Reset(delay)
				continue
			}
			quotaFailures = 0
			quotaTimer.Reset(r.quotaEvery)
		}
	}
}
