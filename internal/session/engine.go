package session

import (
	"context"
	"sync"

	"terrana/internal/availability"
	"terrana/internal/domain"
	"terrana/internal/events"
	"terrana/internal/models"
	"terrana/internal/notice"
	"terrana/internal/payment"
	"terrana/internal/quota"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine owns the shared collaborators behind every booking session: the
// reservation backend, the availability cache, the quota tracker and the
// payment reconciler. Sessions are created per booking attempt and share
// the engine's state.
type Engine struct {
	api        domain.ReservationAPI
	store      domain.AvailabilityStore
	quota      *quota.Tracker
	reconciler *payment.Reconciler
	bus        domain.EventPublisher
	clock      domain.Clock
	logger     *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewEngine(
	api domain.ReservationAPI,
	store domain.AvailabilityStore,
	quotaTracker *quota.Tracker,
	reconciler *payment.Reconciler,
	bus domain.EventPublisher,
	clock domain.Clock,
	logger *zerolog.Logger,
) *Engine {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Engine{
		api:        api,
		store:      store,
		quota:      quotaTracker,
		reconciler: reconciler,
		bus:        bus,
		clock:      clock,
		logger:     logger,
		sessions:   make(map[string]*Session),
	}
}

// Availability returns the reservation list for a facility, served from
// cache within the TTL and fetched from the backend otherwise.
func (e *Engine) Availability(ctx context.Context, facilityID int64) ([]models.ReservationRecord, error) {
	if records, ok := e.store.Get(ctx, facilityID); ok {
		return records, nil
	}

	records, err := e.api.ListReservations(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	e.store.Put(ctx, facilityID, records)
	return records, nil
}

// Grid classifies the availability of a facility into the schedule grid.
func (e *Engine) Grid(ctx context.Context, facilityID int64) (*availability.Grid, error) {
	records, err := e.Availability(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	return availability.Classify(facilityID, records, e.clock.Now()), nil
}

// ForceRefresh drops the cached list and refetches, surfacing bookings
// made by other clients.
func (e *Engine) ForceRefresh(ctx context.Context, facilityID int64) error {
	e.invalidate(ctx, facilityID)
	_, err := e.Availability(ctx, facilityID)
	return err
}

func (e *Engine) invalidate(ctx context.Context, facilityID int64) {
	e.store.Invalidate(ctx, facilityID)
	if e.bus != nil {
		payload := events.AvailabilityPayload{FacilityID: facilityID}
		if err := e.bus.PublishJSON(events.EventAvailabilityInvalidated, payload); err != nil {
			e.logger.Error().Err(err).Int64("terrain_id", facilityID).Msg("publish cache invalidation")
		}
	}
}

// CreateSession starts a fresh booking session for the actor.
func (e *Engine) CreateSession(actor models.Actor) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		engine:  e,
		actor:   actor,
		state:   StateIdle,
		notices: &notice.Queue{},
	}

	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()

	return s
}

// Session looks up a live session by id.
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

// Quota exposes the shared tracker, e.g. for UI polling endpoints.
func (e *Engine) Quota() *quota.Tracker {
	return e.quota
}

func (e *Engine) dropSession(id string) {
	e.mu.Lock()
	delete(e.sessions, id)
	e.mu.Unlock()
}
