package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"terrana/internal/backend"
	"terrana/internal/events"
	"terrana/internal/metrics"
	"terrana/internal/models"
	"terrana/internal/notice"
	"terrana/internal/payment"
)

// Session states. Pending, Success and Failed are terminal; Pending can
// still expire on the backend side if the cash payment never arrives.
const (
	StateIdle             = "idle"
	StateConfirming       = "confirming"
	StateCashSubmitting   = "cash_submitting"
	StatePending          = "pending"
	StateOnlineSubmitting = "online_submitting"
	StateAwaitingGateway  = "awaiting_gateway"
	StateNotifyPending    = "notify_pending"
	StateSuccess          = "success"
	StateFailed           = "failed"
)

var (
	ErrInvalidState   = errors.New("operation not allowed in current state")
	ErrMissingSlot    = errors.New("facility, date and hour are required")
	ErrGuestDetails   = errors.New("name, email and phone are required for guest booking")
	ErrQuotaExceeded  = errors.New("daily reservation limit reached")
	ErrChargeInFlight = errors.New("charge confirmation in flight")
)

const conflictMessage = "this slot was just taken, please pick another one"

// Session drives one candidate booking from slot selection to a terminal
// outcome. All validation failures stay local; every network failure is
// converted into a Failed transition with a human-readable reason.
type Session struct {
	ID     string
	engine *Engine
	actor  models.Actor

	mu             sync.Mutex
	state          string
	draft          *models.BookingDraft
	result         *models.CreateReservationResult
	notices        *notice.Queue
	failReason     string
	pendingSince   time.Time
	chargeInFlight bool
}

// State returns the current machine state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FailReason returns the reason shown to the user in the Failed state.
func (s *Session) FailReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failReason
}

// Draft returns the in-progress draft, nil outside an active flow.
func (s *Session) Draft() *models.BookingDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Result returns the backend submission result once one exists.
func (s *Session) Result() *models.CreateReservationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Notices returns the pending post-booking notices in order.
func (s *Session) Notices() []notice.Notice {
	s.mu.Lock()
	q := s.notices
	s.mu.Unlock()
	return q.Snapshot()
}

// Select records the chosen slot. Only valid while idle; the grid has
// already filtered past and occupied cells, the backend re-validates.
func (s *Session) Select(key models.SlotKey, price models.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrInvalidState
	}

	s.draft = &models.BookingDraft{
		FacilityID: key.FacilityID,
		Date:       key.Date,
		Hour:       key.Hour,
		ClientID:   s.actor.ClientID,
		Price:      price,
	}
	return nil
}

// Confirm moves the session to Confirming once the draft is complete.
// Guests must supply contact details; logged-in users already have them
// on the backend.
func (s *Session) Confirm(name, email, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrInvalidState
	}
	if s.draft == nil || !s.draft.HasSlot() {
		return ErrMissingSlot
	}

	s.draft.Name = name
	s.draft.Email = email
	s.draft.Phone = phone

	if s.actor.IsGuest() && !s.draft.HasContact() {
		return ErrGuestDetails
	}

	s.state = StateConfirming
	return nil
}

// SubmitCash books the slot for on-site payment. The backend creates a
// pending record that expires if not settled within the cash window.
func (s *Session) SubmitCash(ctx context.Context) error {
	draft, err := s.beginSubmit(StateCashSubmitting, models.PaymentCash)
	if err != nil {
		return err
	}

	res, err := s.engine.api.CreateReservation(ctx, draft)
	if err != nil {
		metrics.IncBooking(models.PaymentCash, "failed")
		return s.submitFailed(ctx, draft.FacilityID, err)
	}

	s.mu.Lock()
	s.result = res
	s.notices = notice.FromResult(res)
	s.pendingSince = s.engine.clock.Now()
	s.state = StatePending
	s.mu.Unlock()

	metrics.IncBooking(models.PaymentCash, "pending")
	s.settle(ctx, draft, res, models.StatusPending)
	return nil
}

// SubmitOnline books the slot and charges the card. The reservation is
// only confirmed on the backend after the gateway reports success.
func (s *Session) SubmitOnline(ctx context.Context, card models.CardDetails, billing models.BillingDetails) error {
	draft, err := s.beginSubmit(StateOnlineSubmitting, models.PaymentOnline)
	if err != nil {
		return err
	}

	res, err := s.engine.api.CreateReservation(ctx, draft)
	if err != nil {
		metrics.IncBooking(models.PaymentOnline, "failed")
		return s.submitFailed(ctx, draft.FacilityID, err)
	}

	s.mu.Lock()
	s.result = res
	s.state = StateAwaitingGateway
	s.chargeInFlight = true
	s.mu.Unlock()

	payRes, payErr := s.engine.reconciler.Pay(ctx, payment.PayRequest{
		BookingKey: s.ID,
		Amount:     draft.Price,
		Card:       card,
		Billing:    billing,
		Metadata: map[string]string{
			"reservation_id": strconv.FormatInt(res.ID, 10),
			"terrain_id":     strconv.FormatInt(draft.FacilityID, 10),
			"date":           draft.Date,
			"hour":           draft.Hour,
		},
	})

	s.mu.Lock()
	s.chargeInFlight = false
	s.mu.Unlock()

	if payErr != nil {
		metrics.IncBooking(models.PaymentOnline, "failed")
		s.fail(payErr.Error())
		// The backend record stays pending; re-render so the held slot shows.
		s.engine.invalidate(ctx, draft.FacilityID)
		return payErr
	}

	// The money has moved: a failure to flag the record confirmed must not
	// surface as a payment failure. The backend reconciles from the intent.
	fields := map[string]any{
		"status":            models.StatusConfirmed,
		"payment_intent_id": payRes.IntentID,
	}
	if err := s.engine.api.UpdateReservation(ctx, res.ID, fields); err != nil {
		s.engine.logger.Error().Err(err).
			Int64("reservation_id", res.ID).
			Str("intent_id", payRes.IntentID).
			Msg("confirm after successful charge failed")
	}

	s.mu.Lock()
	s.notices = notice.FromResult(res)
	if s.notices.Drained() {
		s.state = StateSuccess
	} else {
		s.state = StateNotifyPending
	}
	s.mu.Unlock()

	metrics.IncBooking(models.PaymentOnline, "confirmed")
	s.settle(ctx, draft, res, models.StatusConfirmed)
	return nil
}

// Acknowledge consumes the head notice. Once the queue drains, a session
// waiting in NotifyPending settles as Success.
func (s *Session) Acknowledge() (notice.Notice, bool) {
	s.mu.Lock()
	q := s.notices
	s.mu.Unlock()

	head, ok := q.Acknowledge()
	if !ok {
		return head, false
	}

	s.mu.Lock()
	if q.Drained() && s.state == StateNotifyPending {
		s.state = StateSuccess
	}
	s.mu.Unlock()

	return head, true
}

// Retry restarts a failed flow from Confirming with the same draft.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFailed {
		return ErrInvalidState
	}
	if s.draft == nil || !s.draft.HasSlot() {
		return ErrMissingSlot
	}

	s.failReason = ""
	s.result = nil
	s.state = StateConfirming
	return nil
}

// Cancel abandons the booking, discarding the draft and any cached
// client secret. Refused once a submission or charge is in flight and in
// post-payment states: after the gateway settles, only acknowledgements
// move the machine.
func (s *Session) Cancel() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateConfirming, StateFailed:
	case StateAwaitingGateway:
		s.mu.Unlock()
		return ErrChargeInFlight
	default:
		s.mu.Unlock()
		return ErrInvalidState
	}

	s.draft = nil
	s.result = nil
	s.notices = &notice.Queue{}
	s.failReason = ""
	s.state = StateIdle
	s.mu.Unlock()

	s.engine.reconciler.DiscardSecret(s.ID)
	return nil
}

// Close removes the session from the engine registry.
func (s *Session) Close() {
	s.engine.reconciler.DiscardSecret(s.ID)
	s.engine.dropSession(s.ID)
}

// PendingRemaining returns how long a cash booking can still be paid on
// site, for display only: the backend owns the actual expiry.
func (s *Session) PendingRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePending || s.pendingSince.IsZero() {
		return 0
	}
	remaining := models.CashPendingMinutes*time.Minute - s.engine.clock.Now().Sub(s.pendingSince)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// beginSubmit runs the shared submit-time guards. The quota check happens
// here, before any network call; the backend re-validates regardless.
func (s *Session) beginSubmit(nextState, method string) (*models.BookingDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfirming {
		return nil, ErrInvalidState
	}
	if s.actor.Metered() && s.engine.quota.IsAtLimit() {
		return nil, ErrQuotaExceeded
	}

	s.draft.PaymentMethod = method
	s.state = nextState
	return s.draft, nil
}

func (s *Session) submitFailed(ctx context.Context, facilityID int64, err error) error {
	if errors.Is(err, backend.ErrConflict) {
		s.fail(conflictMessage)
		s.engine.invalidate(ctx, facilityID)
		return err
	}

	s.fail(fmt.Sprintf("booking could not be submitted: %v", err))
	return err
}

// settle runs the shared post-success side effects: optimistic quota bump
// with an immediate authoritative refresh, cache invalidation and the
// booking event.
func (s *Session) settle(ctx context.Context, draft *models.BookingDraft, res *models.CreateReservationResult, status string) {
	if s.actor.Metered() {
		s.engine.quota.Increment()
		if err := s.engine.quota.Refresh(ctx); err != nil {
			s.engine.logger.Warn().Err(err).Msg("post-booking quota refresh failed")
		}
	}

	s.engine.invalidate(ctx, draft.FacilityID)

	if s.engine.bus != nil {
		payload := events.BookingEventPayload{
			ReservationID: res.ID,
			FacilityID:    draft.FacilityID,
			Date:          draft.Date,
			Hour:          draft.Hour,
			Status:        status,
			PaymentMethod: draft.PaymentMethod,
		}
		eventType := events.EventBookingSubmitted
		if status == models.StatusConfirmed {
			eventType = events.EventBookingConfirmed
		}
		if err := s.engine.bus.PublishJSON(eventType, payload); err != nil {
			s.engine.logger.Error().Err(err).Int64("reservation_id", res.ID).Msg("publish booking event")
		}
	}
}

func (s *Session) fail(reason string) {
	s.mu.Lock()
	s.state = StateFailed
	s.failReason = reason
	draft := s.draft
	s.mu.Unlock()

	if s.engine.bus != nil {
		payload := events.BookingEventPayload{Reason: reason}
		if draft != nil {
			payload.FacilityID = draft.FacilityID
			payload.Date = draft.Date
			payload.Hour = draft.Hour
		}
		if err := s.engine.bus.PublishJSON(events.EventBookingFailed, payload); err != nil {
			s.engine.logger.Error().Err(err).Msg("publish booking failure")
		}
	}
}
