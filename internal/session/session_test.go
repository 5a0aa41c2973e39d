package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"terrana/internal/backend"
	"terrana/internal/events"
	"terrana/internal/models"
	"terrana/internal/notice"
	"terrana/internal/payment"
	"terrana/internal/quota"
	"terrana/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI stands in for the reservation backend.
type fakeAPI struct {
	records []models.ReservationRecord

	listErr   error
	listCalls int

	createRes   *models.CreateReservationResult
	createErr   error
	createCalls int
	lastDraft   *models.BookingDraft

	updateErr    error
	updateCalls  int
	lastUpdateID int64
	lastFields   map[string]any

	dailyCount int
	dailyErr   error
}

func (f *fakeAPI) ListReservations(ctx context.Context, facilityID int64) ([]models.ReservationRecord, error) {
	f.listCalls++
	return f.records, f.listErr
}

func (f *fakeAPI) CreateReservation(ctx context.Context, draft *models.BookingDraft) (*models.CreateReservationResult, error) {
	f.createCalls++
	copied := *draft
	f.lastDraft = &copied
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createRes != nil {
		return f.createRes, nil
	}
	return &models.CreateReservationResult{ID: 100, Status: models.StatusPending}, nil
}

func (f *fakeAPI) UpdateReservation(ctx context.Context, id int64, fields map[string]any) error {
	f.updateCalls++
	f.lastUpdateID = id
	f.lastFields = fields
	return f.updateErr
}

func (f *fakeAPI) RefreshDailyCount(ctx context.Context) (int, error) {
	return f.dailyCount, f.dailyErr
}

// fakeGateway scripts gateway confirm responses.
type fakeGateway struct {
	created     int
	confirmErrs []error
	confirmRes  *payment.ChargeResult
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount models.Money, metadata map[string]string) (*payment.Intent, error) {
	g.created++
	id := fmt.Sprintf("pi_%d", g.created)
	return &payment.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) CreatePaymentMethod(ctx context.Context, card models.CardDetails, billing models.BillingDetails) (string, error) {
	return "pm_1", nil
}

func (g *fakeGateway) ConfirmCharge(ctx context.Context, clientSecret, paymentMethodID string) (*payment.ChargeResult, error) {
	if len(g.confirmErrs) > 0 {
		err := g.confirmErrs[0]
		g.confirmErrs = g.confirmErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if g.confirmRes != nil {
		return g.confirmRes, nil
	}
	return &payment.ChargeResult{Status: models.AttemptSucceeded, IntentID: "pi_1", Amount: 15050, Currency: "mad"}, nil
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type harness struct {
	api     *fakeAPI
	gateway *fakeGateway
	bus     *events.Bus
	clock   *fixedClock
	engine  *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := zerolog.Nop()
	api := &fakeAPI{}
	gateway := &fakeGateway{}
	bus := events.NewBus()
	clock := &fixedClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}

	store := repository.NewMemoryAvailabilityStore(time.Minute, clock)
	tracker := quota.NewTracker(api, bus, models.MaxDailyReservations, &logger)
	reconciler := payment.NewReconciler(gateway, &logger)
	engine := NewEngine(api, store, tracker, reconciler, bus, clock, &logger)

	return &harness{api: api, gateway: gateway, bus: bus, clock: clock, engine: engine}
}

func (h *harness) selectedSession(t *testing.T, actor models.Actor) *Session {
	t.Helper()

	sess := h.engine.CreateSession(actor)
	key := models.SlotKey{FacilityID: 7, Date: "2026-03-11", Hour: "09:00"}
	require.NoError(t, sess.Select(key, models.Money{Amount: 15050, Currency: "MAD"}))
	return sess
}

func (h *harness) confirmedSession(t *testing.T, actor models.Actor) *Session {
	t.Helper()

	sess := h.selectedSession(t, actor)
	require.NoError(t, sess.Confirm("Ali", "ali@example.com", "+212600000000"))
	return sess
}

func loggedIn() models.Actor {
	id := int64(42)
	return models.Actor{ClientID: &id}
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("StartsIdle", func(t *testing.T) {
		h := newHarness(t)
		sess := h.engine.CreateSession(loggedIn())
		assert.Equal(t, StateIdle, sess.State())
		assert.NotEmpty(t, sess.ID)
	})

	t.Run("EngineLookupByID", func(t *testing.T) {
		h := newHarness(t)
		sess := h.engine.CreateSession(loggedIn())

		got, ok := h.engine.Session(sess.ID)
		require.True(t, ok)
		assert.Same(t, sess, got)

		sess.Close()
		_, ok = h.engine.Session(sess.ID)
		assert.False(t, ok)
	})

	t.Run("SelectOnlyWhileIdle", func(t *testing.T) {
		h := newHarness(t)
		sess := h.confirmedSession(t, loggedIn())

		err := sess.Select(models.SlotKey{FacilityID: 7, Date: "2026-03-12", Hour: "10:00"}, models.Money{})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("ConfirmRequiresSlot", func(t *testing.T) {
		h := newHarness(t)
		sess := h.engine.CreateSession(loggedIn())
		assert.ErrorIs(t, sess.Confirm("Ali", "a@b.c", "123"), ErrMissingSlot)
	})

	t.Run("GuestMustProvideContactDetails", func(t *testing.T) {
		h := newHarness(t)
		sess := h.selectedSession(t, models.Actor{})

		assert.ErrorIs(t, sess.Confirm("", "", ""), ErrGuestDetails)
		assert.ErrorIs(t, sess.Confirm("Guest", "guest@example.com", ""), ErrGuestDetails)
		assert.NoError(t, sess.Confirm("Guest", "guest@example.com", "+212600000000"))
		assert.Equal(t, StateConfirming, sess.State())
	})

	t.Run("LoggedInUserSkipsContactValidation", func(t *testing.T) {
		h := newHarness(t)
		sess := h.selectedSession(t, loggedIn())
		assert.NoError(t, sess.Confirm("", "", ""))
	})
}

func TestSubmitCash(t *testing.T) {
	t.Run("HappyPath", func(t *testing.T) {
		h := newHarness(t)
		h.api.dailyCount = 1
		sess := h.confirmedSession(t, loggedIn())

		require.NoError(t, sess.SubmitCash(context.Background()))
		assert.Equal(t, StatePending, sess.State())
		assert.Equal(t, models.PaymentCash, h.api.lastDraft.PaymentMethod)
		assert.Equal(t, 1, h.engine.Quota().CurrentCount())

		remaining := sess.PendingRemaining()
		assert.Equal(t, models.CashPendingMinutes*time.Minute, remaining)
	})

	t.Run("QuotaBlocksBeforeNetworkCall", func(t *testing.T) {
		h := newHarness(t)
		h.engine.Quota().Increment()
		h.engine.Quota().Increment()

		sess := h.confirmedSession(t, loggedIn())
		err := sess.SubmitCash(context.Background())
		assert.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Equal(t, 0, h.api.createCalls, "quota guard must run before any network call")
		assert.Equal(t, StateConfirming, sess.State())
	})

	t.Run("QuotaDoesNotApplyToGuests", func(t *testing.T) {
		h := newHarness(t)
		h.engine.Quota().Increment()
		h.engine.Quota().Increment()

		sess := h.confirmedSession(t, models.Actor{})
		require.NoError(t, sess.SubmitCash(context.Background()))
		assert.Equal(t, StatePending, sess.State())
		// Guests never bump the user counter either.
		assert.Equal(t, 2, h.engine.Quota().CurrentCount())
	})

	t.Run("QuotaDoesNotApplyToAdmins", func(t *testing.T) {
		h := newHarness(t)
		h.engine.Quota().Increment()
		h.engine.Quota().Increment()

		id := int64(1)
		sess := h.confirmedSession(t, models.Actor{ClientID: &id, IsAdmin: true})
		require.NoError(t, sess.SubmitCash(context.Background()))
	})

	t.Run("ConflictFailsWithFriendlyReason", func(t *testing.T) {
		h := newHarness(t)
		h.api.createErr = backend.ErrConflict

		invalidated := false
		h.bus.Subscribe(events.EventAvailabilityInvalidated, func(e *events.Event) error {
			invalidated = true
			return nil
		})

		sess := h.confirmedSession(t, loggedIn())
		err := sess.SubmitCash(context.Background())
		require.ErrorIs(t, err, backend.ErrConflict)
		assert.Equal(t, StateFailed, sess.State())
		assert.Equal(t, conflictMessage, sess.FailReason())
		assert.True(t, invalidated, "conflict must invalidate cached availability")
	})

	t.Run("BackendErrorFails", func(t *testing.T) {
		h := newHarness(t)
		h.api.createErr = errors.New("http 500")

		sess := h.confirmedSession(t, loggedIn())
		require.Error(t, sess.SubmitCash(context.Background()))
		assert.Equal(t, StateFailed, sess.State())
		assert.NotEmpty(t, sess.FailReason())
	})

	t.Run("RequiresConfirmingState", func(t *testing.T) {
		h := newHarness(t)
		sess := h.selectedSession(t, loggedIn())
		assert.ErrorIs(t, sess.SubmitCash(context.Background()), ErrInvalidState)
	})
}

func TestSubmitOnline(t *testing.T) {
	ctx := context.Background()
	card := models.CardDetails{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2028, CVC: "123"}
	billing := models.BillingDetails{Name: "Ali", Email: "ali@example.com", Phone: "+212600000000"}

	t.Run("HappyPathConfirmsReservation", func(t *testing.T) {
		h := newHarness(t)
		sess := h.confirmedSession(t, loggedIn())

		require.NoError(t, sess.SubmitOnline(ctx, card, billing))
		assert.Equal(t, StateSuccess, sess.State())

		require.Equal(t, 1, h.api.updateCalls)
		assert.Equal(t, int64(100), h.api.lastUpdateID)
		assert.Equal(t, models.StatusConfirmed, h.api.lastFields["status"])
		assert.Equal(t, "pi_1", h.api.lastFields["payment_intent_id"])
	})

	t.Run("ExpiredSecretRetriesSilently", func(t *testing.T) {
		h := newHarness(t)
		h.gateway.confirmErrs = []error{&payment.GatewayError{Code: payment.CodeResourceMissing}}

		sess := h.confirmedSession(t, loggedIn())
		require.NoError(t, sess.SubmitOnline(ctx, card, billing))
		assert.Equal(t, StateSuccess, sess.State())
		assert.Equal(t, 2, h.gateway.created)
	})

	t.Run("DeclineFailsAndKeepsPendingRecord", func(t *testing.T) {
		h := newHarness(t)
		h.gateway.confirmErrs = []error{&payment.GatewayError{Code: "card_declined", Message: "Your card was declined."}}

		sess := h.confirmedSession(t, loggedIn())
		err := sess.SubmitOnline(ctx, card, billing)
		require.ErrorIs(t, err, payment.ErrPaymentFailed)
		assert.Equal(t, StateFailed, sess.State())
		assert.Contains(t, sess.FailReason(), "Your card was declined.")
		// The pending backend record is never touched on payment failure.
		assert.Equal(t, 0, h.api.updateCalls)
	})

	t.Run("ConfirmPatchFailureIsNotAPaymentFailure", func(t *testing.T) {
		h := newHarness(t)
		h.api.updateErr = errors.New("http 500")

		sess := h.confirmedSession(t, loggedIn())
		require.NoError(t, sess.SubmitOnline(ctx, card, billing))
		assert.Equal(t, StateSuccess, sess.State(), "money moved, the user sees success")
	})

	t.Run("GuestNoticesGateSuccess", func(t *testing.T) {
		h := newHarness(t)
		h.api.createRes = &models.CreateReservationResult{
			ID:                100,
			Status:            models.StatusPending,
			IsNewUser:         true,
			EmailSent:         true,
			UserEmail:         "guest@example.com",
			ReservationNumber: "R-1042",
		}

		sess := h.confirmedSession(t, models.Actor{})
		require.NoError(t, sess.SubmitOnline(ctx, card, billing))
		assert.Equal(t, StateNotifyPending, sess.State())

		first, ok := sess.Acknowledge()
		require.True(t, ok)
		assert.Equal(t, notice.TypeNewAccount, first.Type)
		assert.Equal(t, StateNotifyPending, sess.State())

		second, ok := sess.Acknowledge()
		require.True(t, ok)
		assert.Equal(t, notice.TypeEmailConfirmation, second.Type)
		assert.Equal(t, "R-1042", second.ReservationRef)
		assert.Equal(t, StateSuccess, sess.State())

		_, ok = sess.Acknowledge()
		assert.False(t, ok)
	})

	t.Run("ConflictBeforeChargeFails", func(t *testing.T) {
		h := newHarness(t)
		h.api.createErr = backend.ErrConflict

		sess := h.confirmedSession(t, loggedIn())
		require.ErrorIs(t, sess.SubmitOnline(ctx, card, billing), backend.ErrConflict)
		assert.Equal(t, StateFailed, sess.State())
		assert.Equal(t, 0, h.gateway.created, "no charge without a reservation")
	})

	t.Run("PublishesConfirmedEvent", func(t *testing.T) {
		h := newHarness(t)
		var got []*events.Event
		h.bus.Subscribe(events.EventBookingConfirmed, func(e *events.Event) error {
			got = append(got, e)
			return nil
		})

		sess := h.confirmedSession(t, loggedIn())
		require.NoError(t, sess.SubmitOnline(ctx, card, billing))
		assert.Len(t, got, 1)
	})
}

func TestRetryAndCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("RetryRestartsFromConfirming", func(t *testing.T) {
		h := newHarness(t)
		h.api.createErr = errors.New("http 500")

		sess := h.confirmedSession(t, loggedIn())
		require.Error(t, sess.SubmitCash(ctx))
		require.Equal(t, StateFailed, sess.State())

		require.NoError(t, sess.Retry())
		assert.Equal(t, StateConfirming, sess.State())
		assert.Empty(t, sess.FailReason())

		// Same draft, second attempt succeeds.
		h.api.createErr = nil
		require.NoError(t, sess.SubmitCash(ctx))
		assert.Equal(t, StatePending, sess.State())
	})

	t.Run("RetryOnlyFromFailed", func(t *testing.T) {
		h := newHarness(t)
		sess := h.confirmedSession(t, loggedIn())
		assert.ErrorIs(t, sess.Retry(), ErrInvalidState)
	})

	t.Run("CancelResetsToIdle", func(t *testing.T) {
		h := newHarness(t)
		sess := h.confirmedSession(t, loggedIn())

		require.NoError(t, sess.Cancel())
		assert.Equal(t, StateIdle, sess.State())
		assert.Nil(t, sess.Draft())
	})

	t.Run("CancelRefusedAfterSuccess", func(t *testing.T) {
		h := newHarness(t)
		sess := h.confirmedSession(t, loggedIn())
		require.NoError(t, sess.SubmitOnline(ctx, models.CardDetails{}, models.BillingDetails{}))
		require.Equal(t, StateSuccess, sess.State())

		assert.ErrorIs(t, sess.Cancel(), ErrInvalidState)
	})

	t.Run("CancelRefusedWhilePending", func(t *testing.T) {
		h := newHarness(t)
		sess := h.confirmedSession(t, loggedIn())
		require.NoError(t, sess.SubmitCash(ctx))

		assert.ErrorIs(t, sess.Cancel(), ErrInvalidState)
	})
}

func TestEngineAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("CachesWithinTTL", func(t *testing.T) {
		h := newHarness(t)
		h.api.records = []models.ReservationRecord{{ID: 1, FacilityID: 7}}

		_, err := h.engine.Availability(ctx, 7)
		require.NoError(t, err)
		_, err = h.engine.Availability(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 1, h.api.listCalls)
	})

	t.Run("ForceRefreshBypassesCache", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.engine.Availability(ctx, 7)
		require.NoError(t, err)
		require.NoError(t, h.engine.ForceRefresh(ctx, 7))
		assert.Equal(t, 2, h.api.listCalls)
	})

	t.Run("GridClassifiesFetchedRecords", func(t *testing.T) {
		h := newHarness(t)
		h.api.records = []models.ReservationRecord{
			{ID: 1, FacilityID: 7, Date: "2026-03-11", Hour: "09:00:00", Status: models.StatusConfirmed},
		}

		grid, err := h.engine.Grid(ctx, 7)
		require.NoError(t, err)
		cell := grid.Cell("2026-03-11", "09:00")
		require.NotNil(t, cell)
		assert.Equal(t, models.SlotConfirmed, cell.State)
	})

	t.Run("FetchErrorSurfaces", func(t *testing.T) {
		h := newHarness(t)
		h.api.listErr = errors.New("http 500")

		_, err := h.engine.Availability(ctx, 7)
		assert.Error(t, err)
	})
}

func TestExpirePendingCash(t *testing.T) {
	ctx := context.Background()

	t.Run("ExpiresOnlyOverdueCashRecords", func(t *testing.T) {
		h := newHarness(t)
		now := h.clock.now
		h.api.records = []models.ReservationRecord{
			{ID: 1, Status: models.StatusPending, PaymentMethod: models.PaymentCash, CreatedAt: now.Add(-2 * time.Hour)},
			{ID: 2, Status: models.StatusPending, PaymentMethod: models.PaymentCash, CreatedAt: now.Add(-5 * time.Minute)},
			{ID: 3, Status: models.StatusConfirmed, PaymentMethod: models.PaymentCash, CreatedAt: now.Add(-2 * time.Hour)},
			{ID: 4, Status: models.StatusPending, PaymentMethod: models.PaymentOnline, CreatedAt: now.Add(-2 * time.Hour)},
		}

		report, err := h.engine.ExpirePendingCash(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 4, report.Scanned)
		assert.Equal(t, 1, report.Expired)
		assert.Equal(t, 0, report.Failed)
		assert.Equal(t, int64(1), h.api.lastUpdateID)
		assert.Equal(t, models.StatusExpired, h.api.lastFields["status"])
	})

	t.Run("UpdateFailuresAreCounted", func(t *testing.T) {
		h := newHarness(t)
		now := h.clock.now
		h.api.records = []models.ReservationRecord{
			{ID: 1, Status: models.StatusPending, PaymentMethod: models.PaymentCash, CreatedAt: now.Add(-2 * time.Hour)},
		}
		h.api.updateErr = errors.New("http 500")

		report, err := h.engine.ExpirePendingCash(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Expired)
		assert.Equal(t, 1, report.Failed)
	})

	t.Run("ListFailureSurfaces", func(t *testing.T) {
		h := newHarness(t)
		h.api.listErr = errors.New("http 500")

		_, err := h.engine.ExpirePendingCash(ctx, 7)
		assert.Error(t, err)
	})
}

func TestConcurrentSessionReads(t *testing.T) {
	// Readers poll the session while a submission swaps the notice queue.
	// Catches unsynchronized access under the race detector.
	t.Run("NoticesDuringSubmit", func(t *testing.T) {
		h := newHarness(t)
		h.api.createRes = &models.CreateReservationResult{
			ID: 100, Status: models.StatusPending, IsNewUser: true, EmailSent: true,
		}
		sess := h.confirmedSession(t, loggedIn())

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 200; i++ {
				sess.Notices()
				sess.State()
				sess.FailReason()
			}
		}()

		require.NoError(t, sess.SubmitCash(context.Background()))
		<-done

		assert.Len(t, sess.Notices(), 2)
	})

	t.Run("AcknowledgeDuringCancel", func(t *testing.T) {
		h := newHarness(t)
		sess := h.confirmedSession(t, loggedIn())

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 200; i++ {
				sess.Acknowledge()
				sess.Notices()
			}
		}()

		for i := 0; i < 200; i++ {
			_ = sess.Cancel()
		}
		<-done
	})
}

func TestPendingRemaining(t *testing.T) {
	h := newHarness(t)
	sess := h.confirmedSession(t, loggedIn())
	require.NoError(t, sess.SubmitCash(context.Background()))

	h.clock.now = h.clock.now.Add(20 * time.Minute)
	assert.Equal(t, 40*time.Minute, sess.PendingRemaining())

	h.clock.now = h.clock.now.Add(2 * time.Hour)
	assert.Equal(t, time.Duration(0), sess.PendingRemaining())
}
