package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"terrana/internal/metrics"
	"terrana/internal/models"

	"github.com/rs/zerolog"
)

// ErrPaymentFailed wraps terminal gateway failures. The message carries
// the gateway's own wording for the user.
var ErrPaymentFailed = errors.New("payment failed")

// PayRequest describes one charge. BookingKey scopes the cached client
// secret so a retry for the same booking reuses the intent instead of
// creating a second charge.
type PayRequest struct {
	BookingKey string
	Amount     models.Money
	Card       models.CardDetails
	Billing    models.BillingDetails
	Metadata   map[string]string
}

// PayResult is the settled outcome of a successful charge.
type PayResult struct {
	IntentID string
	Amount   int64
	Currency string
}

// Reconciler drives the create-intent / tokenize / confirm sequence and
// absorbs the gateway's non-idempotent failure modes: an "already
// succeeded" replay resolves as success, and an expired client secret is
// regenerated and retried once without user intervention.
type Reconciler struct {
	gateway Gateway
	logger  *zerolog.Logger

	mu      sync.Mutex
	intents map[string]*Intent
}

func NewReconciler(gateway Gateway, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{
		gateway: gateway,
		logger:  logger,
		intents: make(map[string]*Intent),
	}
}

// Pay runs one full charge attempt for the booking.
func (r *Reconciler) Pay(ctx context.Context, req PayRequest) (*PayResult, error) {
	intent, err := r.ensureIntent(ctx, req, false)
	if err != nil {
		return nil, fmt.Errorf("create payment attempt: %w", err)
	}

	paymentMethodID, err := r.gateway.CreatePaymentMethod(ctx, req.Card, req.Billing)
	if err != nil {
		metrics.IncPayment(OutcomeFailure.String())
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, gatewayMessage(err))
	}

	res, confirmErr := r.gateway.ConfirmCharge(ctx, intent.ClientSecret, paymentMethodID)
	c := ClassifyGatewayResult(res, confirmErr)

	if c.Outcome == OutcomeRetry {
		// The cached secret expired server-side. One silent retry with a
		// fresh intent; a second expiry is terminal.
		r.logger.Info().Str("booking_key", req.BookingKey).Msg("client secret expired, regenerating intent")
		intent, err = r.ensureIntent(ctx, req, true)
		if err != nil {
			return nil, fmt.Errorf("regenerate payment attempt: %w", err)
		}
		res, confirmErr = r.gateway.ConfirmCharge(ctx, intent.ClientSecret, paymentMethodID)
		c = ClassifyGatewayResult(res, confirmErr)
		if c.Outcome == OutcomeRetry {
			c = Classification{Outcome: OutcomeFailure, Message: c.Message}
		}
	}

	metrics.IncPayment(c.Outcome.String())

	switch c.Outcome {
	case OutcomeSuccess:
		r.DiscardSecret(req.BookingKey)
		return &PayResult{IntentID: c.IntentID, Amount: c.Amount, Currency: c.Currency}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, c.Message)
	}
}

// DiscardSecret drops the cached intent for a booking, e.g. on session
// cancellation or after settlement.
func (r *Reconciler) DiscardSecret(bookingKey string) {
	r.mu.Lock()
	delete(r.intents, bookingKey)
	r.mu.Unlock()
}

// ensureIntent returns the cached intent for the booking key, creating a
// fresh one when absent or when force is set. A new intent invalidates
// whatever secret was cached before.
func (r *Reconciler) ensureIntent(ctx context.Context, req PayRequest, force bool) (*Intent, error) {
	r.mu.Lock()
	cached, ok := r.intents[req.BookingKey]
	r.mu.Unlock()

	if ok && !force {
		return cached, nil
	}

	intent, err := r.gateway.CreateIntent(ctx, req.Amount, req.Metadata)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.intents[req.BookingKey] = intent
	r.mu.Unlock()

	return intent, nil
}

func gatewayMessage(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return err.Error()
}
