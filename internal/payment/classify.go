package payment

import (
	"context"
	"errors"
	"fmt"

	"terrana/internal/models"
)

// Gateway codes the classifier cares about. They mirror the gateway's
// wire-level error codes.
const (
	CodeResourceMissing       = "resource_missing"
	CodeIntentUnexpectedState = "payment_intent_unexpected_state"
)

// Intent is a freshly created payment attempt on the gateway side.
type Intent struct {
	ID           string
	ClientSecret string
}

// ChargeResult is the gateway's answer to a charge confirmation.
type ChargeResult struct {
	Status   string
	IntentID string
	Amount   int64
	Currency string
}

// GatewayError is the normalized error shape for all gateway failures.
// When the gateway rejects a confirmation because the intent already
// succeeded, the succeeded intent rides along in Intent.
type GatewayError struct {
	Code    string
	Message string
	Intent  *ChargeResult
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("gateway: %s", e.Code)
}

// Gateway is the payment provider as seen by the reconciler.
type Gateway interface {
	CreateIntent(ctx context.Context, amount models.Money, metadata map[string]string) (*Intent, error)
	CreatePaymentMethod(ctx context.Context, card models.CardDetails, billing models.BillingDetails) (string, error)
	ConfirmCharge(ctx context.Context, clientSecret, paymentMethodID string) (*ChargeResult, error)
}

// Outcome is the domain-level reading of a charge attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	default:
		return "failure"
	}
}

// Classification carries the outcome plus the fields callers need from a
// successful (or replayed) charge.
type Classification struct {
	Outcome  Outcome
	IntentID string
	Amount   int64
	Currency string
	Message  string
}

// ClassifyGatewayResult maps a raw gateway response onto a domain outcome.
// Pure: no gateway calls, fully unit-testable.
//
//   - A succeeded result is a success.
//   - An "already succeeded" error embedding the succeeded intent is a
//     success too: the charge went through on a previous attempt and the
//     retry must not surface as a failure.
//   - A missing resource means the client secret expired; the caller
//     regenerates the intent and retries once.
//   - Everything else is terminal, with the gateway-supplied message.
func ClassifyGatewayResult(res *ChargeResult, err error) Classification {
	if err == nil {
		if res != nil && res.Status == models.AttemptSucceeded {
			return Classification{
				Outcome:  OutcomeSuccess,
				IntentID: res.IntentID,
				Amount:   res.Amount,
				Currency: res.Currency,
			}
		}
		status := ""
		if res != nil {
			status = res.Status
		}
		return Classification{
			Outcome: OutcomeFailure,
			Message: fmt.Sprintf("unexpected charge status %q", status),
		}
	}

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) {
		return Classification{Outcome: OutcomeFailure, Message: err.Error()}
	}

	switch gwErr.Code {
	case CodeIntentUnexpectedState:
		if gwErr.Intent != nil && gwErr.Intent.Status == models.AttemptSucceeded {
			return Classification{
				Outcome:  OutcomeSuccess,
				IntentID: gwErr.Intent.IntentID,
				Amount:   gwErr.Intent.Amount,
				Currency: gwErr.Intent.Currency,
			}
		}
		return Classification{Outcome: OutcomeFailure, Message: gwErr.Message}
	case CodeResourceMissing:
		return Classification{Outcome: OutcomeRetry, Message: gwErr.Message}
	default:
		return Classification{Outcome: OutcomeFailure, Message: gwErr.Message}
	}
}
