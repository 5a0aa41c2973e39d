package payment

import (
	"context"
	"errors"
	"strings"

	"terrana/internal/models"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway implements Gateway on top of the Stripe API. All Stripe
// error shapes are normalized into GatewayError so the classifier never
// sees SDK types.
type StripeGateway struct {
	api    *client.API
	logger *zerolog.Logger
}

func NewStripeGateway(secretKey string, logger *zerolog.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, logger: logger}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amount models.Money, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount.Amount),
		Currency: stripe.String(strings.ToLower(amount.Currency)),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, normalizeStripeError(err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) CreatePaymentMethod(ctx context.Context, card models.CardDetails, billing models.BillingDetails) (string, error) {
	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(card.Number),
			ExpMonth: stripe.Int64(card.ExpMonth),
			ExpYear:  stripe.Int64(card.ExpYear),
			CVC:      stripe.String(card.CVC),
		},
		BillingDetails: &stripe.PaymentMethodBillingDetailsParams{
			Name:  stripe.String(billing.Name),
			Email: stripe.String(billing.Email),
			Phone: stripe.String(billing.Phone),
		},
	}
	params.Context = ctx

	pm, err := g.api.PaymentMethods.New(params)
	if err != nil {
		return "", normalizeStripeError(err)
	}
	return pm.ID, nil
}

func (g *StripeGateway) ConfirmCharge(ctx context.Context, clientSecret, paymentMethodID string) (*ChargeResult, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Confirm(intentIDFromSecret(clientSecret), params)
	if err != nil {
		return nil, normalizeStripeError(err)
	}
	return &ChargeResult{
		Status:   string(pi.Status),
		IntentID: pi.ID,
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
	}, nil
}

// intentIDFromSecret extracts the intent id from a client secret of the
// form "pi_xxx_secret_yyy".
func intentIDFromSecret(clientSecret string) string {
	if i := strings.Index(clientSecret, "_secret_"); i > 0 {
		return clientSecret[:i]
	}
	return clientSecret
}

func normalizeStripeError(err error) error {
	var sErr *stripe.Error
	if !errors.As(err, &sErr) {
		return err
	}

	gwErr := &GatewayError{Code: string(sErr.Code), Message: sErr.Msg}
	if sErr.PaymentIntent != nil {
		gwErr.Intent = &ChargeResult{
			Status:   string(sErr.PaymentIntent.Status),
			IntentID: sErr.PaymentIntent.ID,
			Amount:   sErr.PaymentIntent.Amount,
			Currency: string(sErr.PaymentIntent.Currency),
		}
	}
	return gwErr
}
