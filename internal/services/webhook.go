package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
)

const studentNameField = "student_name"

// WebhookVerifier authenticates a raw webhook body against its signature header.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (stripe.Event, error)
}

// StripeVerifier checks Stripe-Signature headers with the endpoint secret.
type StripeVerifier struct {
	secret  string
	options webhook.ConstructEventOptions
	log     *logger.Logger
}

func NewStripeVerifier(cfg config.StripeConfig, log *logger.Logger) *StripeVerifier {
	log.Info("STRIPE", "Webhook verifier initialized")
	return &StripeVerifier{
		secret: cfg.WebhookSecret,
		options: webhook.ConstructEventOptions{
			Tolerance:                webhook.DefaultTolerance,
			IgnoreAPIVersionMismatch: cfg.IgnoreAPIVersionMismatch,
		},
		log: log,
	}
}

func (v *StripeVerifier) Verify(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, v.options)
	if err == nil {
		return event, nil
	}

	switch {
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		v.log.LogSecurity("WEBHOOK_SIGNATURE", err.Error())
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		v.log.Warn("STRIPE", "Rejected webhook payload: "+err.Error())
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
}

// ParseCheckoutSession extracts the purchase fields from a checkout.session.completed event.
// Missing email or event id are left empty for the caller to judge.
func ParseCheckoutSession(event stripe.Event) (*models.CheckoutPurchase, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event has no data object", ErrMalformedPayload)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: checkout session has no id", ErrMalformedPayload)
	}

	purchase := &models.CheckoutPurchase{
		SessionID:   session.ID,
		Email:       session.CustomerEmail,
		EventID:     session.Metadata["event_id"],
		EventName:   session.Metadata["event_name"],
		StudentName: studentName(session.CustomFields),
	}
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		purchase.Email = session.CustomerDetails.Email
	}
	if session.Customer != nil {
		purchase.StripeCustomerID = session.Customer.ID
	}
	return purchase, nil
}

// studentName prefers the field keyed student_name and falls back to the first text field.
func studentName(fields []*stripe.CheckoutSessionCustomField) string {
	first := ""
	for _, f := range fields {
		if f == nil || f.Text == nil || f.Text.Value == "" {
			continue
		}
		if f.Key == studentNameField {
			return f.Text.Value
		}
		if first == "" {
			first = f.Text.Value
		}
	}
	return first
}
