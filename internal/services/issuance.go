package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"

	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/metrics"
	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/storage"
	"github.com/makors/vender/internal/utils"
)

const (
	defaultEventName = "Event"
	rollbackTimeout  = 5 * time.Second

	// ledgerProcessing is the marker value a claim leaves until the ticket is committed.
	ledgerProcessing = "processing"
)

// IdempotencyLedger remembers checkout sessions that have been claimed for issuance.
type IdempotencyLedger interface {
	Claim(ctx context.Context, sessionID string) (bool, error)
	Complete(ctx context.Context, sessionID string) error
	Release(ctx context.Context, sessionID string) error
	State(ctx context.Context, sessionID string) (string, error)
}

// Notifier hands a ticket notification to whatever delivers mail. Implementations must not
// block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n *models.TicketNotification) error
}

type IssuanceService struct {
	verifier WebhookVerifier
	ledger   IdempotencyLedger
	store    storage.Store
	notifier Notifier
	log      *logger.Logger
	newID    func() string
}

func NewIssuanceService(verifier WebhookVerifier, ledger IdempotencyLedger, store storage.Store, notifier Notifier, log *logger.Logger) *IssuanceService {
	return &IssuanceService{
		verifier: verifier,
		ledger:   ledger,
		store:    store,
		notifier: notifier,
		log:      log,
		newID:    utils.GenerateTicketID,
	}
}

// HandleWebhook turns a verified checkout.session.completed delivery into exactly one ticket.
// Every returned result should be acknowledged with 200. ErrInvalidSignature and
// ErrMalformedPayload mean the delivery is bad; ErrTransient means the provider should retry.
func (s *IssuanceService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*models.IssuanceResult, error) {
	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		metrics.TrackWebhook("invalid")
		return nil, err
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		s.log.LogWebhook("IGNORED", event.ID, fmt.Sprintf("Event type %s is not handled", event.Type))
		return s.finish(&models.IssuanceResult{Outcome: models.OutcomeIgnored, EventType: string(event.Type)}), nil
	}

	purchase, err := ParseCheckoutSession(event)
	if err != nil {
		metrics.TrackWebhook("invalid")
		s.log.Warn("WEBHOOK", fmt.Sprintf("Could not decode checkout session in %s: %v", event.ID, err))
		return nil, err
	}

	claimed, err := s.ledger.Claim(ctx, purchase.SessionID)
	if err != nil {
		metrics.TrackWebhook("error")
		s.log.Error("WEBHOOK", fmt.Sprintf("Idempotency ledger unavailable for %s: %v", purchase.SessionID, err))
		s.releaseAmbiguousClaim(ctx, purchase.SessionID)
		return nil, fmt.Errorf("%w: claim session: %w", ErrTransient, err)
	}
	if !claimed {
		s.log.LogWebhook("DUPLICATE", purchase.SessionID, "Session already processed or processing")
		return s.finish(&models.IssuanceResult{
			Outcome:   models.OutcomeDuplicate,
			EventType: string(event.Type),
			SessionID: purchase.SessionID,
		}), nil
	}

	result, err := s.issue(ctx, purchase)
	if err != nil {
		metrics.TrackWebhook("error")
		return nil, s.rollback(ctx, purchase.SessionID, err)
	}
	result.EventType = string(event.Type)
	return s.finish(result), nil
}

func (s *IssuanceService) finish(result *models.IssuanceResult) *models.IssuanceResult {
	metrics.TrackWebhook(string(result.Outcome))
	return result
}

// issue runs the store steps. A returned error means nothing permanent was decided and the
// claim must be released.
func (s *IssuanceService) issue(ctx context.Context, p *models.CheckoutPurchase) (*models.IssuanceResult, error) {
	if p.Email == "" || p.EventID == "" {
		s.log.Warn("WEBHOOK", fmt.Sprintf("Session %s is missing email or event_id, needs manual reconciliation", p.SessionID))
		return reject(p, "missing email or event_id"), nil
	}

	event, err := s.store.GetEvent(ctx, p.EventID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("WEBHOOK", fmt.Sprintf("Session %s references unknown event %s, needs manual reconciliation", p.SessionID, p.EventID))
		return reject(p, "unknown event "+p.EventID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}

	customer, err := s.store.UpsertCustomer(ctx, p.Email, p.StripeCustomerID)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	ticket := &models.Ticket{
		ID:          s.newID(),
		EventID:     event.ID,
		CustomerID:  customer.ID,
		StudentName: models.StringPtr(p.StudentName),
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	s.log.LogTicket("ISSUED", ticket.ID, fmt.Sprintf("Ticket for %s issued from session %s", p.Email, p.SessionID))

	if err := s.ledger.Complete(ctx, p.SessionID); err != nil {
		s.log.Warn("WEBHOOK", fmt.Sprintf("Failed to mark session %s completed: %v", p.SessionID, err))
	}

	eventName := p.EventName
	if eventName == "" {
		eventName = event.Name
	}
	if eventName == "" {
		eventName = defaultEventName
	}
	s.notify(ctx, &models.TicketNotification{
		Type:        models.NotificationTicketIssued,
		TicketID:    ticket.ID,
		EventID:     event.ID,
		EventName:   eventName,
		Email:       p.Email,
		StudentName: p.StudentName,
		Timestamp:   ticket.CreatedAt,
	})

	return &models.IssuanceResult{
		Outcome:   models.OutcomeIssued,
		SessionID: p.SessionID,
		TicketID:  ticket.ID,
	}, nil
}

func reject(p *models.CheckoutPurchase, reason string) *models.IssuanceResult {
	return &models.IssuanceResult{
		Outcome:   models.OutcomeRejected,
		SessionID: p.SessionID,
		Reason:    reason,
	}
}

// rollback releases the claim even if the request context is already cancelled.
func (s *IssuanceService) rollback(ctx context.Context, sessionID string, cause error) error {
	s.log.Error("WEBHOOK", fmt.Sprintf("Issuance failed for session %s: %v", sessionID, cause))

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := s.ledger.Release(rctx, sessionID); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to release session %s, retries stay blocked until it expires: %v", sessionID, err))
	} else {
		s.log.LogWebhook("RELEASED", sessionID, "Claim released for retry")
	}
	return fmt.Errorf("%w: %w", ErrTransient, cause)
}

// releaseAmbiguousClaim clears a processing marker after a failed claim. The SETNX may have
// been applied even though the reply was lost, and a stranded marker would turn every retry
// into a duplicate until it expires. Completed markers are left alone.
func (s *IssuanceService) releaseAmbiguousClaim(ctx context.Context, sessionID string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	state, err := s.ledger.State(rctx, sessionID)
	if err != nil {
		s.log.Warn("WEBHOOK", fmt.Sprintf("Could not read ledger state for %s after failed claim: %v", sessionID, err))
		return
	}
	if state != ledgerProcessing {
		return
	}
	if err := s.ledger.Release(rctx, sessionID); err != nil {
		s.log.Error("WEBHOOK", fmt.Sprintf("Failed to release ambiguous claim for %s: %v", sessionID, err))
		return
	}
	s.log.LogWebhook("RELEASED", sessionID, "Ambiguous claim released for retry")
}

func (s *IssuanceService) notify(ctx context.Context, n *models.TicketNotification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		metrics.TrackNotification("dropped")
		s.log.Error("NOTIFY", fmt.Sprintf("Failed to queue %s for ticket %s: %v", n.Type, n.TicketID, err))
		return
	}
	metrics.TrackNotification("queued")
}
