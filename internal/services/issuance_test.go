package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/storage"
)

type issuanceFixture struct {
	service  *IssuanceService
	store    *storage.InMemoryStore
	ledger   *memoryLedger
	notifier *MockNotifier
}

func newIssuanceFixture(t *testing.T, wrap func(storage.Store) storage.Store) *issuanceFixture {
	t.Helper()
	store := storage.NewInMemoryStore()
	seedEvent(t, store, "evt_formal")

	var s storage.Store = store
	if wrap != nil {
		s = wrap(store)
	}

	ledger := newMemoryLedger()
	notifier := new(MockNotifier)
	return &issuanceFixture{
		service:  NewIssuanceService(newTestVerifier(), ledger, s, notifier, logger.Discard()),
		store:    store,
		ledger:   ledger,
		notifier: notifier,
	}
}

func (f *issuanceFixture) tickets(t *testing.T) []*models.TicketDetails {
	t.Helper()
	tickets, err := f.store.ListTickets(context.Background(), storage.TicketFilter{})
	require.NoError(t, err)
	return tickets
}

func TestHandleWebhookIssuesTicket(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n *models.TicketNotification) bool {
		return n.Type == models.NotificationTicketIssued &&
			n.Email == "ana@example.com" &&
			n.EventName == "Spring Formal" &&
			n.StudentName == "Ana Lopez"
	})).Return(nil).Once()

	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	res, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIssued, res.Outcome)
	assert.Equal(t, "cs_1", res.SessionID)
	assert.NotEmpty(t, res.TicketID)

	tickets := f.tickets(t)
	require.Len(t, tickets, 1)
	assert.Equal(t, res.TicketID, tickets[0].TicketID)
	assert.Equal(t, "evt_formal", tickets[0].EventID)
	assert.Equal(t, "ana@example.com", tickets[0].Email)
	assert.Equal(t, "Ana Lopez", models.StringValue(tickets[0].StudentName, ""))
	assert.Nil(t, tickets[0].ScannedAt)

	assert.Equal(t, "completed", f.ledger.state("cs_1"))
	f.notifier.AssertExpectations(t)
}

func TestHandleWebhookIsIdempotent(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	outcomes := map[models.IssuanceOutcome]int{}
	for i := 0; i < 5; i++ {
		res, err := f.service.HandleWebhook(context.Background(), payload, sig)
		require.NoError(t, err)
		outcomes[res.Outcome]++
	}

	assert.Equal(t, 1, outcomes[models.OutcomeIssued])
	assert.Equal(t, 4, outcomes[models.OutcomeDuplicate])
	assert.Len(t, f.tickets(t), 1)
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestHandleWebhookConcurrentDeliveries(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.service.HandleWebhook(context.Background(), payload, sig)
			if !assert.NoError(t, err) {
				return
			}
			if res.Outcome == models.OutcomeIssued {
				mu.Lock()
				issued++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, issued)
	assert.Len(t, f.tickets(t), 1)
}

func TestHandleWebhookRollbackAndRetry(t *testing.T) {
	f := newIssuanceFixture(t, func(s storage.Store) storage.Store {
		return &flakyStore{Store: s, createFailures: 1}
	})
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	_, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Empty(t, f.ledger.state("cs_1"), "claim must be released so the retry is not a duplicate")
	assert.Empty(t, f.tickets(t))

	res, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIssued, res.Outcome)
	assert.Len(t, f.tickets(t), 1)
	assert.Equal(t, 1, f.ledger.released)
}

func TestHandleWebhookRollbackSurvivesCancelledRequest(t *testing.T) {
	f := newIssuanceFixture(t, func(s storage.Store) storage.Store {
		return &flakyStore{Store: s, createFailures: 1}
	})
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.HandleWebhook(ctx, payload, sig)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 1, f.ledger.released)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	payload, sig := signedDelivery(t, "payment_intent.succeeded", map[string]interface{}{"id": "pi_1", "object": "payment_intent"})

	res, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, res.Outcome)
	assert.Equal(t, "payment_intent.succeeded", res.EventType)
	assert.Empty(t, f.ledger.entries)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	payload, _ := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	_, err := f.service.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = f.service.HandleWebhook(context.Background(), payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.Empty(t, f.ledger.entries)
	assert.Empty(t, f.tickets(t))
}

func TestHandleWebhookMissingEmailIsPermanent(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	session := checkoutSession("cs_1", "", "evt_formal")
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), session)

	res, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, res.Outcome)
	assert.Equal(t, "processing", f.ledger.state("cs_1"), "rejected sessions keep their claim")

	res, err = f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, res.Outcome)
	assert.Empty(t, f.tickets(t))
}

func TestHandleWebhookUnknownEventIsRejected(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_missing"))

	res, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, res.Outcome)
	assert.Contains(t, res.Reason, "evt_missing")
	assert.Empty(t, f.tickets(t))
}

func TestHandleWebhookLedgerUnavailable(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.ledger.claimErr = errors.New("redis: connection refused")
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	_, err := f.service.HandleWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Empty(t, f.tickets(t))
}

func TestHandleWebhookLostClaimReplyIsReleased(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.ledger.claimErr = errors.New("i/o timeout")
	f.ledger.applyOnError = true
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	_, err := f.service.HandleWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Empty(t, f.ledger.state("cs_1"), "stranded processing marker must be cleared")
	assert.Equal(t, 1, f.ledger.released)

	f.ledger.claimErr = nil
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()
	res, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIssued, res.Outcome)
	assert.Len(t, f.tickets(t), 1)
	assert.Equal(t, "completed", f.ledger.state("cs_1"))
}

func TestHandleWebhookFailedClaimKeepsCompletedMarker(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.ledger.entries["cs_1"] = "completed"
	f.ledger.claimErr = errors.New("i/o timeout")
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	_, err := f.service.HandleWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, "completed", f.ledger.state("cs_1"))
	assert.Zero(t, f.ledger.released)
}

func TestHandleWebhookFailedClaimWithUnreadableLedger(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.ledger.claimErr = errors.New("redis: connection refused")
	f.ledger.stateErr = errors.New("redis: connection refused")
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	_, err := f.service.HandleWebhook(context.Background(), payload, sig)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Zero(t, f.ledger.released)
}

func TestHandleWebhookNotificationFailureIsNotSurfaced(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("queue full")).Once()
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), checkoutSession("cs_1", "ana@example.com", "evt_formal"))

	res, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIssued, res.Outcome)
	assert.Len(t, f.tickets(t), 1)
	assert.Equal(t, "completed", f.ledger.state("cs_1"))
}

func TestParseCheckoutSession(t *testing.T) {
	session := checkoutSession("cs_1", "details@example.com", "evt_formal")
	session["customer_email"] = "fallback@example.com"
	session["custom_fields"] = []interface{}{
		map[string]interface{}{"key": "grade", "type": "text", "text": map[string]interface{}{"value": "10"}},
		map[string]interface{}{"key": "student_name", "type": "text", "text": map[string]interface{}{"value": "Ana"}},
	}
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), session)

	event, err := newTestVerifier().Verify(payload, sig)
	require.NoError(t, err)

	p, err := ParseCheckoutSession(event)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", p.SessionID)
	assert.Equal(t, "details@example.com", p.Email)
	assert.Equal(t, "evt_formal", p.EventID)
	assert.Equal(t, "Spring Formal", p.EventName)
	assert.Equal(t, "Ana", p.StudentName)
	assert.Equal(t, "cus_123", p.StripeCustomerID)
}

func TestParseCheckoutSessionFallbacks(t *testing.T) {
	session := map[string]interface{}{
		"id":             "cs_2",
		"object":         "checkout.session",
		"customer_email": "fallback@example.com",
		"metadata":       map[string]interface{}{"event_id": "evt_formal"},
		"custom_fields": []interface{}{
			map[string]interface{}{"key": "child", "type": "text", "text": map[string]interface{}{"value": "Ben"}},
		},
	}
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), session)

	event, err := newTestVerifier().Verify(payload, sig)
	require.NoError(t, err)

	p, err := ParseCheckoutSession(event)
	require.NoError(t, err)
	assert.Equal(t, "fallback@example.com", p.Email)
	assert.Equal(t, "Ben", p.StudentName)
	assert.Empty(t, p.EventName)
	assert.Empty(t, p.StripeCustomerID)
}

func TestIssuedTicketFallsBackToStoredEventName(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n *models.TicketNotification) bool {
		return n.EventName == "Spring Formal"
	})).Return(nil).Once()

	session := checkoutSession("cs_1", "ana@example.com", "evt_formal")
	session["metadata"] = map[string]interface{}{"event_id": "evt_formal"}
	payload, sig := signedDelivery(t, string(stripe.EventTypeCheckoutSessionCompleted), session)

	_, err := f.service.HandleWebhook(context.Background(), payload, sig)
	require.NoError(t, err)
	f.notifier.AssertExpectations(t)
}
