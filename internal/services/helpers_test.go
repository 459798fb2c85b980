package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
	"github.com/makors/vender/internal/storage"
)

const testWebhookSecret = "whsec_test_secret"

var errStoreDown = errors.New("store unavailable")

// memoryLedger mimics the redis ledger semantics with a map.
type memoryLedger struct {
	mu       sync.Mutex
	entries  map[string]string
	claimErr error
	stateErr error
	released int
	// applyOnError stores the marker before returning claimErr, like a reply lost after SETNX.
	applyOnError bool
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{entries: make(map[string]string)}
}

func (l *memoryLedger) Claim(ctx context.Context, sessionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimErr != nil {
		if l.applyOnError {
			if _, exists := l.entries[sessionID]; !exists {
				l.entries[sessionID] = "processing"
			}
		}
		return false, l.claimErr
	}
	if _, exists := l.entries[sessionID]; exists {
		return false, nil
	}
	l.entries[sessionID] = "processing"
	return true, nil
}

func (l *memoryLedger) Complete(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[sessionID] = "completed"
	return nil
}

func (l *memoryLedger) Release(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, sessionID)
	l.released++
	return nil
}

func (l *memoryLedger) State(ctx context.Context, sessionID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stateErr != nil {
		return "", l.stateErr
	}
	return l.entries[sessionID], nil
}

func (l *memoryLedger) state(sessionID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[sessionID]
}

// MockNotifier implements Notifier for testing
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n *models.TicketNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// flakyStore fails CreateTicket a fixed number of times before delegating.
type flakyStore struct {
	storage.Store
	mu             sync.Mutex
	createFailures int
}

func (s *flakyStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	s.mu.Lock()
	if s.createFailures > 0 {
		s.createFailures--
		s.mu.Unlock()
		return errStoreDown
	}
	s.mu.Unlock()
	return s.Store.CreateTicket(ctx, t)
}

// racedStore lets another scanner win every conditional update at winnerAt.
type racedStore struct {
	storage.Store
	winnerAt time.Time
}

func (s *racedStore) MarkScanned(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	if _, err := s.Store.MarkScanned(ctx, ticketID, s.winnerAt); err != nil {
		return false, err
	}
	return false, nil
}

func newTestVerifier() *StripeVerifier {
	return NewStripeVerifier(config.StripeConfig{
		WebhookSecret:            testWebhookSecret,
		IgnoreAPIVersionMismatch: true,
	}, logger.Discard())
}

// signedDelivery builds a webhook body wrapping session and signs it with the test secret.
func signedDelivery(t *testing.T, eventType string, session map[string]interface{}) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_" + t.Name(),
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data":        map[string]interface{}{"object": session},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: payload,
		Secret:  testWebhookSecret,
	})
	return signed.Payload, signed.Header
}

func checkoutSession(id, email, eventID string) map[string]interface{} {
	session := map[string]interface{}{
		"id":       id,
		"object":   "checkout.session",
		"customer": "cus_123",
		"customer_details": map[string]interface{}{
			"email": email,
		},
		"metadata": map[string]interface{}{
			"event_id":   eventID,
			"event_name": "Spring Formal",
		},
		"custom_fields": []interface{}{
			map[string]interface{}{
				"key":  "student_name",
				"type": "text",
				"text": map[string]interface{}{"value": "Ana Lopez"},
			},
		},
	}
	return session
}

func seedEvent(t *testing.T, store storage.Store, id string) *models.Event {
	t.Helper()
	event := &models.Event{ID: id, Name: "Spring Formal", StripePriceID: "price_1"}
	require.NoError(t, store.CreateEvent(context.Background(), event))
	return event
}

func seedTicket(t *testing.T, store storage.Store, eventID, email, name string) *models.Ticket {
	t.Helper()
	ctx := context.Background()
	customer, err := store.UpsertCustomer(ctx, email, "")
	require.NoError(t, err)

	ticket := &models.Ticket{
		ID:          "tkt-" + name + "-" + eventID,
		EventID:     eventID,
		CustomerID:  customer.ID,
		StudentName: models.StringPtr(name),
	}
	require.NoError(t, store.CreateTicket(ctx, ticket))
	return ticket
}
