package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
)

func testNotification() *models.TicketNotification {
	return &models.TicketNotification{
		Type:        models.NotificationTicketIssued,
		TicketID:    "tkt-1",
		EventID:     "evt_formal",
		EventName:   "Spring Formal",
		Email:       "ana@example.com",
		StudentName: "Ana Lopez",
		Timestamp:   time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC),
	}
}

func TestProducerPublishesNotification(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var n models.TicketNotification
		if err := json.Unmarshal(val, &n); err != nil {
			return err
		}
		if n.TicketID != "tkt-1" || n.Email != "ana@example.com" {
			return fmt.Errorf("unexpected payload %s", val)
		}
		return nil
	})

	p := newProducer(sp, "ticket-notifications", logger.Discard())
	require.NoError(t, p.Notify(context.Background(), testNotification()))
	require.NoError(t, p.Close())
}

func TestProducerSendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(errors.New("broker unavailable"))

	p := newProducer(sp, "ticket-notifications", logger.Discard())
	err := p.Notify(context.Background(), testNotification())
	assert.ErrorContains(t, err, "broker unavailable")
	require.NoError(t, p.Close())
}

func TestProducerRespectsCancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := newProducer(sp, "ticket-notifications", logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Notify(ctx, testNotification()), context.Canceled)
	require.NoError(t, p.Close())
}

func TestProducerMockMode(t *testing.T) {
	p, err := NewProducer(config.KafkaConfig{Topic: "ticket-notifications"}, true, logger.Discard())
	require.NoError(t, err)
	assert.NoError(t, p.Notify(context.Background(), testNotification()))
	assert.NoError(t, p.Close())
}
