package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/mailer"
	"github.com/makors/vender/internal/metrics"
	"github.com/makors/vender/internal/models"
)

type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	sender   mailer.Sender
	log      *logger.Logger
}

func NewNotificationConsumer(cfg config.KafkaConfig, sender mailer.Sender, log *logger.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	consumer, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.LogKafka("SUBSCRIBED", cfg.Topic, fmt.Sprintf("Consumer group %s joined", cfg.GroupID))
	return &Consumer{
		consumer: consumer,
		topics:   []string{cfg.Topic},
		sender:   sender,
		log:      log,
	}, nil
}

// ConsumeNotifications blocks, mailing every notification on the topic until ctx is done.
func (c *Consumer) ConsumeNotifications(ctx context.Context) error {
	handler := &NotificationConsumerHandler{Sender: c.sender, Log: c.log}

	for {
		if err := c.consumer.Consume(ctx, c.topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error consuming messages: %v", err))
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	c.log.LogKafka("CLOSING", "consumer", "Closing Kafka consumer group")
	return c.consumer.Close()
}

// NotificationConsumerHandler is the sarama group handler behind ConsumeNotifications.
type NotificationConsumerHandler struct {
	Sender mailer.Sender
	Log    *logger.Logger
}

func (h *NotificationConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *NotificationConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim mails each notification. Undecodable messages are marked so they do not wedge
// the partition; failed sends are left unmarked.
func (h *NotificationConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var n models.TicketNotification
		if err := json.Unmarshal(message.Value, &n); err != nil {
			h.Log.Error("KAFKA", fmt.Sprintf("Failed to unmarshal message at offset %d: %v", message.Offset, err))
			session.MarkMessage(message, "")
			continue
		}

		if err := h.Sender.SendTicket(session.Context(), &n); err != nil {
			metrics.TrackNotification("failed")
			h.Log.Error("KAFKA", fmt.Sprintf("Failed to deliver %s for ticket %s: %v", n.Type, n.TicketID, err))
			continue
		}

		metrics.TrackNotification("sent")
		session.MarkMessage(message, "")
	}

	return nil
}
