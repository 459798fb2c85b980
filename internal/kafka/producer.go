package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/models"
)

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	mockMode bool
	log      *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, mockMode bool, log *logger.Logger) (*Producer, error) {
	if mockMode {
		log.LogKafka("MOCK_MODE", "producer", "Running in mock mode - no actual Kafka connection")
		return &Producer{
			producer: nil,
			topic:    cfg.Topic,
			mockMode: true,
			log:      log,
		}, nil
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.LogKafka("CONNECTED", "producer", fmt.Sprintf("Connected to Kafka brokers: %v", cfg.Brokers))
	return newProducer(producer, cfg.Topic, log), nil
}

func newProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *Producer {
	return &Producer{producer: producer, topic: topic, log: log}
}

// Notify satisfies services.Notifier. The send is synchronous but bounded by the producer's
// retry settings, and the consumer does the slow part.
func (p *Producer) Notify(ctx context.Context, n *models.TicketNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.PublishTicketNotification(n)
}

func (p *Producer) PublishTicketNotification(n *models.TicketNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", p.topic, fmt.Sprintf("Mock publishing %s for ticket: %s", n.Type, n.TicketID))
		p.log.LogKafka("MOCK_DATA", p.topic, string(data))
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(n.TicketID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(n.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to send message to topic %s: %v", p.topic, err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.LogKafka("PUBLISHED", p.topic, fmt.Sprintf("Message sent to partition %d at offset %d for ticket %s", partition, offset, n.TicketID))
	return nil
}

func (p *Producer) Close() error {
	if p.mockMode {
		p.log.LogKafka("MOCK_CLOSE", "producer", "Mock producer closed")
		return nil
	}

	if p.producer != nil {
		p.log.LogKafka("CLOSING", "producer", "Closing Kafka producer connection")
		return p.producer.Close()
	}
	return nil
}
