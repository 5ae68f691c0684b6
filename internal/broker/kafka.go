package broker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"robot-market/internal/observability"
)

// kafkaPublisher writes every event to a single topic keyed by routing key, so
// events for one conversation stay ordered within a partition.
type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func newKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*kafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &kafkaPublisher{producer: producer, topic: topic, logger: logger}, nil
}

func (p *kafkaPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var headers []sarama.RecordHeader
	if envelope, ok := event.(observability.EventEnvelope); ok {
		for k, v := range envelope.Headers {
			headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
		}
	}

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(routingKey),
		Value:   sarama.ByteEncoder(payload),
		Headers: headers,
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		observability.IncBrokerPublishError("kafka")
		p.logger.Error("kafka publish failed", "routing_key", routingKey, "error", err)
		return err
	}
	return nil
}

func (p *kafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
