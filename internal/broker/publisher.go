package broker

import (
	"context"
	"log/slog"

	"robot-market/internal/config"
)

// Publisher fans events out to an external broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds the configured publisher, falling back to noop when the
// broker is disabled or unreachable.
func NewPublisher(cfg config.Config, logger *slog.Logger) Publisher {
	switch cfg.Broker {
	case "kafka":
		p, err := newKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Warn("kafka disabled, using noop", "error", err)
			return noopPublisher{reason: err.Error(), logger: logger}
		}
		logger.Info("kafka connected", "topic", cfg.KafkaTopic)
		return p
	case "amqp":
		if cfg.AMQPURL == "" {
			logger.Warn("rabbitmq disabled, using noop", "reason", "empty amqp url")
			return noopPublisher{reason: "empty amqp url", logger: logger}
		}
		p, err := newAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("rabbitmq disabled, using noop", "error", err)
			return noopPublisher{reason: err.Error(), logger: logger}
		}
		logger.Info("rabbitmq connected", "exchange", cfg.AMQPExchange)
		return p
	default:
		return noopPublisher{reason: "broker disabled", logger: logger}
	}
}

type noopPublisher struct {
	reason string
	logger *slog.Logger
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if p.logger != nil {
		p.logger.Debug("noop publish", "routing_key", routingKey)
	}
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// Mode reports the publisher mode for logging.
func Mode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case *kafkaPublisher:
		return "kafka"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// NoopReason explains why a noop publisher was chosen.
func NoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}

// Noop returns a publisher that drops every event.
func Noop() Publisher {
	return noopPublisher{reason: "explicit"}
}
