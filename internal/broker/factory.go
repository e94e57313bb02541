package broker

import (
	"fmt"

	"leadintake/internal/config"
	"leadintake/internal/logger"
)

// ErrNotConfigured is returned when broker.type is empty.
var ErrNotConfigured = fmt.Errorf("broker is not configured (set broker.type)")

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaProducer(cfg.Kafka, log.Named("kafka")), nil
	case "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaConsumer(cfg.Kafka, log.Named("kafka")), nil
	case "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
