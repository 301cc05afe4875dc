package eventbus

import (
	"provision-saga/internal/common/logger"
)

// NewEventBus creates a Kafka-backed EventBus.
// An empty broker list falls back to localhost:19092.
func NewEventBus(brokers []string, log logger.Logger) EventBus {
	return newKafkaBus(brokers, log)
}
