package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/events"

	"github.com/segmentio/kafka-go"
)

const (
	defaultBrokerAddress = "localhost:19092"
	readTimeout          = 10 * time.Second
	writeTimeout         = 10 * time.Second
)

var ErrBusClosed = errors.New("event bus is closed")

// kafkaBus publishes events keyed by transaction ID, so every event of one transaction lands on
// the same partition and is consumed in order.
type kafkaBus struct {
	brokers   []string
	log       logger.Logger
	writers   map[string]*kafka.Writer
	readers   map[string]*kafka.Reader
	writersMu sync.RWMutex
	readersMu sync.Mutex
	running   bool
	mu        sync.RWMutex
	wg        sync.WaitGroup
}

func newKafkaBus(brokers []string, log logger.Logger) *kafkaBus {
	if len(brokers) == 0 {
		brokers = []string{defaultBrokerAddress}
	}

	return &kafkaBus{
		brokers: brokers,
		log:     log,
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafka.Reader),
		running: true,
	}
}

// Publish publishes an event to a topic
func (r *kafkaBus) Publish(ctx context.Context, topicName string, event events.Event) error {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if !running {
		return ErrBusClosed
	}

	eventJSON, err := marshalEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.AggregateID()),
		Value: eventJSON,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type())},
			{Key: "event_id", Value: []byte(event.ID())},
		},
		Time: event.Timestamp(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := r.getOrCreateWriter(topicName).WriteMessages(writeCtx, message); err != nil {
		return fmt.Errorf("failed to write message to topic %s: %w", topicName, err)
	}

	return nil
}

// SubscribeWithGroupID subscribes to events from a topic with a specific consumer group ID
func (r *kafkaBus) SubscribeWithGroupID(ctx context.Context, topicName, groupID string, handler EventHandler) error {
	if groupID == "" {
		return errors.New("group id is required")
	}

	reader := r.getOrCreateReader(topicName, groupID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.consumeEvents(ctx, reader, handler)
	}()

	return nil
}

// consumeEvents consumes events from a reader and calls the handler
func (r *kafkaBus) consumeEvents(ctx context.Context, reader *kafka.Reader, handler EventHandler) {
	for {
		if ctx.Err() != nil {
			return
		}
		r.mu.RLock()
		running := r.running
		r.mu.RUnlock()
		if !running {
			return
		}

		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		message, err := reader.FetchMessage(readCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			r.log.Error("Error fetching message", logger.Err(err), logger.String("topic", reader.Config().Topic))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		event, err := unmarshalEvent(message.Value)
		if err != nil {
			r.log.Error("Error unmarshaling event", logger.Err(err), logger.Field{Key: "offset", Value: message.Offset})
		} else if err := handler(ctx, event); err != nil {
			r.log.Error("Error handling event", logger.Err(err), logger.String("event_type", event.Type()), logger.String("event_id", event.ID()))
		}

		if err := reader.CommitMessages(ctx, message); err != nil {
			r.log.Error("Error committing message", logger.Err(err))
		}
	}
}

// getOrCreateWriter gets or creates a writer for a topic
func (r *kafkaBus) getOrCreateWriter(topicName string) *kafka.Writer {
	r.writersMu.RLock()
	if writer, exists := r.writers[topicName]; exists {
		r.writersMu.RUnlock()
		return writer
	}
	r.writersMu.RUnlock()

	r.writersMu.Lock()
	defer r.writersMu.Unlock()

	if writer, exists := r.writers[topicName]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(r.brokers...),
		Topic:        topicName,
		Balancer:     &kafka.Hash{},
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	r.writers[topicName] = writer
	return writer
}

// getOrCreateReader gets or creates a reader for a topic and consumer group
func (r *kafkaBus) getOrCreateReader(topicName, groupID string) *kafka.Reader {
	readerKey := topicName + ":" + groupID

	r.readersMu.Lock()
	defer r.readersMu.Unlock()

	if reader, exists := r.readers[readerKey]; exists {
		return reader
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     r.brokers,
		Topic:       topicName,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		StartOffset: kafka.FirstOffset,
	})

	r.readers[readerKey] = reader
	return reader
}

// Close stops consumers and closes all connections
func (r *kafkaBus) Close() error {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	var errs []error

	r.writersMu.Lock()
	for topic, writer := range r.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close writer for topic %s: %w", topic, err))
		}
	}
	r.writersMu.Unlock()

	r.readersMu.Lock()
	for key, reader := range r.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader %s: %w", key, err))
		}
	}
	r.readersMu.Unlock()

	r.wg.Wait()
	return errors.Join(errs...)
}
