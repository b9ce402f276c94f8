package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// EventOrderRequested is the event type for a market order request
const EventOrderRequested = "ORDER_REQUESTED"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order requests to Kafka
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishMarketOrder publishes a day market order and returns its order id
func (p *Producer) PublishMarketOrder(ctx context.Context, symbol, side string, qty int64, reason string) (string, error) {
	if qty <= 0 {
		return "", fmt.Errorf("invalid order quantity %d", qty)
	}
	event := models.OrderEvent{
		EventType:   EventOrderRequested,
		OrderID:     uuid.NewString(),
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
		Type:        "market",
		TimeInForce: "day",
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
	if err := p.publish(ctx, symbol, event); err != nil {
		return "", err
	}
	return event.OrderID, nil
}

func (p *Producer) publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
