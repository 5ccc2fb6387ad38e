package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order events to Kafka. The topic is chosen per message so
// one writer serves every topic.
type Producer struct {
	writer messageWriter
}

// Writer limits. Events are written one at a time from request handlers, so
// batching is effectively off and a dead broker gives up quickly.
const (
	batchTimeout = 10 * time.Millisecond
	writeTimeout = 2 * time.Second
	maxAttempts  = 2
)

func NewProducer(brokers []string) *Producer {
	return &Producer{writer: newWriter(brokers)}
}

func newWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              1,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		MaxAttempts:            maxAttempts,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (p *Producer) Publish(ctx context.Context, topic string, message []byte) error {
	if topic == "" {
		return fmt.Errorf("empty kafka topic")
	}
	msg := kafka.Message{
		Topic: topic,
		Value: message,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish failed for topic %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
