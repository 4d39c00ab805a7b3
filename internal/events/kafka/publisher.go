// Package kafka forwards ledger domain events to Kafka.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// Publisher writes domain events to a fixed Kafka topic using a
// least-bytes partition balancer.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Publisher targeting the given brokers and topic
// (e.g. "ledger.transfers.settled").
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish marshals event as JSON and writes it to the writer's topic. The
// topic argument is accepted for interface compatibility but this
// publisher always writes to the topic it was constructed with, since a
// kafka.Writer is bound to one topic.
func (p *Publisher) Publish(_ string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(
		context.Background(),
		kafka.Message{Value: data},
	)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
