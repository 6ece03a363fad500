package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/carpool/internal/observability"
)

// KafkaEmitter publishes lifecycle events to a Kafka topic. Messages are
// keyed by ride ID so all events for one ride land on one partition in
// order.
type KafkaEmitter struct {
	writer *kafka.Writer
}

func NewKafkaEmitter(brokers []string, topic string) *KafkaEmitter {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaEmitter{writer: w}
}

func (k *KafkaEmitter) Emit(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := k.writer.WriteMessages(wctx, kafka.Message{Key: []byte(e.RideID), Value: b}); err != nil {
		return err
	}
	observability.EventsEmittedTotal.WithLabelValues(string(e.Type)).Inc()
	return nil
}

func (k *KafkaEmitter) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
