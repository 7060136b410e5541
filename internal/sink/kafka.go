package sink

import (
	"context"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"cryptoconnect/logger"
	"cryptoconnect/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each event as a JSON message keyed by its stream, so one
// partition sees a stream's events in order.
type Kafka struct {
	writer messageWriter
	log    *logger.Entry
}

func NewKafka(brokers []string, topic string, log *logger.Log) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}
	k := newKafka(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}, log)
	k.log.WithFields(logger.Fields{
		"brokers": brokers,
		"topic":   topic,
	}).Debug("kafka sink initialized")
	return k, nil
}

func newKafka(w messageWriter, log *logger.Log) *Kafka {
	return &Kafka{writer: w, log: log.WithComponent("kafka_sink")}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Write(ctx context.Context, ev models.Event) error {
	data, err := Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(Key(ev)),
		Value: data,
		Time:  ev.Meta().ReceivedAt,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	k.log.Debug("stopping kafka sink")
	return k.writer.Close()
}
