package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const forwardTimeout = 5 * time.Second

// Template is the template name the downstream notification service renders
// storefront records with.
const Template = "storefront_notification"

// Message is the envelope consumed by the notification service.
type Message struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject"`
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder publishes every new record for out-of-band delivery. Writes
// are asynchronous; failures are logged and dropped.
type KafkaForwarder struct {
	writer    messageWriter
	recipient string
	log       *zap.Logger
	wg        sync.WaitGroup
}

func NewKafkaForwarder(brokers []string, topic, recipient string, log *zap.Logger) *KafkaForwarder {
	return newKafkaForwarder(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}, recipient, log)
}

func newKafkaForwarder(w messageWriter, recipient string, log *zap.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: w, recipient: recipient, log: log}
}

func (k *KafkaForwarder) Forward(r Record) {
	value, err := json.Marshal(Message{
		To:       k.recipient,
		Subject:  r.Title,
		Template: Template,
		Data: map[string]any{
			"id":        r.ID,
			"body":      r.Body,
			"href":      r.Href,
			"kind":      r.Kind,
			"createdAt": r.CreatedAt,
		},
	})
	if err != nil {
		k.log.Error("encode notification message", zap.String("id", r.ID), zap.Error(err))
		return
	}

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		defer cancel()
		if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(r.ID), Value: value}); err != nil {
			k.log.Warn("forward notification failed", zap.String("id", r.ID), zap.Error(err))
		}
	}()
}

// Close waits for in-flight writes and closes the writer.
func (k *KafkaForwarder) Close() error {
	k.wg.Wait()
	return k.writer.Close()
}
