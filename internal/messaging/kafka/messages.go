package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Topics для Kafka
const (
	TopicOrderIntake    = "orders.intake"
	TopicOrderIntakeDLQ = "orders.intake.dlq"
)

// Kafka headers
const (
	HeaderRequestID     = "x-request-id"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorKind     = "x-error-kind"
	HeaderAttempts      = "x-attempts"
	// HeaderReplayOf ставится dlq-reprocess и содержит id конверта DLQ.
	HeaderReplayOf = "x-replay-of"
)

// DeadLetterEnvelope — формат сообщения в DLQ topic.
// OriginalValue содержит исходное тело, пригодное для повторной публикации.
type DeadLetterEnvelope struct {
	ID            string    `json:"id"`
	OriginalTopic string    `json:"original_topic"`
	OriginalKey   string    `json:"original_key"`
	OriginalValue string    `json:"original_value"`
	OrderNumber   string    `json:"order_number"`
	ErrorKind     string    `json:"error_kind"`
	ErrorMessage  string    `json:"error_message"`
	Attempts      int       `json:"attempts"`
	FailedAt      time.Time `json:"failed_at"`
}

// ParseDeadLetterEnvelope разбирает сообщение из DLQ.
func ParseDeadLetterEnvelope(message *sarama.ConsumerMessage) (*DeadLetterEnvelope, error) {
	var envelope DeadLetterEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dead letter envelope: %w", err)
	}
	if envelope.OriginalValue == "" {
		return nil, fmt.Errorf("dead letter envelope has no original value")
	}
	return &envelope, nil
}

func headerValue(headers []*sarama.RecordHeader, key string) string {
	for _, header := range headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value)
		}
	}
	return ""
}
