package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orders/internal/domain"
	"github.com/vladislavdragonenkov/orders/internal/service/intake"
)

// IntakePublisher ставит заявки на создание заказа в intake topic.
type IntakePublisher struct {
	producer *Producer
	topic    string
}

// NewIntakePublisher создаёт publisher. Пустой topic заменяется на TopicOrderIntake.
func NewIntakePublisher(producer *Producer, topic string) *IntakePublisher {
	if topic == "" {
		topic = TopicOrderIntake
	}
	return &IntakePublisher{producer: producer, topic: topic}
}

// Enqueue публикует заявку с ключом по номеру заказа.
func (p *IntakePublisher) Enqueue(ctx context.Context, req domain.CreateOrderRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	header := sarama.RecordHeader{Key: []byte(HeaderRequestID), Value: []byte(uuid.NewString())}
	return p.producer.PublishEvent(p.topic, req.OrderNumber, req, header)
}

// DeadLetterPublisher отправляет dead letters в DLQ topic.
type DeadLetterPublisher struct {
	producer    *Producer
	topic       string
	sourceTopic string
}

// NewDeadLetterPublisher создаёт sink поверх producer.
// sourceTopic попадает в конверт как original_topic и используется при replay.
func NewDeadLetterPublisher(producer *Producer, topic, sourceTopic string) *DeadLetterPublisher {
	if topic == "" {
		topic = TopicOrderIntakeDLQ
	}
	if sourceTopic == "" {
		sourceTopic = TopicOrderIntake
	}
	return &DeadLetterPublisher{producer: producer, topic: topic, sourceTopic: sourceTopic}
}

func (p *DeadLetterPublisher) DeadLetter(ctx context.Context, letter intake.DeadLetter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	envelope, err := NewDeadLetterEnvelope(p.sourceTopic, letter)
	if err != nil {
		return err
	}

	return p.producer.PublishEvent(p.topic, envelope.OriginalKey, envelope,
		sarama.RecordHeader{Key: []byte(HeaderOriginalTopic), Value: []byte(p.sourceTopic)},
		sarama.RecordHeader{Key: []byte(HeaderErrorKind), Value: []byte(letter.Kind)},
		sarama.RecordHeader{Key: []byte(HeaderAttempts), Value: []byte(strconv.Itoa(letter.Attempts))},
	)
}

// NewDeadLetterEnvelope строит конверт. Без сырого тела в original_value кладётся JSON заявки.
func NewDeadLetterEnvelope(sourceTopic string, letter intake.DeadLetter) (DeadLetterEnvelope, error) {
	value := letter.Raw
	if len(value) == 0 {
		encoded, err := json.Marshal(letter.Request)
		if err != nil {
			return DeadLetterEnvelope{}, fmt.Errorf("failed to marshal dead letter request: %w", err)
		}
		value = encoded
	}

	return DeadLetterEnvelope{
		ID:            uuid.NewString(),
		OriginalTopic: sourceTopic,
		OriginalKey:   letter.Request.OrderNumber,
		OriginalValue: string(value),
		OrderNumber:   letter.Request.OrderNumber,
		ErrorKind:     letter.Kind,
		ErrorMessage:  letter.Reason,
		Attempts:      letter.Attempts,
		FailedAt:      letter.FailedAt.UTC(),
	}, nil
}

var (
	_ intake.DeadLetterSink = (*DeadLetterPublisher)(nil)
	_ intake.Enqueuer       = (*IntakePublisher)(nil)
)
