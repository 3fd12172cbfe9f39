package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/service/intake"
)

// MessageHandler обрабатывает сообщение из Kafka.
// Ошибка означает, что сообщение не обработано и offset не должен сдвигаться.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer представляет участника consumer group
type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	handler  MessageHandler
	logger   *log.Entry
	wg       sync.WaitGroup
}

// NewConsumerConfig возвращает настройки consumer group.
func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	return config
}

// NewConsumer создает новый Kafka consumer
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, NewConsumerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return NewConsumerFromGroup(group, topics, handler, nil), nil
}

// NewConsumerFromGroup собирает consumer поверх готовой группы.
func NewConsumerFromGroup(group sarama.ConsumerGroup, topics []string, handler MessageHandler, logger *log.Entry) *Consumer {
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}
	return &Consumer{
		consumer: group,
		topics:   topics,
		handler:  handler,
		logger:   logger,
	}
}

// IntakeHandler передаёт тело сообщения в Deliverer.
// Отклонённые и исчерпавшие попытки сообщения уже лежат в DLQ, поэтому считаются обработанными.
func IntakeHandler(deliverer *intake.Deliverer) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		_, err := deliverer.DeliverRaw(ctx, message.Value)
		return err
	}
}

// Start запускает consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume должен вызываться в цикле, так как при rebalance он завершается
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}

			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition.
// Необработанное сообщение завершает сессию: после rebalance оно будет прочитано снова
// с последнего закоммиченного offset.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			fields := log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}
			c.logger.WithFields(fields).Debug("received message")

			if err := c.handler(session.Context(), message); err != nil {
				if session.Context().Err() != nil {
					return nil
				}
				c.logger.WithError(err).WithFields(fields).Error("message left unsettled")
				return fmt.Errorf("handle message %s/%d/%d: %w", message.Topic, message.Partition, message.Offset, err)
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
