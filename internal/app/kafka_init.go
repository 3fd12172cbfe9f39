package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/metrics"
	"github.com/vladislavdragonenkov/orders/internal/service/intake"
)

// intakeRuntime — путь асинхронного приёма: Kafka или внутрипроцессный пул.
type intakeRuntime struct {
	enqueuer  intake.Enqueuer
	producer  *kafka.Producer
	consumers []*kafka.Consumer
	pool      *intake.Pool
}

func deliverer(cfg Config, creator intake.Creator, sink intake.DeadLetterSink, m *metrics.OrderMetrics, logger *log.Entry) *intake.Deliverer {
	consumer := intake.NewConsumer(creator, cfg.IntakePolicy, logger.WithField("component", "intake"))
	opts := []intake.Option{
		intake.WithLogger(logger.WithField("component", "intake-deliverer")),
		intake.WithMetrics(m),
		intake.WithMaxAttempts(cfg.IntakeMaxAttempts),
		intake.WithRetryBaseDelay(cfg.IntakeRetryDelay),
	}
	if sink != nil {
		opts = append(opts, intake.WithDeadLetterSink(sink))
	}
	return intake.NewDeliverer(consumer, opts...)
}

// initIntake поднимает Kafka, если заданы brokers. Иначе заявки обрабатывает пул.
func initIntake(ctx context.Context, cfg Config, creator intake.Creator, m *metrics.OrderMetrics, logger *log.Entry) (*intakeRuntime, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		pool := intake.NewPool(
			deliverer(cfg, creator, nil, m, logger),
			cfg.IntakeWorkers,
			cfg.IntakeQueueSize,
			m,
			logger.WithField("component", "intake-pool"),
		)
		logger.Info("kafka is not configured, using in-process intake pool")
		return &intakeRuntime{enqueuer: pool, pool: pool}, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		return nil, err
	}
	rt := &intakeRuntime{
		producer: producer,
		enqueuer: kafka.NewIntakePublisher(producer, cfg.KafkaIntakeTopic),
	}

	sink := kafka.NewDeadLetterPublisher(producer, cfg.KafkaDLQTopic, cfg.KafkaIntakeTopic)
	handler := kafka.IntakeHandler(deliverer(cfg, creator, sink, m, logger))

	workers := cfg.KafkaConsumerWorkers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		consumer, err := kafka.NewConsumer(brokers, cfg.KafkaGroupID, []string{cfg.KafkaIntakeTopic}, handler)
		if err != nil {
			rt.shutdown(context.Background(), logger)
			return nil, fmt.Errorf("create intake consumer %d: %w", i, err)
		}
		if err := consumer.Start(ctx); err != nil {
			_ = consumer.Stop()
			rt.shutdown(context.Background(), logger)
			return nil, err
		}
		rt.consumers = append(rt.consumers, consumer)
	}

	logger.WithFields(log.Fields{
		"brokers":   brokers,
		"topic":     cfg.KafkaIntakeTopic,
		"dlq_topic": cfg.KafkaDLQTopic,
		"consumers": workers,
	}).Info("kafka intake initialized")
	return rt, nil
}

// shutdown останавливает consumers до producer: DLQ публикуется через него.
func (rt *intakeRuntime) shutdown(ctx context.Context, logger *log.Entry) {
	if rt == nil {
		return
	}
	for _, consumer := range rt.consumers {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	rt.consumers = nil

	if rt.pool != nil {
		if err := rt.pool.Stop(ctx); err != nil {
			logger.WithError(err).Warn("intake pool stopped before draining")
		}
	}
	closeKafkaProducer(rt.producer, logger)
	rt.producer = nil
}

// closeKafkaProducer закрывает Kafka producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
