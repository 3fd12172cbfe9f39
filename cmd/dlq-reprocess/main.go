package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

// replayAllKinds отключает фильтр по виду ошибки.
const replayAllKinds = "all"

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	kinds       map[string]bool
}

type replayMessage struct {
	topic    string
	key      string
	value    []byte
	replayOf string
}

// acceptsKind сообщает, подходит ли вид ошибки под фильтр -kinds.
func (c config) acceptsKind(kind string) bool {
	if len(c.kinds) == 0 || c.kinds[replayAllKinds] {
		return true
	}
	return c.kinds[strings.ToLower(strings.TrimSpace(kind))]
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}

	if !cfg.execute {
		return client, consumer, nil, nil
	}

	producerConfig := kafka.NewProducerConfig()

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	// .env необязателен
	_ = godotenv.Load()

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		kindsRaw   string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicOrderIntakeDLQ, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderIntake, "fallback target topic when envelope has no original_topic")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.StringVar(&kindsRaw, "kinds", "internal", "comma-separated error kinds to replay (internal,validation,duplicate,...|all)")
	flag.Parse()

	cfg.kinds = parseKinds(kindsRaw)

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, fmt.Errorf("source-topic is required")
	}
	if strings.TrimSpace(cfg.targetTopic) == "" {
		return config{}, fmt.Errorf("target-topic is required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseKinds(raw string) map[string]bool {
	kinds := make(map[string]bool)
	for _, chunk := range strings.Split(raw, ",") {
		if kind := strings.ToLower(strings.TrimSpace(chunk)); kind != "" {
			kinds[kind] = true
		}
	}
	return kinds
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
		"kinds":        kindNames(cfg.kinds),
	}).Info("starting dlq replay")

	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range []interface{ Close() error }{producer, consumer, client} {
			if c != nil {
				_ = c.Close()
			}
		}
	}()

	return runReplay(ctx, cfg, client, consumer, producer)
}

func runReplay(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) error {
	r, err := newReplayer(cfg, client, consumer, producer)
	if err != nil {
		return err
	}

	stats, err := r.run(ctx)
	if err != nil {
		return err
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(stats.fields()).WithField("mode", mode).Info("dlq replay finished")
	return nil
}

// replayOutcome описывает судьбу одного сообщения DLQ.
type replayOutcome int

const (
	outcomeReplayed replayOutcome = iota
	outcomeFiltered
	outcomeMalformed
)

type replayStats struct {
	scanned   int
	replayed  int
	filtered  int
	malformed int
}

func (s *replayStats) record(outcome replayOutcome) {
	s.scanned++
	switch outcome {
	case outcomeReplayed:
		s.replayed++
	case outcomeFiltered:
		s.filtered++
	case outcomeMalformed:
		s.malformed++
	}
}

func (s *replayStats) merge(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.filtered += other.filtered
	s.malformed += other.malformed
}

func (s replayStats) fields() log.Fields {
	return log.Fields{
		"scanned":   s.scanned,
		"replayed":  s.replayed,
		"filtered":  s.filtered,
		"malformed": s.malformed,
	}
}

// replayer просматривает партиции DLQ по очереди в пределах общего лимита.
type replayer struct {
	cfg      config
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
}

func newReplayer(cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) (*replayer, error) {
	if client == nil || consumer == nil {
		return nil, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return nil, fmt.Errorf("producer is required in execute mode")
	}
	return &replayer{cfg: cfg, client: client, consumer: consumer, producer: producer}, nil
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	var total replayStats

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - total.scanned
		if budget <= 0 {
			break
		}
		stats, err := r.scanPartition(ctx, partition, budget)
		total.merge(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// replayWindow возвращает полуинтервал смещений [start, end) для чтения.
// ok=false, если партиция пуста.
func replayWindow(oldest, newest int64, budget int, fromNewest bool) (start, end int64, ok bool) {
	if newest <= oldest || budget <= 0 {
		return 0, 0, false
	}
	start = oldest
	if fromNewest {
		start = max(newest-int64(budget), oldest)
	}
	return start, newest, true
}

func (r *replayer) scanPartition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	start, end, ok := replayWindow(oldest, newest, budget, r.cfg.fromNewest)
	if !ok {
		return stats, nil
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case err := <-pc.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			outcome, err := r.handle(msg)
			if err != nil {
				return stats, err
			}
			stats.record(outcome)

			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage) (replayOutcome, error) {
	entry := log.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	replay, ok, err := extractReplayMessage(msg, r.cfg)
	switch {
	case err != nil:
		entry.WithError(err).Warn("skip malformed dlq message")
		return outcomeMalformed, nil
	case !ok:
		return outcomeFiltered, nil
	}

	entry = entry.WithFields(log.Fields{
		"target_topic": replay.topic,
		"key":          replay.key,
		"replay_of":    replay.replayOf,
	})
	if !r.cfg.execute {
		entry.Info("dlq replay candidate")
		return outcomeReplayed, nil
	}
	if err := publishReplay(r.producer, replay); err != nil {
		return outcomeReplayed, fmt.Errorf("publish replay message: %w", err)
	}
	entry.Debug("dlq message replayed")
	return outcomeReplayed, nil
}

func publishReplay(producer replayProducer, msg replayMessage) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	producerMessage := &sarama.ProducerMessage{
		Topic:     msg.topic,
		Key:       sarama.StringEncoder(msg.key),
		Value:     sarama.ByteEncoder(msg.value),
		Timestamp: time.Now().UTC(),
	}
	if msg.replayOf != "" {
		producerMessage.Headers = []sarama.RecordHeader{{Key: []byte(kafka.HeaderReplayOf), Value: []byte(msg.replayOf)}}
	}

	_, _, err := producer.SendMessage(producerMessage)
	return err
}

// extractReplayMessage достаёт исходное сообщение из конверта DLQ.
// ok=false означает, что сообщение отфильтровано по виду ошибки.
func extractReplayMessage(msg *sarama.ConsumerMessage, cfg config) (replayMessage, bool, error) {
	envelope, err := kafka.ParseDeadLetterEnvelope(msg)
	if err != nil {
		return replayMessage{}, false, err
	}
	if !cfg.acceptsKind(envelope.ErrorKind) {
		return replayMessage{}, false, nil
	}

	targetTopic := strings.TrimSpace(envelope.OriginalTopic)
	if targetTopic == "" {
		targetTopic = cfg.targetTopic
	}
	key := envelope.OriginalKey
	if key == "" {
		key = envelope.OrderNumber
	}

	return replayMessage{
		topic:    targetTopic,
		key:      key,
		value:    []byte(envelope.OriginalValue),
		replayOf: envelope.ID,
	}, true, nil
}

func kindNames(kinds map[string]bool) []string {
	names := make([]string, 0, len(kinds))
	for kind := range kinds {
		names = append(names, kind)
	}
	slices.Sort(names)
	return names
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
