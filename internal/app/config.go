package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/jobs"
	"github.com/vladislavdragonenkov/orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders/internal/service/intake"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
	CacheDriverNone   = "none"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr        string
	GRPCAddr        string
	MetricsAddr     string
	LogLevel        string
	ShutdownTimeout time.Duration

	StorageDriver        string
	PostgresDSN          string
	PostgresAutoMigrate  bool
	PostgresMaxOpenConns int

	CacheDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// KafkaBrokers — список через запятую. Пустое значение отключает Kafka.
	KafkaBrokers         string
	KafkaGroupID         string
	KafkaIntakeTopic     string
	KafkaDLQTopic        string
	KafkaConsumerWorkers int

	IntakeWorkers     int
	IntakeQueueSize   int
	IntakeMaxAttempts int
	IntakeRetryDelay  time.Duration
	IntakePolicy      intake.Policy

	StatsSchedule string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":50051",
		MetricsAddr:     ":9090",
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		CacheDriver: CacheDriverMemory,
		RedisAddr:   "localhost:6379",
		RedisPrefix: "orders:view:",

		KafkaGroupID:         "orders-intake",
		KafkaIntakeTopic:     kafka.TopicOrderIntake,
		KafkaDLQTopic:        kafka.TopicOrderIntakeDLQ,
		KafkaConsumerWorkers: 3,

		IntakeWorkers:     3,
		IntakeQueueSize:   100,
		IntakeMaxAttempts: 3,
		IntakeRetryDelay:  100 * time.Millisecond,
		IntakePolicy:      intake.PolicyRetryTransient,

		StatsSchedule: jobs.DefaultStatsSchedule,
	}
}

// ConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Ошибки разбора всех переменных возвращаются вместе.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	p := envParser{getenv: getenv}

	p.str("OMS_HTTP_ADDR", &cfg.HTTPAddr)
	p.str("OMS_GRPC_ADDR", &cfg.GRPCAddr)
	p.str("OMS_METRICS_ADDR", &cfg.MetricsAddr)
	p.str("OMS_LOG_LEVEL", &cfg.LogLevel)
	p.duration("OMS_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	p.str("OMS_STORAGE_DRIVER", &cfg.StorageDriver)
	p.str("OMS_POSTGRES_DSN", &cfg.PostgresDSN)
	p.boolean("OMS_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	p.integer("OMS_POSTGRES_MAX_OPEN_CONNS", &cfg.PostgresMaxOpenConns)

	p.str("OMS_CACHE_DRIVER", &cfg.CacheDriver)
	p.str("OMS_REDIS_ADDR", &cfg.RedisAddr)
	p.str("OMS_REDIS_PASSWORD", &cfg.RedisPassword)
	p.integer("OMS_REDIS_DB", &cfg.RedisDB)
	p.str("OMS_REDIS_PREFIX", &cfg.RedisPrefix)

	p.str("KAFKA_BROKERS", &cfg.KafkaBrokers)
	p.str("OMS_KAFKA_GROUP", &cfg.KafkaGroupID)
	p.str("OMS_KAFKA_INTAKE_TOPIC", &cfg.KafkaIntakeTopic)
	p.str("OMS_KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)
	p.integer("OMS_KAFKA_CONSUMER_WORKERS", &cfg.KafkaConsumerWorkers)

	p.integer("OMS_INTAKE_WORKERS", &cfg.IntakeWorkers)
	p.integer("OMS_INTAKE_QUEUE_SIZE", &cfg.IntakeQueueSize)
	p.integer("OMS_INTAKE_MAX_ATTEMPTS", &cfg.IntakeMaxAttempts)
	p.duration("OMS_INTAKE_RETRY_DELAY", &cfg.IntakeRetryDelay)
	if raw := p.get("OMS_INTAKE_POLICY"); raw != "" {
		policy, err := intake.ParsePolicy(raw)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("OMS_INTAKE_POLICY: %w", err))
		} else {
			cfg.IntakePolicy = policy
		}
	}

	p.str("OMS_STATS_SCHEDULE", &cfg.StatsSchedule)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate проверяет значения, которые нельзя исправить значениями по умолчанию.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("OMS_POSTGRES_DSN is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.CacheDriver {
	case CacheDriverMemory, CacheDriverNone:
	case CacheDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("OMS_REDIS_ADDR is required for redis cache driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cache driver %q", c.CacheDriver))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("OMS_LOG_LEVEL: %w", err))
	}

	return errors.Join(errs...)
}

// Brokers возвращает список Kafka brokers без пустых элементов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

type envParser struct {
	getenv func(string) string
	errs   []error
}

func (p *envParser) get(key string) string {
	return strings.TrimSpace(p.getenv(key))
}

func (p *envParser) str(key string, dst *string) {
	if v := p.get(key); v != "" {
		*dst = v
	}
}

func (p *envParser) integer(key string, dst *int) {
	v := p.get(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return
	}
	*dst = n
}

func (p *envParser) boolean(key string, dst *bool) {
	v := p.get(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid bool %q", key, v))
		return
	}
	*dst = b
}

func (p *envParser) duration(key string, dst *time.Duration) {
	v := p.get(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return
	}
	*dst = d
}
