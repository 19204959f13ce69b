package config

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/config"
	"github.com/md-rashed-zaman/clinicslots/libs/db"
	"github.com/md-rashed-zaman/clinicslots/libs/events"
	"github.com/md-rashed-zaman/clinicslots/libs/kafkax"
)

const (
	BusKafka = "kafka"
	BusAMQP  = "amqp"

	CacheRedis  = "redis"
	CacheMemory = "memory"
)

type Config struct {
	ServiceName string
	Port        string
	DatabaseURL string
	DB          db.Options
	Migrate     bool

	Bus            string
	KafkaBrokers   []string
	KafkaGroupID   string
	AMQPURL        string
	AMQPExchange   string
	TopicCreated   string
	TopicCancelled string

	CacheBackend  string
	CacheTTL      time.Duration
	CacheSize     int
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ConsumerWorkers      int
	ConsumerMaxAttempts  int
	ConsumerDrainTimeout time.Duration

	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
}

func Load() (Config, error) {
	var cfg Config
	var err error

	cfg.ServiceName = config.String("SERVICE_NAME", "scheduling-service")
	if cfg.Port, err = config.Port("PORT", "8081"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return cfg, err
	}
	cfg.DB = db.Options{MaxConns: int32(maxConns)}
	cfg.Migrate = config.Bool("DB_MIGRATE", true)

	cfg.Bus = config.String("EVENT_BUS", BusKafka)
	cfg.TopicCreated = config.String("TOPIC_APPOINTMENT_CREATED", events.TypeAppointmentCreated)
	cfg.TopicCancelled = config.String("TOPIC_APPOINTMENT_CANCELLED", events.TypeAppointmentCancelled)
	switch cfg.Bus {
	case BusKafka:
		cfg.KafkaBrokers = kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
		if len(cfg.KafkaBrokers) == 0 {
			return cfg, fmt.Errorf("KAFKA_BROKERS is required when EVENT_BUS=%s", BusKafka)
		}
		cfg.KafkaGroupID = config.String("KAFKA_GROUP_ID", cfg.ServiceName)
	case BusAMQP:
		if cfg.AMQPURL, err = config.RequiredString("AMQP_URL"); err != nil {
			return cfg, err
		}
		cfg.AMQPExchange = config.String("AMQP_EXCHANGE", "appointments")
	default:
		return cfg, fmt.Errorf("EVENT_BUS must be %q or %q (got %q)", BusKafka, BusAMQP, cfg.Bus)
	}

	cfg.CacheBackend = config.String("CACHE_BACKEND", CacheRedis)
	if cfg.CacheTTL, err = config.Duration("CACHE_TTL", 10*time.Minute); err != nil {
		return cfg, err
	}
	switch cfg.CacheBackend {
	case CacheRedis:
		cfg.RedisAddr = config.String("REDIS_ADDR", "redis:6379")
		cfg.RedisPassword = config.String("REDIS_PASSWORD", "")
		if cfg.RedisDB, err = config.NonNegativeInt("REDIS_DB", 0); err != nil {
			return cfg, err
		}
	case CacheMemory:
		if cfg.CacheSize, err = config.Int("CACHE_SIZE", 10_000); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("CACHE_BACKEND must be %q or %q (got %q)", CacheRedis, CacheMemory, cfg.CacheBackend)
	}

	if cfg.ConsumerWorkers, err = config.Int("CONSUMER_WORKERS", 8); err != nil {
		return cfg, err
	}
	if cfg.ConsumerMaxAttempts, err = config.Int("CONSUMER_MAX_ATTEMPTS", 5); err != nil {
		return cfg, err
	}
	if cfg.ConsumerDrainTimeout, err = config.Duration("CONSUMER_DRAIN_TIMEOUT", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = config.Duration("HTTP_REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ShutdownGrace, err = config.Duration("SHUTDOWN_GRACE", 10*time.Second); err != nil {
		return cfg, err
	}
	return cfg, nil
}
