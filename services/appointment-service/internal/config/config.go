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
)

type Config struct {
	ServiceName string
	Port        string
	DatabaseURL string
	DB          db.Options
	Migrate     bool

	Bus            string
	KafkaBrokers   []string
	AMQPURL        string
	AMQPExchange   string
	TopicCreated   string
	TopicCancelled string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxBackoff   time.Duration

	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
}

func Load() (Config, error) {
	var cfg Config
	var err error

	cfg.ServiceName = config.String("SERVICE_NAME", "appointment-service")
	if cfg.Port, err = config.Port("PORT", "8082"); err != nil {
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
	case BusAMQP:
		if cfg.AMQPURL, err = config.RequiredString("AMQP_URL"); err != nil {
			return cfg, err
		}
		cfg.AMQPExchange = config.String("AMQP_EXCHANGE", "appointments")
	default:
		return cfg, fmt.Errorf("EVENT_BUS must be %q or %q (got %q)", BusKafka, BusAMQP, cfg.Bus)
	}

	if cfg.OutboxPollInterval, err = config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.OutboxBatchSize, err = config.Int("OUTBOX_BATCH_SIZE", 50); err != nil {
		return cfg, err
	}
	if cfg.OutboxMaxBackoff, err = config.Duration("OUTBOX_MAX_BACKOFF", 30*time.Second); err != nil {
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

// Routes maps outbox event types to their topic or routing key.
func (c Config) Routes() map[string]string {
	return map[string]string{
		events.TypeAppointmentCreated:   c.TopicCreated,
		events.TypeAppointmentCancelled: c.TopicCancelled,
	}
}
