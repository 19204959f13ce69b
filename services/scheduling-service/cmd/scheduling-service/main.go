package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/amqpx"
	"github.com/md-rashed-zaman/clinicslots/libs/config"
	"github.com/md-rashed-zaman/clinicslots/libs/db"
	"github.com/md-rashed-zaman/clinicslots/libs/httpx"
	"github.com/md-rashed-zaman/clinicslots/libs/kafkax"
	"github.com/md-rashed-zaman/clinicslots/libs/metrics"
	otelx "github.com/md-rashed-zaman/clinicslots/libs/otel"
	"github.com/md-rashed-zaman/clinicslots/libs/runtime"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/cache"
	svcconfig "github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/config"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/slotsync"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadDotEnv()
	cfg, err := svcconfig.Load()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DB)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.Migrate {
		applied, err := db.Migrate(ctx, pool, migrations.FS)
		if err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
		if len(applied) > 0 {
			logger.Info("db migrations applied", "files", applied)
		}
	}

	reg := metrics.NewRegistry()
	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var backend cache.Backend
	switch cfg.CacheBackend {
	case svcconfig.CacheMemory:
		backend, err = cache.NewMemoryBackend(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			panic(err)
		}
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		backend = cache.NewRedisBackend(client)
	}

	slotRepo := storage.NewSlotRepository(pool, inbox.NewRepository())
	availability := cache.New(backend, slotRepo, logger, cache.Options{TTL: cfg.CacheTTL, Registerer: reg})
	readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "cache", Optional: true, Check: availability.Ping})

	scheduleSvc := schedule.NewService(storage.NewScheduleRepository(pool), availability, logger)
	synchronizer := slotsync.New(slotRepo, availability, logger)

	topics := []string{cfg.TopicCreated, cfg.TopicCancelled}
	var sources []consumer.Source
	switch cfg.Bus {
	case svcconfig.BusAMQP:
		for _, q := range topics {
			sources = append(sources, consumer.NewAMQPSource(cfg.AMQPURL, cfg.AMQPExchange, q, cfg.ConsumerWorkers, logger))
		}
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "amqp", Check: amqpx.ReadyCheck(cfg.AMQPURL)})
	default:
		dlq := kafkax.NewWriter(cfg.KafkaBrokers)
		defer dlq.Close()
		for _, topic := range topics {
			sources = append(sources, consumer.NewKafkaSource(cfg.KafkaBrokers, cfg.KafkaGroupID, topic, dlq, logger))
		}
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	runner := consumer.NewRunner(func(ctx context.Context, msg consumer.Message) error {
		return synchronizer.Handle(ctx, msg.EventID, msg.EventType, msg.Payload)
	}, logger, consumer.Config{
		Workers:      cfg.ConsumerWorkers,
		MaxAttempts:  cfg.ConsumerMaxAttempts,
		DrainTimeout: cfg.ConsumerDrainTimeout,
		Registerer:   reg,
	}, sources...)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := runner.Run(ctx); err != nil {
			logger.Error("consumer stopped with error", "err", err)
		}
	}()

	mux := runtime.NewBaseMux(metrics.Handler(reg), readyChecks...)
	handlers.NewScheduleHandler(scheduleSvc).Register(mux)

	httpMetrics := metrics.NewHTTP(reg, "scheduling")
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithTimeout(cfg.RequestTimeout),
		httpx.WithBodyLimit(1<<20),
		httpx.WithAccessLog(logger, httpMetrics.Observe),
	)
	handler = otelhttp.NewHandler(handler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger, cfg.ShutdownGrace)
	<-consumerDone
}
