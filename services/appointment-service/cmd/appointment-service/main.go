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
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/booking"
	svcconfig "github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/config"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/storage"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/migrations"
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

	var sink outbox.Sink
	switch cfg.Bus {
	case svcconfig.BusAMQP:
		publisher := amqpx.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.TopicCreated, cfg.TopicCancelled)
		defer publisher.Close()
		sink = outbox.NewAMQPSink(publisher, cfg.Routes())
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "amqp", Check: amqpx.ReadyCheck(cfg.AMQPURL)})
	default:
		writer := kafkax.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()
		sink = outbox.NewKafkaSink(writer, cfg.Routes())
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	outboxRepo := outbox.NewRepository(pool)
	bookingSvc := booking.NewService(storage.NewAppointmentRepository(pool, outboxRepo), logger)

	publisher := outbox.NewPublisher(outboxRepo, sink, logger, outbox.PublisherConfig{
		PollEvery:  cfg.OutboxPollInterval,
		BatchSize:  cfg.OutboxBatchSize,
		MaxBackoff: cfg.OutboxMaxBackoff,
		Registerer: reg,
	})
	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		publisher.Run(ctx)
	}()

	mux := runtime.NewBaseMux(metrics.Handler(reg), readyChecks...)
	handlers.NewAppointmentHandler(bookingSvc).Register(mux)

	httpMetrics := metrics.NewHTTP(reg, "appointment")
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithTimeout(cfg.RequestTimeout),
		httpx.WithBodyLimit(1<<20),
		httpx.WithAccessLog(logger, httpMetrics.Observe),
	)
	handler = otelhttp.NewHandler(handler, "appointment")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger, cfg.ShutdownGrace)
	<-publisherDone
}
