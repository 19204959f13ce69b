// Package consumer runs event subscriptions: one supervised source per
// queue feeding a bounded worker pool. A delivery is acknowledged only
// after its handler returned nil.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/clinicslots/libs/events"
	"github.com/md-rashed-zaman/clinicslots/libs/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Message struct {
	EventID   string
	EventType string
	// Source is the topic or queue the message came from.
	Source  string
	Payload []byte
}

// Delivery is one received message and the means to settle it.
// The runner settles every delivery exactly once.
type Delivery interface {
	Message() Message
	// Context returns parent carrying the producer's trace context.
	Context(parent context.Context) context.Context
	Ack(ctx context.Context) error
	Reject(ctx context.Context, requeue bool) error
	DeadLetter(ctx context.Context, reason string) error
}

// Source feeds deliveries from one subscription. Run returns nil once ctx
// is done and an error when the subscription broke; the runner then
// restarts it. deliver blocks while the worker pool is full.
type Source interface {
	Name() string
	Run(ctx context.Context, deliver func(Delivery)) error
}

type Handler func(ctx context.Context, msg Message) error

type Config struct {
	Workers        int
	MaxAttempts    int
	RetryBase      time.Duration
	RetryMax       time.Duration
	RestartBase    time.Duration
	RestartMax     time.Duration
	HandlerTimeout time.Duration
	DrainTimeout   time.Duration
	Registerer     prometheus.Registerer
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5 * time.Second
	}
	if c.RestartBase <= 0 {
		c.RestartBase = time.Second
	}
	if c.RestartMax <= 0 {
		c.RestartMax = 30 * time.Second
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 15 * time.Second
	}
	return c
}

var ErrDrainTimeout = errors.New("consumer drain timed out")

type outcome string

const (
	outcomeAcked        outcome = "acked"
	outcomeAckFailed    outcome = "ack_failed"
	outcomeDeadLettered outcome = "dead_lettered"
	outcomeRequeued     outcome = "requeued"
)

type Runner struct {
	handler Handler
	sources []Source
	logger  *slog.Logger
	cfg     Config

	sem      chan struct{}
	inflight sync.WaitGroup

	processed *prometheus.CounterVec
	retries   *prometheus.CounterVec
	restarts  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewRunner(handler Handler, logger *slog.Logger, cfg Config, sources ...Source) *Runner {
	cfg = cfg.withDefaults()
	f := metrics.Factory(cfg.Registerer)
	return &Runner{
		handler: handler,
		sources: sources,
		logger:  logger,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.Workers),
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling", Subsystem: "consumer", Name: "deliveries_total",
			Help: "Settled deliveries by source and outcome.",
		}, []string{"source", "outcome"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling", Subsystem: "consumer", Name: "retries_total",
			Help: "Handler attempts that failed and were retried.",
		}, []string{"source"}),
		restarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling", Subsystem: "consumer", Name: "source_restarts_total",
			Help: "Times a broken subscription was reopened.",
		}, []string{"source"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduling", Subsystem: "consumer", Name: "handle_duration_seconds",
			Help:    "Time from receipt to settlement of a delivery.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
	}
}

// Run blocks until ctx is done and every in-flight delivery is settled,
// or DrainTimeout passed after ctx was done.
func (r *Runner) Run(ctx context.Context) error {
	// In-flight work outlives ctx until the drain deadline.
	hard, hardCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer hardCancel()

	var sources sync.WaitGroup
	deliver := r.dispatcher(ctx, hard)
	for _, src := range r.sources {
		sources.Add(1)
		go func(src Source) {
			defer sources.Done()
			r.supervise(ctx, src, deliver)
		}(src)
	}

	drained := make(chan struct{})
	go func() {
		sources.Wait()
		r.inflight.Wait()
		close(drained)
	}()

	<-ctx.Done()
	r.logger.Info("consumer draining", "timeout", r.cfg.DrainTimeout)
	select {
	case <-drained:
		r.logger.Info("consumer stopped")
		return nil
	case <-time.After(r.cfg.DrainTimeout):
		hardCancel()
		r.logger.Error("consumer drain timed out")
		return ErrDrainTimeout
	}
}

func (r *Runner) supervise(ctx context.Context, src Source, deliver func(Delivery)) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RestartBase
	b.MaxInterval = r.cfg.RestartMax

	for {
		started := time.Now()
		r.logger.Info("consumer source starting", "source", src.Name())
		err := src.Run(ctx, deliver)
		if ctx.Err() != nil {
			return
		}
		// A source that ran for a while gets a fresh backoff.
		if time.Since(started) > r.cfg.RestartMax {
			b.Reset()
		}
		wait := b.NextBackOff()
		r.restarts.WithLabelValues(src.Name()).Inc()
		r.logger.Error("consumer source stopped", "source", src.Name(), "err", err, "restart_in", wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (r *Runner) dispatcher(ctx, hard context.Context) func(Delivery) {
	return func(d Delivery) {
		select {
		case r.sem <- struct{}{}:
		case <-ctx.Done():
			r.requeue(hard, d)
			return
		}
		r.inflight.Add(1)
		go func() {
			defer func() {
				<-r.sem
				r.inflight.Done()
			}()
			r.process(ctx, hard, d)
		}()
	}
}

func (r *Runner) process(ctx, hard context.Context, d Delivery) {
	msg := d.Message()
	start := time.Now()
	defer func() { r.duration.WithLabelValues(msg.Source).Observe(time.Since(start).Seconds()) }()

	spanCtx, span := otel.Tracer("consumer").Start(d.Context(hard), "consume "+msg.Source,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", msg.Source),
			attribute.String("messaging.message.id", msg.EventID),
			attribute.String("event.type", msg.EventType),
		),
	)
	defer span.End()

	log := r.logger.With("source", msg.Source, "event_id", msg.EventID, "event_type", msg.EventType)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryBase
	b.MaxInterval = r.cfg.RetryMax

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(spanCtx, r.cfg.HandlerTimeout)
		err := r.handler(attemptCtx, msg)
		cancel()
		if err == nil {
			settled := outcomeAcked
			if ackErr := r.settle(hard, d.Ack); ackErr != nil {
				log.Error("ack failed; message will be redelivered", "err", ackErr)
				settled = outcomeAckFailed
			}
			r.processed.WithLabelValues(msg.Source, string(settled)).Inc()
			return
		}

		span.RecordError(err)
		if errors.Is(err, events.ErrMalformed) {
			log.Error("undecodable event, dead-lettering", "err", err)
			r.deadLetter(hard, d, msg, "malformed: "+err.Error())
			span.SetStatus(codes.Error, "malformed")
			return
		}
		if attempt >= r.cfg.MaxAttempts {
			log.Error("event handler failed, dead-lettering", "attempts", attempt, "err", err)
			r.deadLetter(hard, d, msg, err.Error())
			span.SetStatus(codes.Error, "max attempts reached")
			return
		}

		wait := b.NextBackOff()
		r.retries.WithLabelValues(msg.Source).Inc()
		log.Warn("event handler failed, retrying", "attempt", attempt, "retry_in", wait, "err", err)
		select {
		case <-ctx.Done():
			r.requeue(hard, d)
			return
		case <-time.After(wait):
		}
	}
}

func (r *Runner) deadLetter(hard context.Context, d Delivery, msg Message, reason string) {
	err := r.settle(hard, func(ctx context.Context) error { return d.DeadLetter(ctx, reason) })
	if err != nil {
		r.logger.Error("dead-letter failed; message will be redelivered", "source", msg.Source, "event_id", msg.EventID, "err", err)
	}
	r.processed.WithLabelValues(msg.Source, string(outcomeDeadLettered)).Inc()
}

func (r *Runner) requeue(hard context.Context, d Delivery) {
	msg := d.Message()
	err := r.settle(hard, func(ctx context.Context) error { return d.Reject(ctx, true) })
	if err != nil {
		r.logger.Error("requeue failed", "source", msg.Source, "event_id", msg.EventID, "err", err)
	}
	r.processed.WithLabelValues(msg.Source, string(outcomeRequeued)).Inc()
}

// settle bounds an ack or nack.
func (r *Runner) settle(hard context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(hard, 10*time.Second)
	defer cancel()
	return fn(ctx)
}
