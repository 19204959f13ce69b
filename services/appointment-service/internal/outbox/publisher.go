package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/clinicslots/libs/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type batchStore interface {
	PublishBatch(ctx context.Context, limit int, send func(context.Context, []Record) error) (int, []int64, error)
	RecordFailure(ctx context.Context, ids []int64, cause error) error
}

type Publisher struct {
	store     batchStore
	sink      Sink
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
	maxDelay  time.Duration

	published prometheus.Counter
	failures  prometheus.Counter
}

type PublisherConfig struct {
	PollEvery  time.Duration
	BatchSize  int
	MaxBackoff time.Duration
	Registerer prometheus.Registerer
}

func NewPublisher(store batchStore, sink Sink, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	f := metrics.Factory(cfg.Registerer)
	return &Publisher{
		store:     store,
		sink:      sink,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		maxDelay:  cfg.MaxBackoff,
		published: f.NewCounter(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox events delivered to the event bus.",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish and were rolled back.",
		}),
	}
}

// Run polls until ctx is done. After a failed batch the next poll is
// delayed with exponential backoff; a full batch polls again immediately.
func (p *Publisher) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.pollEvery
	b.MaxInterval = p.maxDelay

	timer := time.NewTimer(p.pollEvery)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		n, err := p.PublishOnce(ctx)
		next := p.pollEvery
		switch {
		case err != nil:
			next = b.NextBackOff()
		case n == p.batchSize:
			b.Reset()
			next = 0
		default:
			b.Reset()
		}
		timer.Reset(next)
	}
}

// PublishOnce publishes one batch and returns how many events went out.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	n, ids, err := p.store.PublishBatch(ctx, p.batchSize, p.sink.Send)
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		p.failures.Inc()
		p.logger.Error("outbox publish failed", "err", err, "events", len(ids))
		if recErr := p.store.RecordFailure(ctx, ids, err); recErr != nil {
			p.logger.Error("outbox failure not recorded", "err", recErr)
		}
		return 0, err
	}
	if n > 0 {
		p.published.Add(float64(n))
		p.logger.Debug("outbox events published", "count", n)
	}
	return n, nil
}
