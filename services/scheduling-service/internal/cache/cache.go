// Package cache serves "slots for doctor X on day Y" from a shared cache
// in front of the slot store.
//
// Every invalidation bumps a per-key version. A read that misses notes the
// version before going to the store and only populates if the version is
// still the same, so a read racing an invalidation never caches stale data.
// Backend failures never fail a request: reads fall through to the store.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/metrics"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/slots"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultTTL = 10 * time.Minute

type Backend interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Version(ctx context.Context, key string) (uint64, error)
	// SetIfVersion stores value only while key's version equals version.
	SetIfVersion(ctx context.Context, key string, version uint64, value []byte, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// Loader is the durable source of truth.
type Loader interface {
	ListSlots(ctx context.Context, doctorID string, from, to time.Time) ([]model.Slot, error)
}

type Options struct {
	TTL        time.Duration
	Registerer prometheus.Registerer
}

type Availability struct {
	backend Backend
	loader  Loader
	ttl     time.Duration
	logger  *slog.Logger

	hits, misses, errs, stale prometheus.Counter
}

func New(backend Backend, loader Loader, logger *slog.Logger, opts Options) *Availability {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	f := metrics.Factory(opts.Registerer)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Namespace: "scheduling", Subsystem: "availability_cache", Name: name, Help: help})
	}
	return &Availability{
		backend: backend,
		loader:  loader,
		ttl:     opts.TTL,
		logger:  logger,
		hits:    counter("hits_total", "Availability reads served from cache."),
		misses:  counter("misses_total", "Availability reads that went to the slot store."),
		errs:    counter("errors_total", "Cache backend failures (reads fell back to the store)."),
		stale:   counter("stale_populates_total", "Populates skipped because the key was invalidated during the read."),
	}
}

// Key is the cache key for one doctor and UTC day.
func Key(doctorID string, day time.Time) string {
	return "slots:" + doctorID + ":" + slots.DayOf(day).Format(time.DateOnly)
}

// GetSlots returns the doctor's slots starting on day (UTC), ordered by start.
func (a *Availability) GetSlots(ctx context.Context, doctorID string, day time.Time) ([]model.Slot, error) {
	day = slots.DayOf(day)
	key := Key(doctorID, day)

	raw, ok, err := a.backend.Get(ctx, key)
	switch {
	case err != nil:
		a.errs.Inc()
		a.logger.Warn("availability cache read failed", "key", key, "err", err)
	case ok:
		var cached []model.Slot
		if err := json.Unmarshal(raw, &cached); err == nil {
			a.hits.Inc()
			return cached, nil
		}
		a.errs.Inc()
		a.logger.Warn("availability cache entry undecodable", "key", key)
	}
	a.misses.Inc()

	version, verr := a.backend.Version(ctx, key)
	if verr != nil {
		a.errs.Inc()
		a.logger.Warn("availability cache version read failed", "key", key, "err", verr)
	}

	list, err := a.loader.ListSlots(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	if verr != nil {
		return list, nil
	}

	payload, err := json.Marshal(list)
	if err != nil {
		return list, nil
	}
	stored, err := a.backend.SetIfVersion(ctx, key, version, payload, a.ttl)
	if err != nil {
		a.errs.Inc()
		a.logger.Warn("availability cache populate failed", "key", key, "err", err)
	} else if !stored {
		a.stale.Inc()
	}
	return list, nil
}

// Invalidate drops the cached entries for doctorID on the given days.
// A failure is logged and counted; the entry then expires with its TTL.
func (a *Availability) Invalidate(ctx context.Context, doctorID string, days ...time.Time) {
	if len(days) == 0 {
		return
	}
	keys := make([]string, 0, len(days))
	for _, d := range days {
		keys = append(keys, Key(doctorID, d))
	}
	if err := a.backend.Invalidate(ctx, keys...); err != nil {
		a.errs.Inc()
		a.logger.Error("availability cache invalidation failed", "keys", keys, "err", err)
	}
}

func (a *Availability) Ping(ctx context.Context) error {
	return a.backend.Ping(ctx)
}
