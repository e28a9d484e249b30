// Package ratelimit implements request pacing for the Danbooru API.
// It enforces a minimum interval between outbound requests so the
// harvester stays well below the API's request budget, with or without
// authenticated rate limits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request pacing.
var (
	pacerWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "danbooru_pacer_wait_seconds",
		Help:    "Time spent waiting for the minimum request interval",
		Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	pacerWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danbooru_pacer_waits_total",
		Help: "Total number of pacer waits that actually slept",
	})
)

// Pacer enforces a minimum interval between consecutive requests.
// The zero interval disables pacing entirely.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	logger   zerolog.Logger
}

// NewPacer creates a pacer with the given minimum interval between requests.
func NewPacer(interval time.Duration, logger zerolog.Logger) *Pacer {
	return &Pacer{
		interval: interval,
		logger:   logger,
	}
}

// Interval returns the configured minimum interval.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until at least the configured interval has elapsed since
// the previous Wait returned. The very first call returns immediately.
// Wait returns early with the context error if ctx is cancelled while
// sleeping.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	var sleep time.Duration
	if !p.last.IsZero() {
		if elapsed := now.Sub(p.last); elapsed < p.interval {
			sleep = p.interval - elapsed
		}
	}
	// Reserve the slot before sleeping so a cancelled wait does not
	// hand the slot to the next caller early.
	p.last = now.Add(sleep)
	p.mu.Unlock()

	if sleep <= 0 {
		pacerWaitSeconds.Observe(0)
		return nil
	}

	pacerWaitsTotal.Inc()
	pacerWaitSeconds.Observe(sleep.Seconds())
	p.logger.Debug().
		Dur("wait", sleep).
		Msg("Pacing request")

	timer := time.NewTimer(sleep)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
