package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// warmKinds are the kind filters the UI asks counts for.
var warmKinds = []types.Kind{types.KindEmployee, types.KindVehicle, ""}

// CountsWarmer periodically recomputes presence counts from the log and
// writes them to the count cache, so badge reads after an invalidation
// rarely hit the log. An interval of 0 or a service without a cache
// disables it.
type CountsWarmer struct {
	presence *PresenceService
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCountsWarmer creates a warmer but does not start it.
func NewCountsWarmer(p *PresenceService, interval time.Duration, logger *zap.Logger) *CountsWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CountsWarmer{
		presence: p,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start warms once immediately, then on every tick until ctx is cancelled
// or Stop is called.
func (w *CountsWarmer) Start(ctx context.Context) {
	if w.interval <= 0 || w.presence.cache == nil {
		w.logger.Info("presence count warmer disabled")
		close(w.done)
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	go w.loop(ctx)

	w.logger.Info("presence count warmer started", zap.Duration("interval", w.interval))
}

// Stop signals the loop to exit and waits for it.
func (w *CountsWarmer) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *CountsWarmer) loop(ctx context.Context) {
	defer close(w.done)

	w.Warm(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Warm(ctx)
		}
	}
}

// Warm runs one refresh. Failures are logged; the next tick retries.
func (w *CountsWarmer) Warm(ctx context.Context) {
	p := w.presence
	if p.cache == nil {
		return
	}
	for _, kind := range warmKinds {
		counts, err := p.log.PresentCounts(ctx, kind)
		if err != nil {
			w.logger.Warn("presence count warm failed", zap.String("kind", string(kind)), zap.Error(err))
			return
		}
		if err := p.cache.StoreCounts(ctx, kind, counts); err != nil {
			w.logger.Warn("presence count cache write failed", zap.String("kind", string(kind)), zap.Error(err))
			return
		}
	}
}
