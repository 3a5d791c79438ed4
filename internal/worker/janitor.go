package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// KeyPurger deletes idempotency keys created before a cutoff.
type KeyPurger interface {
	PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error)
}

// Janitor periodically removes idempotency keys older than the TTL.
type Janitor struct {
	store    KeyPurger
	logger   *zap.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

func NewJanitor(store KeyPurger, logger *zap.Logger, ttl, interval time.Duration) *Janitor {
	return &Janitor{
		store:    store,
		logger:   logger,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("Starting idempotency janitor",
		zap.Duration("ttl", j.ttl),
		zap.Duration("interval", j.interval),
	)

	j.wg.Add(1)
	go j.run(ctx)
}

// Stop signals the janitor and waits for the current sweep to finish. It is
// safe to call more than once.
func (j *Janitor) Stop() {
	j.once.Do(func() {
		j.logger.Info("Stopping idempotency janitor...")
		close(j.stop)
	})
	j.wg.Wait()
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("janitor sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep purges keys older than the TTL once and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.ttl)
	n, err := j.store.PurgeIdempotencyKeys(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info("Purged idempotency keys", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
