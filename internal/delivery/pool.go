package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/storage"
)

// Pool polls for due retries and hands them to the executor on a bounded set
// of workers. Concurrency exists across deliveries only: claiming a row
// clears its schedule, so a delivery whose attempt is still in flight is
// invisible to later ticks until the executor writes the outcome back.
type Pool struct {
	store    storage.Storage
	exec     *Executor
	workers  int
	pollRate time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewPool(cfg config.DeliveryConfig, store storage.Storage, exec *Executor, log zerolog.Logger) *Pool {
	pollRate := cfg.PollInterval
	if pollRate <= 0 {
		pollRate = 1 * time.Second
	}
	return &Pool{
		store:    store,
		exec:     exec,
		workers:  cfg.Workers,
		pollRate: pollRate,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("starting retry worker pool")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx)
	}()
}

func (p *Pool) Stop() {
	p.log.Info().Msg("stopping retry worker pool")
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("retry worker pool stopped")
}

func (p *Pool) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollRate)
	defer ticker.Stop()

	sem := make(chan struct{}, p.workers)

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			deliveries, err := p.store.ClaimDueDeliveries(ctx, time.Now().UTC(), p.workers)
			if err != nil {
				p.log.Error().Err(err).Msg("failed to claim due deliveries")
				continue
			}

			for _, d := range deliveries {
				d := d
				sem <- struct{}{}
				p.wg.Add(1)
				go func() {
					defer p.wg.Done()
					defer func() { <-sem }()
					p.exec.Attempt(ctx, &d)
				}()
			}
		}
	}
}
