// Package workers persists visit records asynchronously so the redirect
// path never waits on an analytics write.
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"shortlink-service/metrics"
	"shortlink-service/models"
)

// VisitStore is the subset of the persistence layer the pool needs.
type VisitStore interface {
	BatchInsertVisits(ctx context.Context, visits []*models.Visit) error
}

// Config holds the pool tunables.
type Config struct {
	QueueSize     int
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
}

// Pool batches visit records from a bounded queue into the store.
// Enqueue never blocks; when the queue is full the record is dropped.
type Pool struct {
	queue chan models.Visit
	store VisitStore
	cfg   Config
	log   zerolog.Logger
	wg    sync.WaitGroup
}

func NewPool(store VisitStore, cfg Config, logger zerolog.Logger) *Pool {
	return &Pool{
		queue: make(chan models.Visit, cfg.QueueSize),
		store: store,
		cfg:   cfg,
		log:   logger.With().Str("component", "visit_workers").Logger(),
	}
}

// Enqueue offers a visit to the pool. Returns false when the queue is full;
// the caller treats that as a dropped best-effort side effect, never an error.
func (p *Pool) Enqueue(v models.Visit) bool {
	select {
	case p.queue <- v:
		metrics.VisitsEnqueued.Inc()
		return true
	default:
		metrics.VisitsDropped.Inc()
		p.log.Warn().Str("slug", v.Slug).Msg("visit queue full, dropping record")
		return false
	}
}

// Start launches the workers and blocks until ctx is cancelled and all
// workers have flushed their remaining batches.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	p.log.Info().Int("workers", p.cfg.Workers).Msg("visit workers started")

	<-ctx.Done()
	p.wg.Wait()
	p.log.Info().Msg("visit workers stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	batch := make([]*models.Visit, 0, p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case v := <-p.queue:
			visit := v
			batch = append(batch, &visit)
			if len(batch) >= p.cfg.BatchSize {
				p.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain whatever is already queued, then flush and exit.
			for {
				select {
				case v := <-p.queue:
					visit := v
					batch = append(batch, &visit)
					if len(batch) >= p.cfg.BatchSize {
						p.flush(context.Background(), batch)
						batch = batch[:0]
					}
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				p.flush(context.Background(), batch)
			}
			return
		}
	}
}

func (p *Pool) flush(ctx context.Context, batch []*models.Visit) {
	if err := p.store.BatchInsertVisits(ctx, batch); err != nil {
		p.log.Error().Err(err).Int("batch", len(batch)).Msg("failed to persist visit batch")
		return
	}
	metrics.VisitsPersisted.Add(float64(len(batch)))
}
