package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scribeflow/scribeflow/backend/internal/domain/repositories"
	"github.com/scribeflow/scribeflow/backend/internal/infrastructure/observability"
	"github.com/scribeflow/scribeflow/backend/pkg/config"
	apperrors "github.com/scribeflow/scribeflow/backend/pkg/errors"
)

// Dispatcher runs a small worker pool that claims queued jobs and executes
// them through the orchestrator. Claiming uses row locks, so any number of
// dispatcher processes can share one queue without double-processing.
type Dispatcher struct {
	orch         *Orchestrator
	jobs         repositories.JobRepository
	workers      int
	pollInterval time.Duration
	wg           sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(orch *Orchestrator, jobs repositories.JobRepository, cfg config.EnhancerConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	poll := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Dispatcher{
		orch:         orch,
		jobs:         jobs,
		workers:      workers,
		pollInterval: poll,
	}
}

// Start launches the workers. They stop when ctx is cancelled; Wait blocks
// until every in-flight job has finished.
func (d *Dispatcher) Start(ctx context.Context) {
	observability.GetLogger().Info().Int("workers", d.workers).Msg("Starting enhancement dispatcher")
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	defer d.wg.Done()
	logger := observability.GetLogger().With().Int("worker", id).Logger()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Dispatcher worker stopping")
			return
		case <-ticker.C:
			d.drain(ctx, &logger)
		}
	}
}

// drain claims and runs jobs until the queue is empty, so a burst of work
// is not throttled by the poll interval.
func (d *Dispatcher) drain(ctx context.Context, logger *zerolog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := d.jobs.ClaimNext(ctx)
		if err != nil {
			if !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
				logger.Error().Err(err).Msg("Failed to claim enhancement job")
			}
			return
		}

		if err := d.orch.Run(ctx, job); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("Enhancement job execution failed")
		}
	}
}
