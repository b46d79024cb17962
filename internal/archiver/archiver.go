// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package archiver drives the archive job lifecycle: workers lease jobs
// from the queue, run them through the pipeline and schedule retries for
// failures.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/archivesvc/internal/jobqueue"
	"github.com/ManuGH/archivesvc/internal/log"
	"github.com/ManuGH/archivesvc/internal/metrics"
)

// getTimeout bounds how long an idle worker blocks on the queue before
// re-checking for shutdown.
const getTimeout = 5 * time.Second

// Archiver owns the worker pool. Each worker executes one job to
// completion before taking another; stopping is cooperative and lets
// in-flight jobs finish.
type Archiver struct {
	queue      *jobqueue.Queue
	pipeline   *Pipeline
	threads    int
	retryDelay time.Duration
	now        func() time.Time

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	logger zerolog.Logger
}

// New creates an archiver with threads workers over the queue.
func New(queue *jobqueue.Queue, pipeline *Pipeline, threads int, retryDelay time.Duration) *Archiver {
	if threads < 1 {
		threads = 1
	}
	return &Archiver{
		queue:      queue,
		pipeline:   pipeline,
		threads:    threads,
		retryDelay: retryDelay,
		now:        time.Now,
		logger:     log.WithComponent("archiver"),
	}
}

// Start launches the queue poller and the workers. Idempotent.
func (a *Archiver) Start() {
	a.startOnce.Do(func() {
		a.logger.Info().Int("threads", a.threads).Msg("starting archiver")
		a.queue.Start()
		for i := 0; i < a.threads; i++ {
			a.wg.Add(1)
			go a.worker()
		}
	})
}

// Stop signals the queue to stop handing out jobs. Workers drain their
// current job and exit. Idempotent.
func (a *Archiver) Stop() {
	a.stopOnce.Do(func() {
		a.logger.Info().Msg("stopping archiver")
		a.queue.Stop()
	})
}

// Join waits for all workers and the queue poller to finish, up to
// timeout.
func (a *Archiver) Join(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("archiver: join timed out after %s", timeout)
	}
	return a.queue.Join(timeout)
}

func (a *Archiver) worker() {
	defer a.wg.Done()
	for {
		lease, err := a.queue.Get(getTimeout)
		switch {
		case errors.Is(err, jobqueue.ErrEmpty):
			continue
		case errors.Is(err, jobqueue.ErrStopped):
			return
		case err != nil:
			a.logger.Error().Err(err).Msg("failed to take job from queue")
			continue
		}
		a.process(lease)
	}
}

// process runs one leased job and classifies the outcome. Losing the
// lease race is routine; a pipeline failure marks the job failed and
// schedules a delayed retry while retries remain.
func (a *Archiver) process(lease *jobqueue.LeasedJob) {
	job := lease.Job()
	ctx := log.ContextWithJobID(context.Background(), job.ID)
	ctx = log.ContextWithSessionID(ctx, job.SessionID)
	logger := log.WithContext(ctx, a.logger)

	err := lease.Run(ctx, a.pipeline.Run)
	switch {
	case errors.Is(err, jobqueue.ErrAlreadyOwned):
		logger.Info().Msg("job already owned by another worker")
		metrics.JobsTotal.WithLabelValues("already_owned").Inc()
	case err != nil:
		logger.Error().Err(err).Msg("archive job failed")
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		a.retry(ctx, job)
	}
}

// retry inserts a delayed follow-up job with one fewer retry. An
// exhausted budget only logs; the failed row keeps the history.
func (a *Archiver) retry(ctx context.Context, job jobqueue.Job) {
	logger := log.WithContext(ctx, a.logger)
	if job.RetriesRemaining <= 0 {
		logger.Error().Msg("no retries remaining, giving up on session")
		metrics.JobsTotal.WithLabelValues("exhausted").Inc()
		return
	}

	notBefore := a.now().Add(a.retryDelay)
	logger.Info().Time("not_before", notBefore).Msg("scheduling retry job")
	err := a.queue.Put(ctx, jobqueue.NewJob{
		SessionID:        job.SessionID,
		NotBefore:        notBefore,
		RetriesRemaining: job.RetriesRemaining - 1,
		Data:             job.Data,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to schedule retry job")
		return
	}
	metrics.JobsTotal.WithLabelValues("retried").Inc()
}
