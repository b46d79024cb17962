// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package jobqueue

import (
	"context"

	"github.com/ManuGH/archivesvc/internal/metrics"
)

// LeasedJob is a pre-lease candidate handed out by Get. The row is only
// claimed once Run enters the lease guard.
type LeasedJob struct {
	queue *Queue
	job   Job
}

// Job returns the candidate row snapshot taken at Get time.
func (l *LeasedJob) Job() Job {
	return l.job
}

// Run is the scoped lease guard. On entry it atomically claims the row
// (ErrAlreadyOwned if another worker got there first); fn then executes
// with the job; on every exit path, including panics, the row is finalized
// with end=now and successful reflecting fn's outcome.
func (l *LeasedJob) Run(ctx context.Context, fn func(context.Context, Job) error) error {
	claimed, err := l.queue.claim(ctx, l.job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		metrics.LeaseRaces.Inc()
		return ErrAlreadyOwned
	}

	succeeded := false
	defer func() {
		// Finalization must survive a cancelled job context.
		if ferr := l.queue.finalize(context.WithoutCancel(ctx), l.job.ID, succeeded); ferr != nil {
			l.queue.logger.Error().Err(ferr).Int64("job_id", l.job.ID).Msg("failed to finalize job row")
		}
	}()

	if err := fn(ctx, l.job); err != nil {
		return err
	}
	succeeded = true
	return nil
}
