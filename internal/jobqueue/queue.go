// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package jobqueue implements a durable producer/consumer queue over the
// chat_archive_jobs table. Rows are leased to at most one worker through a
// single conditional UPDATE; the row-level update is the only cross-process
// mutual exclusion mechanism in the service.
package jobqueue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/ManuGH/archivesvc/internal/log"
	"github.com/ManuGH/archivesvc/internal/metrics"
)

const defaultCandidateBuffer = 16

// Queue leases chat archive job rows. A background poller discovers
// eligible rows and buffers pre-lease candidates in memory; the actual
// claim happens only when a worker enters the lease guard, so a saturated
// worker pool never holds half-leased rows.
type Queue struct {
	db    *sqlx.DB
	owner string
	poll  time.Duration
	now   func() time.Time

	candidates chan int64
	stopCh     chan struct{}
	done       chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	logger zerolog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithNow overrides the clock, used by tests.
func WithNow(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithCandidateBuffer sets the in-memory candidate channel capacity.
func WithCandidateBuffer(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.candidates = make(chan int64, n)
		}
	}
}

// New creates a queue. owner is the stable worker identity written into
// leased rows; poll is the interval between eligibility scans.
func New(d *sqlx.DB, owner string, poll time.Duration, opts ...Option) *Queue {
	q := &Queue{
		db:         d,
		owner:      owner,
		poll:       poll,
		now:        time.Now,
		candidates: make(chan int64, defaultCandidateBuffer),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		logger:     log.WithComponent("jobqueue"),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Put inserts a new unowned job row.
func (q *Queue) Put(ctx context.Context, j NewJob) error {
	var notBefore sql.NullTime
	if !j.NotBefore.IsZero() {
		notBefore = sql.NullTime{Time: j.NotBefore.UTC(), Valid: true}
	}
	query := q.db.Rebind(`INSERT INTO chat_archive_jobs
		(session_id, created, not_before, retries_remaining, data)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := q.db.ExecContext(ctx, query,
		j.SessionID, q.now().UTC(), notBefore, j.RetriesRemaining, j.Data); err != nil {
		return fmt.Errorf("jobqueue: put session_id=%d: %w", j.SessionID, err)
	}
	return nil
}

// Start launches the eligibility poller. Idempotent.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		go q.run()
	})
}

// Stop signals the poller to exit and unblocks Get callers with
// ErrStopped. In-flight leases run to completion. Idempotent.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})
}

// Join waits for the poller to finish, up to timeout.
func (q *Queue) Join(timeout time.Duration) error {
	select {
	case <-q.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("jobqueue: join timed out after %s", timeout)
	}
}

// Get returns a pre-lease candidate. It blocks until a candidate is
// buffered, the timeout elapses (ErrEmpty) or the queue stops
// (ErrStopped). The returned LeasedJob has NOT claimed the row yet; the
// claim happens inside Run.
func (q *Queue) Get(timeout time.Duration) (*LeasedJob, error) {
	select {
	case <-q.stopCh:
		return nil, ErrStopped
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-q.candidates:
		metrics.QueueCandidates.Set(float64(len(q.candidates)))
		job, err := q.load(context.Background(), id)
		if err != nil {
			return nil, err
		}
		return &LeasedJob{queue: q, job: job}, nil
	case <-q.stopCh:
		return nil, ErrStopped
	case <-timer.C:
		return nil, ErrEmpty
	}
}

func (q *Queue) run() {
	defer close(q.done)

	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	q.pollOnce()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.pollOnce()
		}
	}
}

// pollOnce scans for eligible rows oldest-first and buffers their ids.
// A full buffer is not an error; rows are rediscovered on the next scan.
func (q *Queue) pollOnce() {
	query := q.db.Rebind(`SELECT id FROM chat_archive_jobs
		WHERE owner IS NULL AND "start" IS NULL
		  AND (not_before IS NULL OR not_before <= ?)
		ORDER BY created ASC`)

	var ids []int64
	if err := q.db.Select(&ids, query, q.now().UTC()); err != nil {
		q.logger.Error().Err(err).Msg("eligibility scan failed")
		return
	}

	for _, id := range ids {
		select {
		case q.candidates <- id:
		default:
			metrics.QueueCandidates.Set(float64(len(q.candidates)))
			return
		}
	}
	metrics.QueueCandidates.Set(float64(len(q.candidates)))
}

func (q *Queue) load(ctx context.Context, id int64) (Job, error) {
	var job Job
	query := q.db.Rebind(`SELECT id, session_id, owner, created, not_before,
		"start", "end", successful, retries_remaining, data
		FROM chat_archive_jobs WHERE id = ?`)
	if err := q.db.GetContext(ctx, &job, query, id); err != nil {
		return Job{}, fmt.Errorf("jobqueue: load job %d: %w", id, err)
	}
	return job, nil
}

// claim performs the atomic conditional lease update. A zero row count
// means another worker owns the job.
func (q *Queue) claim(ctx context.Context, id int64) (bool, error) {
	query := q.db.Rebind(`UPDATE chat_archive_jobs
		SET owner = ?, "start" = ?
		WHERE id = ? AND owner IS NULL AND "start" IS NULL`)
	res, err := q.db.ExecContext(ctx, query, q.owner, q.now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("jobqueue: claim job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("jobqueue: claim job %d: %w", id, err)
	}
	return n == 1, nil
}

func (q *Queue) finalize(ctx context.Context, id int64, successful bool) error {
	query := q.db.Rebind(`UPDATE chat_archive_jobs
		SET "end" = ?, successful = ? WHERE id = ?`)
	if _, err := q.db.ExecContext(ctx, query, q.now().UTC(), successful, id); err != nil {
		return fmt.Errorf("jobqueue: finalize job %d: %w", id, err)
	}
	return nil
}
