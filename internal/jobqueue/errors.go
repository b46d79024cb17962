// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package jobqueue

import "errors"

var (
	// ErrEmpty signals that no eligible job became available within the
	// caller's timeout. Benign.
	ErrEmpty = errors.New("jobqueue: no eligible job")

	// ErrStopped signals that the queue has been stopped. Benign.
	ErrStopped = errors.New("jobqueue: queue stopped")

	// ErrAlreadyOwned signals that another worker won the conditional
	// update for a job between candidate discovery and lease entry.
	ErrAlreadyOwned = errors.New("jobqueue: job already owned")
)
