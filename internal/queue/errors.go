package queue

import "errors"

var (
	// ErrContention means another writer held the claim transaction or won
	// the race for a job. It is retried inside ClaimNext and never surfaces
	// to callers.
	ErrContention = errors.New("queue contention")

	// ErrLockHeld is returned when a live lock already exists for the job.
	ErrLockHeld = errors.New("job already locked")
)
