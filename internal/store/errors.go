package store

import "errors"

// Domain errors surfaced by the repository. The tool surface maps these to
// one-line messages; the HTTP facade maps anything else to a generic internal
// error in production.
var (
	// ErrNotFound means the task id does not exist (or is not visible to the
	// caller's session).
	ErrNotFound = errors.New("task not found")

	// ErrIllegalTransition means the requested status change is not valid
	// from the task's current status (e.g. pause on a completed task).
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrAlreadyLocked means another worker holds the lease.
	ErrAlreadyLocked = errors.New("task already locked")
)
