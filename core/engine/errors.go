package engine

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers discriminate with errors.Is.
var (
	// ErrNotFound marks an absent room, track, or queue item.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTrack marks a track outside the room's artist scope.
	ErrInvalidTrack = errors.New("track outside room artist scope")

	// ErrNotASuggestion marks an accept of a track that was not in the most
	// recent ranked output for the room.
	ErrNotASuggestion = errors.New("track is not a current suggestion")

	// ErrStorageUnavailable marks a collaborator I/O failure. The in-flight
	// mutation is aborted and in-memory state is left unchanged.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidConfiguration marks malformed engine parameters at startup.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// storageErr wraps a collaborator failure so callers see ErrStorageUnavailable
// while the cause stays in the chain.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
