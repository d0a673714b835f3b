// Package storage implements the git-backed archive: path layout,
// filesystem access, the metadata registry and the coordinator that ties
// them to a git repository.
package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for the storage layer. Callers match with errors.Is.
var (
	// ErrIO is a local filesystem failure. Never retried.
	ErrIO = errors.New("storage I/O error")
	// ErrMetadataCorrupt means metadata.yaml exists but cannot be parsed.
	ErrMetadataCorrupt = errors.New("metadata corrupt")
	// ErrConfig is an invalid topic/message metadata combination, raised
	// before any side effect.
	ErrConfig = errors.New("invalid configuration")
	// ErrTopicExists is returned by CreateTopic for a duplicate topic id.
	ErrTopicExists = errors.New("topic already exists")
	// ErrTopicNotFound is returned when a topic id is not in the registry.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrAlreadyInitialized is returned by InitStorage on a second call.
	ErrAlreadyInitialized = errors.New("storage already initialized")
)

// IOError wraps a filesystem failure with the offending path.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage I/O error at %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIO) match any *IOError.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// CorruptError wraps a metadata parse failure.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("metadata corrupt at %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (e *CorruptError) Is(target error) bool { return target == ErrMetadataCorrupt }
