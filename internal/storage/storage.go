package storage

import (
	"context"
	"errors"
)

// Content type constants used when backends record snapshot metadata.
const (
	ContentTypeJSON        = "application/json"
	ContentTypeOctetStream = "application/octet-stream"
)

// ErrNotFound indicates no snapshot has been written yet.
var (
	ErrNotFound       = errors.New("storage: not found")
	ErrNotImplemented = errors.New("storage: not implemented")
)

// Backend persists a single opaque snapshot document. Save always replaces
// the whole document; there is no partial update.
type Backend interface {
	// Load returns the most recently saved snapshot or ErrNotFound.
	Load(ctx context.Context) ([]byte, error)
	// Save overwrites the snapshot with data.
	Save(ctx context.Context, data []byte) error
	// Describe returns a human readable location with credentials removed.
	Describe() string
	Close() error
}

// ChangeFeed is implemented by backends that can report snapshot rewrites
// performed by other processes.
type ChangeFeed interface {
	// Watch invokes fn whenever the snapshot changes outside this process.
	// It blocks until ctx is cancelled or the watch fails.
	Watch(ctx context.Context, fn func()) error
}

type transientError struct {
	err error
}

func (t transientError) Error() string { return t.err.Error() }
func (t transientError) Unwrap() error { return t.err }

// NewTransientError marks err as retryable.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked as retryable.
func IsTransient(err error) bool {
	var te transientError
	return errors.As(err, &te)
}

// Unwrap returns the innermost backend when b is a decorator that exposes
// its inner backend, otherwise b itself.
func Unwrap(b Backend) Backend {
	for {
		u, ok := b.(interface{ Inner() Backend })
		if !ok {
			return b
		}
		inner := u.Inner()
		if inner == nil {
			return b
		}
		b = inner
	}
}
