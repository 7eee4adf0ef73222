package database

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned by Open when the DSN or pool bounds are unusable.
	ErrConfiguration = errors.New("database configuration error")
	// ErrPoolExhausted is returned by Acquire when no connection frees up within the acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrPoolClosed is returned by Acquire after Shutdown.
	ErrPoolClosed = errors.New("connection pool closed")
	// ErrProtocolViolation is returned when a lease is released twice or to the wrong pool.
	ErrProtocolViolation = errors.New("connection pool protocol violation")
	// ErrStorageUnavailable wraps driver and transport failures from the backing store.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// StorageError wraps err as ErrStorageUnavailable unless it already carries
// one of the pool's own errors or a context error, which pass through unchanged.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isPoolError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func isPoolError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrPoolClosed) ||
		errors.Is(err, ErrProtocolViolation) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
