// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrOutOfMemory is reported when the pipe storage region cannot be
	// reserved at creation. No partial buffer is usable afterwards.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrFault is reported when the caller-side data transfer failed
	// mid-copy. The failing call is aborted with no cursor movement.
	ErrFault = errors.New("bad address")

	// ErrInterrupted is reported when a blocked wait was cancelled.
	// No data is transferred; the caller may retry.
	ErrInterrupted = errors.New("interrupted")

	// ErrClosed is reported for any operation against a destroyed pipe.
	ErrClosed = errors.New("pipe is closed")

	ErrInvalidArgument = errors.New("invalid argument")
	ErrDeviceExists    = errors.New("device already registered")
	ErrDeviceNotFound  = errors.New("device not found")
)

// TransferError represents a failed write or read transfer.
type TransferError struct {
	Op          string // "write" or "read"
	Device      string
	Requested   int
	Transferred int
	Err         error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer error: op=%s device=%s requested=%d transferred=%d: %v",
		e.Op, e.Device, e.Requested, e.Transferred, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// Interrupted waits transferred nothing and may simply be issued again;
// faults and lifecycle errors are terminal for the call.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return errors.Is(err, ErrInterrupted)
}

// IsRetryable determines if a TransferError is retryable.
func (e *TransferError) IsRetryable() bool {
	return errors.Is(e.Err, ErrInterrupted)
}
