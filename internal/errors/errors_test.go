package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTransferError_Error(t *testing.T) {
	err := &TransferError{
		Op:          "write",
		Device:      "fifo0",
		Requested:   128,
		Transferred: 0,
		Err:         ErrFault,
	}

	msg := err.Error()
	for _, want := range []string{"op=write", "device=fifo0", "requested=128", "bad address"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, should contain %q", msg, want)
		}
	}
}

func TestTransferError_Unwrap(t *testing.T) {
	err := &TransferError{Op: "read", Device: "fifo0", Err: ErrInterrupted}

	if !errors.Is(err, ErrInterrupted) {
		t.Error("expected errors.Is to match ErrInterrupted through Unwrap")
	}
	if errors.Is(err, ErrFault) {
		t.Error("should not match ErrFault")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"interrupted sentinel", ErrInterrupted, true},
		{"wrapped interrupted", fmt.Errorf("op: %w", ErrInterrupted), true},
		{"fault", ErrFault, false},
		{"closed", ErrClosed, false},
		{"interrupted transfer", &TransferError{Op: "write", Err: ErrInterrupted}, true},
		{"faulted transfer", &TransferError{Op: "read", Err: ErrFault}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
