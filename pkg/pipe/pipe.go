// Package pipe defines the interface for the blocking FIFO byte channel.
//
// A pipe moves exactly one kind of opaque byte-stream data from writers to
// readers in FIFO order, blocking producers while the channel is judged
// full and consumers while it is judged empty.
package pipe

import "context"

// Pipe is a fixed-capacity blocking FIFO byte channel.
// All implementations must be safe for concurrent writers and readers.
type Pipe interface {
	// Write copies up to count bytes from p into the pipe, blocking while
	// the pipe is judged full. Requests larger than ElementSize are
	// silently truncated to ElementSize. Returns the number of bytes
	// actually transferred.
	Write(ctx context.Context, p []byte, count int) (int, error)

	// Read copies count bytes out of the pipe, blocking while the pipe is
	// judged empty. The returned slice is owned by the caller.
	Read(ctx context.Context, count int) ([]byte, int, error)

	// ElementSize reports the maximum bytes accepted per single write.
	// Immutable after creation; never blocks.
	ElementSize() int

	// Capacity reports the usable size of the circular region in bytes.
	Capacity() int

	// Close destroys the pipe and releases its storage. Safe to call more
	// than once; blocked writers and readers are woken and fail.
	Close() error
}
