package fifo

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/jittakal/fifopipe/internal/errors"
	"github.com/jittakal/fifopipe/pkg/pipe"
)

// Ensure implementation satisfies interface at compile time.
var _ pipe.Pipe = (*Buffer)(nil)

// MaxCapacity bounds the storage region a single pipe may reserve.
// Creation requests beyond it are reported as allocation failures.
const MaxCapacity = 1 << 30

// Buffer is a fixed-capacity blocking FIFO byte channel.
//
// A single contiguous byte region is addressed circularly by two
// monotonically increasing cursors: writeCursor counts every byte ever
// written, readCursor every byte ever read. The storage position of a
// cursor is its offset modulo capacity, applied one unit at a time as a
// transfer steps forward, so the position wraps to the base exactly when
// the offset reaches capacity regardless of transfer size. The cursors
// being equal denotes empty, and no other state does.
//
// The guard mutex protects the cursors and all storage access. The two
// buffered signal channels implement the blocking hand-off: a writer
// blocks on spaceAvailable while the pipe is judged full, a reader blocks
// on dataAvailable while it is judged empty. Signals are coalescing
// (capacity-one channel, non-blocking send), so a signal fired between a
// waiter's condition check and its wait is retained rather than lost, and
// every woken waiter re-validates its condition before proceeding.
type Buffer struct {
	capacity    int
	elementSize int

	mu          sync.Mutex
	storage     []byte
	writeCursor uint64
	readCursor  uint64
	released    bool

	spaceAvailable chan struct{}
	dataAvailable  chan struct{}
	done           chan struct{}
}

// New creates a pipe with the given usable capacity and per-write element
// size limit, both in bytes. The storage region is reserved once and lives
// until Close. On allocation failure no partial buffer is constructed.
func New(capacity, elementSize int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d", apperrors.ErrInvalidArgument, capacity)
	}
	if elementSize <= 0 {
		return nil, fmt.Errorf("%w: element size %d", apperrors.ErrInvalidArgument, elementSize)
	}
	if capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d exceeds %d", apperrors.ErrOutOfMemory, capacity, MaxCapacity)
	}

	return &Buffer{
		capacity:       capacity,
		elementSize:    elementSize,
		storage:        make([]byte, capacity),
		spaceAvailable: make(chan struct{}, 1),
		dataAvailable:  make(chan struct{}, 1),
		done:           make(chan struct{}),
	}, nil
}

// ElementSize reports the maximum bytes accepted per single write.
// Immutable after creation, so no locking is required.
func (b *Buffer) ElementSize() int {
	return b.elementSize
}

// Capacity reports the usable size of the circular region in bytes.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Write copies up to count bytes from p into the pipe, blocking while the
// pipe is judged full. A count above ElementSize is silently truncated.
// Returns the number of bytes actually transferred, which may be less
// than count due to truncation but never partial otherwise.
func (b *Buffer) Write(ctx context.Context, p []byte, count int) (int, error) {
	if count > b.elementSize {
		count = b.elementSize
	}

	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return 0, apperrors.ErrClosed
	}
	if err := b.awaitSpace(ctx); err != nil {
		return 0, err
	}

	if count < 0 || count > len(p) {
		// Source range is not accessible: abort without cursor movement,
		// but still wake readers so waiters are not starved.
		b.mu.Unlock()
		signal(b.dataAvailable)
		return 0, fmt.Errorf("%w: source range %d outside buffer of %d", apperrors.ErrFault, count, len(p))
	}

	b.writeCursor = b.copyIn(b.writeCursor, p[:count])
	b.mu.Unlock()
	signal(b.dataAvailable)
	return count, nil
}

// Read copies count bytes out of the pipe, blocking while the pipe is
// judged empty. The returned slice is owned by the caller. Unlike the
// write path, count is not clamped to ElementSize.
func (b *Buffer) Read(ctx context.Context, count int) ([]byte, int, error) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return nil, 0, apperrors.ErrClosed
	}
	if err := b.awaitData(ctx); err != nil {
		return nil, 0, err
	}

	if count < 0 || count > MaxCapacity {
		b.mu.Unlock()
		signal(b.spaceAvailable)
		return nil, 0, fmt.Errorf("%w: destination range %d", apperrors.ErrFault, count)
	}

	dst := make([]byte, count)
	b.readCursor = b.copyOut(b.readCursor, dst)
	b.mu.Unlock()
	signal(b.spaceAvailable)
	return dst, count, nil
}

// ReadInto copies count bytes out of the pipe into p, blocking while the
// pipe is judged empty. A count outside p's range faults the transfer.
func (b *Buffer) ReadInto(ctx context.Context, p []byte, count int) (int, error) {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return 0, apperrors.ErrClosed
	}
	if err := b.awaitData(ctx); err != nil {
		return 0, err
	}

	if count < 0 || count > len(p) {
		b.mu.Unlock()
		signal(b.spaceAvailable)
		return 0, fmt.Errorf("%w: destination range %d outside buffer of %d", apperrors.ErrFault, count, len(p))
	}

	b.readCursor = b.copyOut(b.readCursor, p[:count])
	b.mu.Unlock()
	signal(b.spaceAvailable)
	return count, nil
}

// Close destroys the pipe and releases its storage. Idempotent; blocked
// writers and readers are woken and fail with ErrClosed, as do all
// subsequent operations.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil
	}
	b.released = true
	b.storage = nil
	close(b.done)
	return nil
}

// Empty reports whether the pipe currently holds no readable bytes.
func (b *Buffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emptyLocked()
}

// Full reports whether the fullness heuristic currently judges the pipe
// full.
func (b *Buffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fullLocked()
}

func (b *Buffer) emptyLocked() bool {
	return b.writeCursor == b.readCursor
}

// fullLocked is the cursor-gap heuristic: the pipe is judged full when the
// gap between the cursors is exactly one unit or exactly capacity units.
// The gap is evaluated against the current cursor positions only, never
// against the size of the transfer about to happen, so a single write
// larger than the remaining free space is not independently rejected and
// can overrun into unread data.
func (b *Buffer) fullLocked() bool {
	gap := b.writeCursor - b.readCursor
	return gap == 1 || gap == uint64(b.capacity)
}

// awaitSpace blocks the caller while the pipe is judged full, following
// the release-wait-reacquire-revalidate protocol. The guard must be held
// on entry; it is held on a nil return and released on an error return.
func (b *Buffer) awaitSpace(ctx context.Context) error {
	for b.fullLocked() {
		b.mu.Unlock()
		select {
		case <-b.spaceAvailable:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", apperrors.ErrInterrupted, ctx.Err())
		case <-b.done:
			return apperrors.ErrClosed
		}
		b.mu.Lock()
		if b.released {
			b.mu.Unlock()
			return apperrors.ErrClosed
		}
	}
	return nil
}

// awaitData is the reader-side counterpart of awaitSpace, blocking while
// the pipe is judged empty.
func (b *Buffer) awaitData(ctx context.Context) error {
	for b.emptyLocked() {
		b.mu.Unlock()
		select {
		case <-b.dataAvailable:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", apperrors.ErrInterrupted, ctx.Err())
		case <-b.done:
			return apperrors.ErrClosed
		}
		b.mu.Lock()
		if b.released {
			b.mu.Unlock()
			return apperrors.ErrClosed
		}
	}
	return nil
}

// copyIn stores src into the circular region starting at cursor c,
// stepping one unit at a time and wrapping the storage position to the
// base whenever the offset reaches capacity. Returns the advanced cursor.
// Caller holds the guard.
func (b *Buffer) copyIn(c uint64, src []byte) uint64 {
	for _, by := range src {
		b.storage[c%uint64(b.capacity)] = by
		c++
	}
	return c
}

// copyOut fills dst from the circular region starting at cursor c, using
// the same unit-at-a-time stepping as copyIn, and returns the advanced
// cursor. Caller holds the guard.
func (b *Buffer) copyOut(c uint64, dst []byte) uint64 {
	for i := range dst {
		dst[i] = b.storage[c%uint64(b.capacity)]
		c++
	}
	return c
}

// signal fires a coalescing wakeup. A pending token means a wakeup is
// already queued for the next waiter, so dropping the send is safe.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
