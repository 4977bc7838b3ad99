// Package fifo implements the fixed-capacity blocking FIFO byte channel.
//
// The channel moves exactly one kind of opaque byte-stream data from
// writers to readers through a single circular storage region, with
// correctness guaranteed under concurrent access.
//
// # Creation and lifecycle
//
// A Buffer is created once and lives until Close:
//
//	buf, err := fifo.New(4096, 1024)
//	if err != nil {
//	    // no partial buffer exists on failure
//	}
//	defer buf.Close()
//
// Close is idempotent and safe on a partially-initialized buffer; it wakes
// every blocked writer and reader, and all further operations fail.
//
// # Writing and reading
//
// Write blocks while the pipe is judged full, Read while it is judged
// empty. Both take a context; cancelling it while blocked aborts the call
// with no bytes transferred:
//
//	n, err := buf.Write(ctx, payload, len(payload))
//	data, n, err := buf.Read(ctx, 64)
//
// A write longer than the element size limit is silently truncated to the
// limit; the returned count is the number of bytes actually stored. The
// read path applies no such clamp.
//
// # Blocking protocol
//
// Every blocking path follows release-wait-reacquire: the guard is
// dropped, the caller parks on the relevant signal, and after waking it
// reacquires the guard and re-validates the condition before proceeding.
// Wake order among multiple waiters is unspecified. Signals are delivered
// through capacity-one channels, so a signal fired between the condition
// check and the wait is retained rather than lost.
//
// # Fullness and emptiness
//
// Emptiness is exact: the cursors are equal only when every written byte
// has been read. Fullness is a heuristic on the cursor gap (one unit or a
// full capacity of bytes outstanding) checked before a transfer; it does
// not validate that the specific transfer fits in the remaining free
// space, so a single oversized write can overrun unread data. Callers that
// need stronger guarantees must size elements against capacity themselves.
package fifo
