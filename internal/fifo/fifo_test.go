package fifo

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jittakal/fifopipe/internal/errors"
)

const waitTimeout = 2 * time.Second

func TestNew(t *testing.T) {
	buf, err := New(8, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer buf.Close()

	if buf.Capacity() != 8 {
		t.Errorf("Capacity() = %d, want 8", buf.Capacity())
	}
	if buf.ElementSize() != 4 {
		t.Errorf("ElementSize() = %d, want 4", buf.ElementSize())
	}
	if !buf.Empty() {
		t.Error("new buffer should report empty")
	}
	if buf.Full() {
		t.Error("new buffer should not report full")
	}
}

func TestNew_InvalidArguments(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		elementSize int
		wantErr     error
	}{
		{"zero capacity", 0, 4, apperrors.ErrInvalidArgument},
		{"negative capacity", -1, 4, apperrors.ErrInvalidArgument},
		{"zero element size", 8, 0, apperrors.ErrInvalidArgument},
		{"negative element size", 8, -2, apperrors.ErrInvalidArgument},
		{"oversized capacity", MaxCapacity + 1, 4, apperrors.ErrOutOfMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := New(tt.capacity, tt.elementSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
			if buf != nil {
				t.Error("no partial buffer should be constructed on failure")
			}
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	buf, err := New(8, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer buf.Close()

	n, err := buf.Write(ctx, []byte("AB"), 2)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Write() transferred = %d, want 2", n)
	}

	data, n, err := buf.Read(ctx, 2)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Read() transferred = %d, want 2", n)
	}
	if !bytes.Equal(data, []byte("AB")) {
		t.Errorf("Read() = %q, want %q", data, "AB")
	}
	if !buf.Empty() {
		t.Error("buffer should report empty after draining")
	}
}

func TestWrite_TruncatesToElementSize(t *testing.T) {
	ctx := context.Background()
	buf, err := New(8, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer buf.Close()

	n, err := buf.Write(ctx, []byte("ABCDE"), 5)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Write() transferred = %d, want 4 (truncated)", n)
	}

	data, _, err := buf.Read(ctx, 4)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(data, []byte("ABCD")) {
		t.Errorf("stored bytes = %q, want %q", data, "ABCD")
	}
	if !buf.Empty() {
		t.Error("only the truncated length should have been stored")
	}
}

func TestFIFOOrderingAcrossWraparound(t *testing.T) {
	ctx := context.Background()
	buf, err := New(8, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer buf.Close()

	// Alternate 3-byte writes and reads so transfers straddle the
	// capacity boundary repeatedly.
	var got []byte
	var want []byte
	for i := 0; i < 10; i++ {
		chunk := []byte{byte(3 * i), byte(3*i + 1), byte(3*i + 2)}
		want = append(want, chunk...)

		if _, err := buf.Write(ctx, chunk, len(chunk)); err != nil {
			t.Fatalf("Write() iteration %d error = %v", i, err)
		}
		data, _, err := buf.Read(ctx, len(chunk))
		if err != nil {
			t.Fatalf("Read() iteration %d error = %v", i, err)
		}
		got = append(got, data...)
	}

	if !bytes.Equal(got, want) {
		t.Errorf("bytes read out of order:\ngot  %v\nwant %v", got, want)
	}
}

func TestFullnessHeuristic(t *testing.T) {
	ctx := context.Background()

	t.Run("gap equals capacity", func(t *testing.T) {
		buf, err := New(8, 8)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer buf.Close()

		if _, err := buf.Write(ctx, make([]byte, 8), 8); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if !buf.Full() {
			t.Error("buffer should report full after capacity bytes written unread")
		}
	})

	t.Run("gap equals one unit", func(t *testing.T) {
		buf, err := New(8, 4)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer buf.Close()

		if _, err := buf.Write(ctx, []byte{0x7f}, 1); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if !buf.Full() {
			t.Error("a single outstanding byte trips the gap-equals-one arm")
		}

		if _, _, err := buf.Read(ctx, 1); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if buf.Full() {
			t.Error("buffer should not report full after draining")
		}
		if !buf.Empty() {
			t.Error("buffer should report empty after draining")
		}
	})
}

func TestReaderBlocksUntilWrite(t *testing.T) {
	ctx := context.Background()
	buf, err := New(8, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer buf.Close()

	type result struct {
		data []byte
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		data, _, err := buf.Read(ctx, 3)
		resultCh <- result{data, err}
	}()

	// The reader must stay parked while the pipe is empty.
	select {
	case r := <-resultCh:
		t.Fatalf("Read() returned early: data=%v err=%v", r.data, r.err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := buf.Write(ctx, []byte{1, 2, 3}, 3); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case r := <-resultCh:
		if r.err != nil {
			t.Fatalf("Read() error = %v", r.err)
		}
		if !bytes.Equal(r.data, []byte{1, 2, 3}) {
			t.Errorf("Read() = %v, want [1 2 3]", r.data)
		}
	case <-time.After(waitTimeout):
		t.Fatal("reader was not woken by the write")
	}
}

func TestWriterBlocksWhenFull(t *testing.T) {
	ctx := context.Background()
	buf, err := New(8, 8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer buf.Close()

	if _, err := buf.Write(ctx, make([]byte, 8), 8); err != nil {
		t.Fatalf("fill Write() error = %v", err)
	}
	if !buf.Full() {
		t.Fatal("buffer should report full")
	}

	wrote := make(chan error, 1)
	go func() {
		_, err := buf.Write(ctx, []byte{9, 10}, 2)
		wrote <- err
	}()

	select {
	case err := <-wrote:
		t.Fatalf("Write() returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, _, err := buf.Read(ctx, 4); err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	select {
	case err := <-wrote:
		if err != nil {
			t.Fatalf("blocked Write() error = %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("writer was not woken by the read")
	}
}

func TestInterruptedWait(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		buf, err := New(8, 4)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer buf.Close()

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			_, _, err := buf.Read(ctx, 1)
			errCh <- err
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, apperrors.ErrInterrupted) {
				t.Errorf("Read() error = %v, want ErrInterrupted", err)
			}
		case <-time.After(waitTimeout):
			t.Fatal("cancelled reader did not return")
		}
		if !buf.Empty() {
			t.Error("interrupted read must not move the cursors")
		}
	})

	t.Run("writer", func(t *testing.T) {
		buf, err := New(4, 4)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer buf.Close()

		if _, err := buf.Write(context.Background(), make([]byte, 4), 4); err != nil {
			t.Fatalf("fill Write() error = %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			_, err := buf.Write(ctx, []byte{1}, 1)
			errCh <- err
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, apperrors.ErrInterrupted) {
				t.Errorf("Write() error = %v, want ErrInterrupted", err)
			}
		case <-time.After(waitTimeout):
			t.Fatal("cancelled writer did not return")
		}

		// The interrupted write transferred nothing.
		data, _, err := buf.Read(context.Background(), 4)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if !bytes.Equal(data, make([]byte, 4)) {
			t.Errorf("buffer contents disturbed by interrupted write: %v", data)
		}
	})
}

func TestWriteFault(t *testing.T) {
	ctx := context.Background()
	buf, err := New(8, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer buf.Close()

	// Requested length beyond the source range is a transfer fault, not a
	// truncation.
	n, err := buf.Write(ctx, []byte{1, 2}, 3)
	if !errors.Is(err, apperrors.ErrFault) {
		t.Errorf("Write() error = %v, want ErrFault", err)
	}
	if n != 0 {
		t.Errorf("Write() transferred = %d, want 0", n)
	}
	if !buf.Empty() {
		t.Error("faulted write must not advance the write cursor")
	}

	if _, err := buf.Write(ctx, nil, -1); !errors.Is(err, apperrors.ErrFault) {
		t.Errorf("Write() with negative count error = %v, want ErrFault", err)
	}
}

func TestReadFault(t *testing.T) {
	ctx := context.Background()
	buf, err := New(8, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer buf.Close()

	if _, err := buf.Write(ctx, []byte{5, 6}, 2); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	n, err := buf.ReadInto(ctx, make([]byte, 1), 2)
	if !errors.Is(err, apperrors.ErrFault) {
		t.Errorf("ReadInto() error = %v, want ErrFault", err)
	}
	if n != 0 {
		t.Errorf("ReadInto() transferred = %d, want 0", n)
	}

	if _, _, err := buf.Read(ctx, -1); !errors.Is(err, apperrors.ErrFault) {
		t.Errorf("Read() with negative count error = %v, want ErrFault", err)
	}

	// The faulted reads must not have advanced the read cursor.
	data, _, err := buf.Read(ctx, 2)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(data, []byte{5, 6}) {
		t.Errorf("Read() after faults = %v, want [5 6]", data)
	}
}

func TestConcurrentIntegrity(t *testing.T) {
	const (
		writers       = 4
		writesPerUnit = 32
		unit          = 2
	)
	totalUnits := writers * writesPerUnit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	buf, err := New(16, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer buf.Close()

	want := make(map[[unit]byte]int)
	for w := 0; w < writers; w++ {
		for i := 0; i < writesPerUnit; i++ {
			want[[unit]byte{byte(w), byte(i)}]++
		}
	}

	var wg sync.WaitGroup
	writeErrs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < writesPerUnit; i++ {
				chunk := []byte{byte(id), byte(i)}
				if _, err := buf.Write(ctx, chunk, unit); err != nil {
					writeErrs <- err
					return
				}
			}
		}(w)
	}

	got := make(map[[unit]byte]int)
	var gotMu sync.Mutex
	readErrs := make(chan error, 2)
	var readersWG sync.WaitGroup
	units := make(chan struct{}, totalUnits)
	for i := 0; i < totalUnits; i++ {
		units <- struct{}{}
	}
	close(units)

	for r := 0; r < 2; r++ {
		readersWG.Add(1)
		go func() {
			defer readersWG.Done()
			for range units {
				data, _, err := buf.Read(ctx, unit)
				if err != nil {
					readErrs <- err
					return
				}
				gotMu.Lock()
				got[[unit]byte{data[0], data[1]}]++
				gotMu.Unlock()
			}
		}()
	}

	wg.Wait()
	readersWG.Wait()

	select {
	case err := <-writeErrs:
		t.Fatalf("writer error: %v", err)
	default:
	}
	select {
	case err := <-readErrs:
		t.Fatalf("reader error: %v", err)
	default:
	}

	if len(got) != len(want) {
		t.Fatalf("distinct units read = %d, want %d", len(got), len(want))
	}
	for k, n := range want {
		if got[k] != n {
			t.Errorf("unit %v read %d times, want %d", k, got[k], n)
		}
	}
	if !buf.Empty() {
		t.Error("all written bytes should have been drained")
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	buf, err := New(8, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := buf.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := buf.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if _, err := buf.Write(ctx, []byte{1}, 1); !errors.Is(err, apperrors.ErrClosed) {
		t.Errorf("Write() after Close error = %v, want ErrClosed", err)
	}
	if _, _, err := buf.Read(ctx, 1); !errors.Is(err, apperrors.ErrClosed) {
		t.Errorf("Read() after Close error = %v, want ErrClosed", err)
	}
}

func TestClose_WakesBlockedWaiters(t *testing.T) {
	buf, err := New(8, 4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, _, err := buf.Read(context.Background(), 1)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := buf.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, apperrors.ErrClosed) {
			t.Errorf("blocked Read() error = %v, want ErrClosed", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Close did not wake the blocked reader")
	}
}
