package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evsync/evsync/internal/pkg/event"
)

func zeroes(n int) []event.Event {
	return make([]event.Event, n)
}

func TestWriterBuffersUntilFull(t *testing.T) {
	var wrote []int
	w := NewWriter(func(evs []event.Event) error {
		wrote = append(wrote, len(evs))
		return nil
	})

	assert.NoError(t, w.Write(zeroes(WriteSize-1)))
	assert.NoError(t, w.Write(zeroes(1)))
	assert.Empty(t, wrote, "a full buffer alone must not flush")
	assert.Equal(t, WriteSize, w.Buffered())

	// The next record does not fit, so the full buffer is flushed first.
	assert.NoError(t, w.Write(zeroes(1)))
	assert.Equal(t, []int{WriteSize}, wrote)
	assert.Equal(t, 1, w.Buffered())
}

func TestWriterWritesLargeSlicesDirectly(t *testing.T) {
	var wrote []int
	w := NewWriter(func(evs []event.Event) error {
		wrote = append(wrote, len(evs))
		return nil
	})

	// Oversized slice with an empty buffer: single direct write.
	assert.NoError(t, w.Write(zeroes(WriteSize+1)))
	assert.Equal(t, []int{WriteSize + 1}, wrote)
	assert.Equal(t, 0, w.Buffered())

	// Exactly buffer-sized: also written directly.
	wrote = nil
	assert.NoError(t, w.Write(zeroes(WriteSize)))
	assert.Equal(t, []int{WriteSize}, wrote)
	assert.Equal(t, 0, w.Buffered())

	// Buffered records are flushed before the direct write, never
	// re-buffered behind it.
	wrote = nil
	assert.NoError(t, w.Write(zeroes(1)))
	assert.NoError(t, w.Write(zeroes(WriteSize)))
	assert.Equal(t, []int{1, WriteSize}, wrote)
	assert.Equal(t, 0, w.Buffered())
}

func TestWriterFlushOnEmptyBufferWritesNothing(t *testing.T) {
	w := NewWriter(func(evs []event.Event) error {
		t.Fatalf("unexpected write of %d events", len(evs))
		return nil
	})
	assert.NoError(t, w.Flush())
}

func TestWriterPreservesOrder(t *testing.T) {
	var got []int32
	w := NewWriter(func(evs []event.Event) error {
		for _, ev := range evs {
			got = append(got, ev.Value)
		}
		return nil
	})

	var want []int32
	for i := int32(0); i < 3*WriteSize+5; i++ {
		assert.NoError(t, w.Write([]event.Event{event.New(event.EV_KEY, 30, i)}))
		want = append(want, i)
	}
	assert.NoError(t, w.Flush())
	assert.Equal(t, want, got)
}

func TestReaderReturnsWhatArrived(t *testing.T) {
	pending := []event.Event{
		event.New(event.EV_KEY, 30, 1),
		event.New(event.EV_SYN, event.SYN_REPORT, 0),
	}
	r := NewReader(func(dst []event.Event) (int, error) {
		n := copy(dst, pending)
		pending = pending[n:]
		return n, nil
	})

	evs, err := r.Read()
	assert.NoError(t, err)
	assert.Len(t, evs, 2)
	assert.Equal(t, event.Code(30), evs[0].Code)
	assert.Equal(t, event.SYN_REPORT, evs[1].Code)

	evs, err = r.Read()
	assert.NoError(t, err)
	assert.Empty(t, evs)
}
