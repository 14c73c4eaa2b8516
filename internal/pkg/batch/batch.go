// Package batch groups runs of fixed-size input records into single
// underlying read and write calls. It is purely a buffering discipline:
// record order is always preserved and no record meaning is interpreted.
package batch

import "github.com/evsync/evsync/internal/pkg/event"

// WriteSize is the writer's buffer capacity in records.
//
// Sized to typical per-frame event counts: a busy mouse produces ~5 events
// per frame, a keyboard ~10, a game controller 8-9, a two-finger touchpad
// ~10 including the terminating boundary record.
const WriteSize = 12

// ReadSize is the reader's scratch capacity in records.
// 21 * 24 bytes = 504 bytes, just under a 512 B allocation size class.
const ReadSize = 21

// WriteFunc performs one underlying write of a run of records.
type WriteFunc func([]event.Event) error

// ReadFunc performs one underlying read, filling dst with 0..len(dst)
// complete records and returning how many arrived.
type ReadFunc func(dst []event.Event) (int, error)

// Writer accumulates outgoing records and flushes them in batches.
// Buffering only delays writes, it never reorders them.
type Writer struct {
	sink WriteFunc
	buf  [WriteSize]event.Event
	n    int
}

func NewWriter(sink WriteFunc) *Writer {
	return &Writer{sink: sink}
}

// Write appends events to the buffer, flushing as needed. A slice at
// least as large as the whole buffer is written through directly after a
// flush, instead of being buffered chunkwise.
func (w *Writer) Write(events []event.Event) error {
	if len(events) > WriteSize-w.n {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	if len(events) >= WriteSize {
		if err := w.Flush(); err != nil {
			return err
		}
		return w.sink(events)
	}

	copy(w.buf[w.n:], events)
	w.n += len(events)
	return nil
}

// Flush writes any buffered records in one call and clears the buffer.
func (w *Writer) Flush() error {
	if w.n == 0 {
		return nil
	}
	if err := w.sink(w.buf[:w.n]); err != nil {
		return err
	}
	w.n = 0
	return nil
}

// Buffered returns the number of records not yet flushed.
func (w *Writer) Buffered() int {
	return w.n
}

// Reader performs one underlying read per call and hands the arrived
// records to the caller for classification. It has no notion of a report,
// only of "some records arrived"; the returned slice is only valid until
// the next Read.
type Reader struct {
	src     ReadFunc
	scratch [ReadSize]event.Event
}

func NewReader(src ReadFunc) *Reader {
	return &Reader{src: src}
}

func (r *Reader) Read() ([]event.Event, error) {
	n, err := r.src(r.scratch[:])
	if err != nil {
		return nil, err
	}
	return r.scratch[:n], nil
}
