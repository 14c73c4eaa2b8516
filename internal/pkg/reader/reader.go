// Package reader maintains a consistent, replayable view of an event
// device whose transport delivers records in order but may silently drop
// them under buffer pressure, signalling loss only retroactively with a
// SYN_DROPPED record. It detects the loss sentinel, re-derives ground
// truth from the device, and injects synthetic events so consumers never
// observe an inconsistent transition.
package reader

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/evsync/evsync/internal/pkg/batch"
	"github.com/evsync/evsync/internal/pkg/bits"
	"github.com/evsync/evsync/internal/pkg/device"
	"github.com/evsync/evsync/internal/pkg/event"
	"github.com/evsync/evsync/internal/pkg/logger"
)

var log = logger.GetLogger()

// transport is the reader's view of the raw event source: one read call
// per request, plus the administrative operations a resynchronization
// needs. Satisfied by deviceTransport; tests supply an in-memory fake.
type transport interface {
	readEvents(dst []event.Event) (int, error)
	fetchState() (*state, error)
	drainKernelBuffer()
}

// Reader ingests the raw record stream of one device and exposes a
// resynchronizing view of it.
//
// The queue holds only committed batches, each terminated by a report
// boundary; records of a batch whose terminator has not arrived yet stay
// in pending and are never surfaced. A Reader exclusively owns its cache
// and queue: reading raw events from a duplicate of the same device
// handle bypasses the cache and desynchronizes it, which the Reader does
// not defend against.
type Reader struct {
	dev *device.Handle
	tr  transport
	br  *batch.Reader

	st      *state
	queue   []event.Event
	pending []event.Event

	// discard drops everything up to and including the next
	// report-terminated batch, entered when a loss sentinel is seen.
	discard bool
}

// New wraps an opened device handle. The freshly opened device presents
// its pre-existing state (keys already held, switches already closed)
// with no events to imply it, so construction performs an initial
// resynchronization and queues the resulting synthetic events.
func New(h *device.Handle) (*Reader, error) {
	axes, err := h.SupportedAbsAxes()
	if err != nil {
		return nil, fmt.Errorf("querying supported axes failed: %w", err)
	}
	tr := &deviceTransport{h: h}
	r := &Reader{
		dev: h,
		tr:  tr,
		br:  batch.NewReader(tr.readEvents),
		st:  newState(axes),
	}
	if err := r.resync(); err != nil {
		return nil, fmt.Errorf("initial state sync failed: %w", err)
	}
	return r, nil
}

// newWithTransport wires a Reader to an arbitrary transport, without the
// initial resync. Tests use it to drive the state machine directly.
func newWithTransport(tr transport, axes bits.Set) *Reader {
	r := &Reader{
		tr: tr,
		st: newState(axes),
	}
	r.br = batch.NewReader(tr.readEvents)
	return r
}

// Handle returns the underlying device handle.
func (r *Reader) Handle() *device.Handle {
	return r.dev
}

// Close closes the underlying device handle, discarding any buffered
// events.
func (r *Reader) Close() error {
	return r.dev.Close()
}

// ReadEvent pops the next committed event, refilling from the device
// when the queue is empty. On a non-blocking handle with nothing pending
// it returns device.ErrWouldBlock.
func (r *Reader) ReadEvent() (event.Event, error) {
	if len(r.queue) == 0 {
		if err := r.refill(); err != nil {
			return event.Event{}, err
		}
	}
	ev := r.queue[0]
	r.queue = r.queue[1:]
	return ev, nil
}

// ReadReport pops one whole committed batch, up to and including its
// boundary record. It never returns a partial report; blocking behavior
// matches ReadEvent.
func (r *Reader) ReadReport() ([]event.Event, error) {
	if len(r.queue) == 0 {
		if err := r.refill(); err != nil {
			return nil, err
		}
	}
	end := terminatorIndex(r.queue)
	if end < 0 {
		// The queue holds only committed batches, so a terminator is
		// always present.
		panic("reader: committed queue without a boundary record")
	}
	report := make([]event.Event, end+1)
	copy(report, r.queue[:end+1])
	r.queue = r.queue[end+1:]
	return report, nil
}

// Update advances the cached state by draining and discarding all
// currently available records, without blocking: the handle is forced
// into non-blocking mode for the duration and restored afterwards.
func (r *Reader) Update() error {
	start := time.Now()
	wasNonblock, err := r.dev.SetNonblock(true)
	if err != nil {
		return err
	}

	var reports int
	var readErr error
	for {
		if _, err := r.ReadReport(); err != nil {
			if err != device.ErrWouldBlock {
				readErr = err
			}
			break
		}
		reports++
	}
	r.queue = r.queue[:0]

	if !wasNonblock {
		if _, err := r.dev.SetNonblock(false); err != nil && readErr == nil {
			readErr = err
		}
	}
	log.Debug("state update finished",
		zap.Int("reports", reports), zap.Duration("took", time.Since(start)))
	return readErr
}

// KeyState returns a snapshot of the currently pressed keys and buttons.
func (r *Reader) KeyState() bits.Set {
	return r.st.keys.Clone()
}

// LedState returns a snapshot of the currently lit LEDs.
func (r *Reader) LedState() bits.Set {
	return r.st.leds.Clone()
}

// SoundState returns a snapshot of the sounds requested to play.
func (r *Reader) SoundState() bits.Set {
	return r.st.sounds.Clone()
}

// SwitchState returns a snapshot of the currently closed switches.
func (r *Reader) SwitchState() bits.Set {
	return r.st.switches.Clone()
}

// AbsState returns the cached value of a scalar absolute axis. Axes at
// or above ABS_MT_SLOT are per-slot state and must be queried through
// SlotValue; asking here is a programmer error and panics.
func (r *Reader) AbsState(axis event.Code) int32 {
	if axis >= event.ABS_MT_SLOT {
		panic(fmt.Sprintf("reader: axis 0x%02x is multitouch state, use SlotValue", axis))
	}
	return r.st.abs[axis]
}

// SlotValue returns the cached value of an ABS_MT_* axis for one slot.
// Codes at or below ABS_MT_SLOT are not per-slot state; asking for them
// here is a programmer error and panics. ok is false when the axis is
// untracked or the slot does not exist; data for slots not listed by
// ValidSlots may be stale.
func (r *Reader) SlotValue(slot int32, code event.Code) (int32, bool) {
	if code <= event.ABS_MT_SLOT {
		panic(fmt.Sprintf("reader: code 0x%02x is not a multitouch axis", code))
	}
	return r.st.mt.Value(slot, code)
}

// ValidSlots returns the multitouch slots currently holding valid
// contact data, in ascending order.
func (r *Reader) ValidSlots() []int32 {
	return r.st.mt.ValidSlots()
}

// CurrentSlot returns the multitouch slot that incremental ABS_MT_*
// events currently apply to.
func (r *Reader) CurrentSlot() int32 {
	return r.st.mt.ActiveSlot()
}

// refill reads batches until at least one committed batch (or the
// synthetic output of a resynchronization) sits in the queue.
//
// A batch ending in SYN_REPORT is committed: applied to the cache and
// queued whole — unless the discard flag is set, in which case the whole
// batch is dropped and the flag cleared, since the batch may predate the
// loss point. A batch ending in SYN_DROPPED triggers a full
// resynchronization; its records, and everything read after it, are
// discarded. The transport contract allows no other terminator.
func (r *Reader) refill() error {
	for {
		evs, err := r.br.Read()
		if err != nil {
			return err
		}
		r.pending = append(r.pending, evs...)

		for {
			end := terminatorIndex(r.pending)
			if end < 0 {
				break
			}
			term := r.pending[end]
			r.st.lastEvent = term.Time()

			switch term.Code {
			case event.SYN_REPORT:
				committed := r.pending[:end+1]
				r.pending = r.pending[end+1:]
				if r.discard {
					r.discard = false
					log.Debug("dropping first batch after loss", zap.Int("events", len(committed)))
					continue
				}
				for _, ev := range committed {
					r.st.apply(ev)
				}
				r.queue = append(r.queue, committed...)
			case event.SYN_DROPPED:
				log.Debug("loss sentinel received, resynchronizing",
					zap.Int("discarded", len(r.pending)))
				r.pending = r.pending[:0]
				r.discard = true
				if err := r.resync(); err != nil {
					return err
				}
			default:
				panic(fmt.Sprintf("reader: batch terminated by impossible record %v", term))
			}
		}

		if len(r.queue) > 0 {
			return nil
		}
	}
}

// resync replaces the cache with freshly queried ground truth and queues
// the synthetic diff. The device queries all complete before the cache
// is touched, so a failed resync leaves cache and queue unchanged and
// the triggering operation can simply be retried.
func (r *Reader) resync() error {
	start := time.Now()
	r.tr.drainKernelBuffer()

	fresh, err := r.tr.fetchState()
	if err != nil {
		return err
	}
	emitted := r.st.resyncFrom(fresh, func(ev event.Event) {
		r.queue = append(r.queue, ev)
	})
	log.Debug("resync finished",
		zap.Int("synthetic_events", emitted), zap.Duration("took", time.Since(start)))
	return nil
}

// terminatorIndex returns the index of the first record that may
// legally terminate a batch, or -1. Other EV_SYN codes do not end a
// batch and ride along inside it.
func terminatorIndex(evs []event.Event) int {
	for i, ev := range evs {
		if ev.Type == event.EV_SYN && (ev.Code == event.SYN_REPORT || ev.Code == event.SYN_DROPPED) {
			return i
		}
	}
	return -1
}

// deviceTransport adapts a *device.Handle to the transport interface.
type deviceTransport struct {
	h *device.Handle
}

func (t *deviceTransport) readEvents(dst []event.Event) (int, error) {
	return t.h.ReadEvents(dst)
}

func (t *deviceTransport) fetchState() (*state, error) {
	return fetchState(t.h)
}

// drainKernelBuffer empties the kernel-side event buffer before a state
// fetch, the way libevdev does, so the fetched ground truth is not
// immediately outdated by already-buffered events. Bounded, since a
// chatty device could otherwise keep this spinning.
func (t *deviceTransport) drainKernelBuffer() {
	const readLimit = 16
	var scratch [128]event.Event

	reads := 0
	for reads < readLimit {
		ok, err := t.h.Readable()
		if err != nil || !ok {
			return
		}
		if _, err := t.h.ReadEvents(scratch[:]); err != nil {
			return
		}
		reads++
	}
	log.Warn("kernel buffer still not empty while resynchronizing",
		zap.Int("reads", reads), zap.Int("read_size", len(scratch)))
}
