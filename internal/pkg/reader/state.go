package reader

import (
	"time"

	"github.com/evsync/evsync/internal/pkg/bits"
	"github.com/evsync/evsync/internal/pkg/device"
	"github.com/evsync/evsync/internal/pkg/event"
)

// querier is the slice of the device handle the state cache needs for
// resynchronization. Satisfied by *device.Handle; tests supply a fake.
type querier interface {
	Name() (string, error)
	KeyState() (bits.Set, error)
	LedState() (bits.Set, error)
	SoundState() (bits.Set, error)
	SwitchState() (bits.Set, error)
	SupportedAbsAxes() (bits.Set, error)
	AbsInfo(axis event.Code) (device.AbsInfo, error)
	MTSlotValues(code event.Code, slots int) ([]int32, error)
}

// state is the reader's cached view of the device: the four boolean
// categories, the scalar absolute axes below ABS_MT_SLOT, the multitouch
// table, and the timestamp synthetic events are stamped with.
type state struct {
	keys     bits.Set
	leds     bits.Set
	sounds   bits.Set
	switches bits.Set
	abs      [int(event.ABS_MT_SLOT)]int32
	absAxes  bits.Set
	mt       Slots

	// lastEvent tracks the newest batch terminator seen; synthetic events
	// have no genuine event to borrow a timestamp from, so they reuse it.
	lastEvent time.Time
}

// newState creates an empty cache: nothing pressed, all axes zero.
func newState(absAxes bits.Set) *state {
	return &state{
		keys:      bits.NewSet(event.KEY_MAX),
		leds:      bits.NewSet(event.LED_MAX),
		sounds:    bits.NewSet(event.SND_MAX),
		switches:  bits.NewSet(event.SW_MAX),
		absAxes:   absAxes,
		lastEvent: time.Now(),
	}
}

// fetchState queries the device for fresh ground truth. All queries run
// to completion before any of the result is used, so a failure here never
// leaves a cache partially updated.
func fetchState(dev querier) (*state, error) {
	absAxes, err := dev.SupportedAbsAxes()
	if err != nil {
		return nil, err
	}

	st := newState(absAxes)
	for axis := event.Code(0); axis < event.ABS_MT_SLOT; axis++ {
		if !absAxes.Contains(axis) {
			continue
		}
		info, err := dev.AbsInfo(axis)
		if err != nil {
			return nil, err
		}
		st.abs[axis] = info.Value
	}

	if st.keys, err = dev.KeyState(); err != nil {
		return nil, err
	}
	if st.leds, err = dev.LedState(); err != nil {
		return nil, err
	}
	if st.sounds, err = dev.SoundState(); err != nil {
		return nil, err
	}
	if st.switches, err = dev.SwitchState(); err != nil {
		return nil, err
	}
	if st.mt, err = fetchSlots(dev, absAxes); err != nil {
		return nil, err
	}

	return st, nil
}

// resyncFrom replaces the cache with fresh ground truth, emitting one
// synthetic event per difference so consumers never observe an
// inconsistent transition: boolean categories first (membership in the
// new set decides press vs release), then scalar axes in ascending code
// order, terminated by a single report boundary when anything was
// emitted. All synthetic events carry the cached timestamp.
//
// The multitouch table is adopted wholesale without synthetic events:
// per-slot state is exposed only through the direct accessors, never
// through the event channel. Consumers depend on that asymmetry.
func (st *state) resyncFrom(fresh *state, emit func(event.Event)) int {
	var emitted int
	stamp := func(ev event.Event) {
		emitted++
		emit(ev.WithTime(st.lastEvent))
	}

	syncSet := func(dest *bits.Set, src bits.Set, t event.Type) {
		it := dest.SymmetricDifference(src)
		for {
			code, ok := it.Next()
			if !ok {
				break
			}
			var value int32
			if src.Contains(code) {
				value = 1
			}
			stamp(event.New(t, code, value))
		}
		*dest = src
	}

	syncSet(&st.keys, fresh.keys, event.EV_KEY)
	syncSet(&st.leds, fresh.leds, event.EV_LED)
	syncSet(&st.sounds, fresh.sounds, event.EV_SND)
	syncSet(&st.switches, fresh.switches, event.EV_SW)

	for axis := range st.abs {
		if st.abs[axis] != fresh.abs[axis] {
			st.abs[axis] = fresh.abs[axis]
			stamp(event.New(event.EV_ABS, event.Code(axis), fresh.abs[axis]))
		}
	}

	st.absAxes = fresh.absAxes
	if st.absAxes.Contains(event.ABS_MT_SLOT) {
		st.mt = fresh.mt
	}

	if emitted > 0 {
		stamp(event.New(event.EV_SYN, event.SYN_REPORT, 0))
	}
	return emitted
}

// apply folds one observed event into the cache, touching exactly the
// field it concerns.
func (st *state) apply(ev event.Event) {
	switch ev.Type {
	case event.EV_ABS:
		if ev.Code < event.ABS_MT_SLOT {
			st.abs[ev.Code] = ev.Value
		} else {
			st.mt.apply(ev)
		}
	case event.EV_KEY:
		switch ev.Value {
		case 1:
			st.keys.Insert(ev.Code)
		case 0:
			st.keys.Remove(ev.Code)
		}
	case event.EV_LED:
		if ev.Value != 0 {
			st.leds.Insert(ev.Code)
		} else {
			st.leds.Remove(ev.Code)
		}
	case event.EV_SND:
		if ev.Value != 0 {
			st.sounds.Insert(ev.Code)
		} else {
			st.sounds.Remove(ev.Code)
		}
	case event.EV_SW:
		if ev.Value != 0 {
			st.switches.Insert(ev.Code)
		} else {
			st.switches.Remove(ev.Code)
		}
	}
}
