package reader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/evsync/evsync/internal/pkg/bits"
	"github.com/evsync/evsync/internal/pkg/device"
	"github.com/evsync/evsync/internal/pkg/event"
)

// fakeDevice answers state queries from fixed in-memory data.
type fakeDevice struct {
	name     string
	keys     bits.Set
	leds     bits.Set
	sounds   bits.Set
	switches bits.Set
	axes     bits.Set
	abs      map[event.Code]device.AbsInfo
	mt       map[event.Code][]int32
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		name:     "fake device",
		keys:     bits.NewSet(event.KEY_MAX),
		leds:     bits.NewSet(event.LED_MAX),
		sounds:   bits.NewSet(event.SND_MAX),
		switches: bits.NewSet(event.SW_MAX),
		axes:     bits.NewSet(event.ABS_MAX),
		abs:      map[event.Code]device.AbsInfo{},
		mt:       map[event.Code][]int32{},
	}
}

func (f *fakeDevice) Name() (string, error)            { return f.name, nil }
func (f *fakeDevice) KeyState() (bits.Set, error)      { return f.keys.Clone(), nil }
func (f *fakeDevice) LedState() (bits.Set, error)      { return f.leds.Clone(), nil }
func (f *fakeDevice) SoundState() (bits.Set, error)    { return f.sounds.Clone(), nil }
func (f *fakeDevice) SwitchState() (bits.Set, error)   { return f.switches.Clone(), nil }
func (f *fakeDevice) SupportedAbsAxes() (bits.Set, error) {
	return f.axes.Clone(), nil
}

func (f *fakeDevice) AbsInfo(axis event.Code) (device.AbsInfo, error) {
	return f.abs[axis], nil
}

func (f *fakeDevice) MTSlotValues(code event.Code, slots int) ([]int32, error) {
	values := make([]int32, slots)
	copy(values, f.mt[code])
	return values, nil
}

func TestFetchState(t *testing.T) {
	dev := newFakeDevice()
	dev.keys.Insert(30)
	dev.switches.Insert(0)
	dev.axes.Insert(event.ABS_X)
	dev.axes.Insert(event.ABS_Y)
	dev.abs[event.ABS_X] = device.AbsInfo{Value: 100, Maximum: 4095}
	dev.abs[event.ABS_Y] = device.AbsInfo{Value: 7, Maximum: 4095}

	st, err := fetchState(dev)
	assert.NoError(t, err)

	assert.True(t, st.keys.Contains(30))
	assert.Equal(t, 1, st.keys.Len())
	assert.True(t, st.switches.Contains(0))
	assert.Equal(t, int32(100), st.abs[event.ABS_X])
	assert.Equal(t, int32(7), st.abs[event.ABS_Y])
	assert.Empty(t, st.mt.ValidSlots())
}

func TestResyncEmitsDifferences(t *testing.T) {
	axes := bits.NewSet(event.ABS_MAX)
	axes.Insert(event.ABS_X)

	ts := time.Unix(1234, 567000) // 567 µs

	st := newState(axes.Clone())
	st.keys.Insert(30)
	st.abs[event.ABS_X] = 100
	st.lastEvent = ts

	fresh := newState(axes.Clone())
	fresh.abs[event.ABS_X] = 112 // key 30 released, axis moved

	var got []event.Event
	st.resyncFrom(fresh, func(ev event.Event) {
		got = append(got, ev)
	})

	want := []event.Event{
		event.New(event.EV_KEY, 30, 0).WithTime(ts),
		event.New(event.EV_ABS, event.ABS_X, 112).WithTime(ts),
		event.New(event.EV_SYN, event.SYN_REPORT, 0).WithTime(ts),
	}
	assert.Equal(t, want, got)

	assert.False(t, st.keys.Contains(30))
	assert.Equal(t, int32(112), st.abs[event.ABS_X])
}

func TestResyncCategoryOrder(t *testing.T) {
	axes := bits.NewSet(event.ABS_MAX)

	st := newState(axes.Clone())
	fresh := newState(axes.Clone())
	fresh.keys.Insert(5)
	fresh.leds.Insert(1)
	fresh.sounds.Insert(2)
	fresh.switches.Insert(3)

	var types []event.Type
	st.resyncFrom(fresh, func(ev event.Event) {
		types = append(types, ev.Type)
	})

	assert.Equal(t, []event.Type{
		event.EV_KEY, event.EV_LED, event.EV_SND, event.EV_SW, event.EV_SYN,
	}, types)
}

func TestResyncNoDifferencesEmitsNothing(t *testing.T) {
	axes := bits.NewSet(event.ABS_MAX)
	axes.Insert(event.ABS_X)

	st := newState(axes.Clone())
	st.keys.Insert(30)
	st.abs[event.ABS_X] = 50

	fresh := newState(axes.Clone())
	fresh.keys.Insert(30)
	fresh.abs[event.ABS_X] = 50

	emitted := st.resyncFrom(fresh, func(ev event.Event) {
		t.Errorf("unexpected synthetic event %v", ev)
	})
	assert.Zero(t, emitted)
}

func TestResyncAdoptsMultitouchSilently(t *testing.T) {
	axes := bits.NewSet(event.ABS_MAX)
	axes.Insert(event.ABS_MT_SLOT)
	axes.Insert(event.ABS_MT_TRACKING_ID)

	st := newState(axes.Clone())
	fresh := newState(axes.Clone())
	fresh.mt = Slots{
		data:  []int32{int32(event.ABS_MT_TRACKING_ID), 9, -1},
		slots: 2,
		codes: 1,
	}

	emitted := st.resyncFrom(fresh, func(ev event.Event) {
		t.Errorf("multitouch changes must not emit events, got %v", ev)
	})
	assert.Zero(t, emitted)
	assert.Equal(t, []int32{0}, st.mt.ValidSlots())
}

func TestApplyIgnoresKeyRepeats(t *testing.T) {
	st := newState(bits.NewSet(event.ABS_MAX))
	st.keys.Insert(30)

	st.apply(event.New(event.EV_KEY, 30, 2))
	assert.True(t, st.keys.Contains(30))

	st.apply(event.New(event.EV_KEY, 30, 0))
	assert.False(t, st.keys.Contains(30))

	st.apply(event.New(event.EV_KEY, 30, 2))
	assert.False(t, st.keys.Contains(30))
}
