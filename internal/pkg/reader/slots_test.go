package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evsync/evsync/internal/pkg/device"
	"github.com/evsync/evsync/internal/pkg/event"
)

func TestSlotsZeroValue(t *testing.T) {
	var s Slots

	assert.Empty(t, s.ValidSlots())
	assert.Equal(t, int32(0), s.ActiveSlot())
	_, ok := s.Value(0, event.ABS_MT_TRACKING_ID)
	assert.False(t, ok)
}

func TestSlotsTrackingLifecycle(t *testing.T) {
	s := Slots{
		data:  []int32{int32(event.ABS_MT_TRACKING_ID), -1, 0},
		slots: 2,
		codes: 1,
	}

	// Only slot 1 holds a live contact.
	assert.Equal(t, []int32{1}, s.ValidSlots())

	// A new contact lands in slot 0.
	s.apply(event.New(event.EV_ABS, event.ABS_MT_SLOT, 0))
	s.apply(event.New(event.EV_ABS, event.ABS_MT_TRACKING_ID, 5))
	assert.Equal(t, []int32{0, 1}, s.ValidSlots())
	assert.Equal(t, int32(0), s.ActiveSlot())

	id, ok := s.Value(0, event.ABS_MT_TRACKING_ID)
	assert.True(t, ok)
	assert.Equal(t, int32(5), id)

	// The contact in slot 1 lifts.
	s.apply(event.New(event.EV_ABS, event.ABS_MT_SLOT, 1))
	s.apply(event.New(event.EV_ABS, event.ABS_MT_TRACKING_ID, -1))
	assert.Equal(t, []int32{0}, s.ValidSlots())
}

func TestSlotsApplyOutOfRange(t *testing.T) {
	s := Slots{
		data:  []int32{int32(event.ABS_MT_TRACKING_ID), -1, -1},
		slots: 2,
		codes: 1,
	}

	// An untracked axis and an out-of-range slot are both ignored.
	s.apply(event.New(event.EV_ABS, event.ABS_MT_PRESSURE, 42))
	s.apply(event.New(event.EV_ABS, event.ABS_MT_SLOT, 7))
	s.apply(event.New(event.EV_ABS, event.ABS_MT_TRACKING_ID, 1))
	assert.Empty(t, s.ValidSlots())
}

func TestFetchSlots(t *testing.T) {
	dev := newFakeDevice()
	dev.axes.Insert(event.ABS_MT_SLOT)
	dev.axes.Insert(event.ABS_MT_POSITION_X)
	dev.axes.Insert(event.ABS_MT_TRACKING_ID)
	dev.abs[event.ABS_MT_SLOT] = device.AbsInfo{Maximum: 1}
	dev.mt[event.ABS_MT_POSITION_X] = []int32{120, 480}
	dev.mt[event.ABS_MT_TRACKING_ID] = []int32{3, -1}

	s, err := fetchSlots(dev, dev.axes)
	assert.NoError(t, err)

	assert.Equal(t, []int32{0}, s.ValidSlots())
	x, ok := s.Value(0, event.ABS_MT_POSITION_X)
	assert.True(t, ok)
	assert.Equal(t, int32(120), x)

	_, ok = s.Value(2, event.ABS_MT_POSITION_X)
	assert.False(t, ok)
}

func TestFetchSlotsWithoutMultitouch(t *testing.T) {
	dev := newFakeDevice()
	dev.axes.Insert(event.ABS_X)

	s, err := fetchSlots(dev, dev.axes)
	assert.NoError(t, err)
	assert.Empty(t, s.ValidSlots())
}

func TestFetchSlotsWithoutTrackingID(t *testing.T) {
	dev := newFakeDevice()
	dev.axes.Insert(event.ABS_MT_SLOT)
	dev.axes.Insert(event.ABS_MT_POSITION_X)
	dev.abs[event.ABS_MT_SLOT] = device.AbsInfo{Maximum: 9}

	// Without a tracking identifier the table degrades to empty.
	s, err := fetchSlots(dev, dev.axes)
	assert.NoError(t, err)
	assert.Empty(t, s.ValidSlots())
	_, ok := s.Value(0, event.ABS_MT_POSITION_X)
	assert.False(t, ok)
}

func TestFetchSlotsTruncatesExcessiveCount(t *testing.T) {
	dev := newFakeDevice()
	dev.axes.Insert(event.ABS_MT_SLOT)
	dev.axes.Insert(event.ABS_MT_TRACKING_ID)
	dev.abs[event.ABS_MT_SLOT] = device.AbsInfo{Maximum: 10_000}

	s, err := fetchSlots(dev, dev.axes)
	assert.NoError(t, err)
	assert.Equal(t, MaxSlots, s.slots)
}
