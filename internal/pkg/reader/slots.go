package reader

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/evsync/evsync/internal/pkg/bits"
	"github.com/evsync/evsync/internal/pkg/event"
)

// MaxSlots caps the number of multitouch slots tracked per device.
// The kernel does not bound ABS_MT_SLOT's declared maximum, so a
// misbehaving device reporting more is truncated with a warning rather
// than trusted.
const MaxSlots = 60

// Slots caches the per-contact multitouch state: for every ABS_MT_* axis
// the device advertises, one value per hardware slot, plus the currently
// selected slot. A slot holds valid contact data iff its
// ABS_MT_TRACKING_ID value is non-negative.
//
// The zero value is an empty table; every query on it reports absence.
type Slots struct {
	// data holds one group per tracked axis: the axis code followed by
	// slots values, matching the EVIOCGMTSLOTS buffer layout.
	data   []int32
	slots  int
	codes  int
	active int32
}

// fetchSlots builds a fresh table from the device. Devices without
// ABS_MT_SLOT get an empty table; devices advertising slots without a
// tracking identifier cannot be tracked meaningfully, so they degrade to
// an empty table with a warning instead of failing the reader.
func fetchSlots(dev querier, axes bits.Set) (Slots, error) {
	var s Slots

	if !axes.Contains(event.ABS_MT_SLOT) {
		return s, nil
	}
	if !axes.Contains(event.ABS_MT_TRACKING_ID) {
		name, _ := dev.Name()
		log.Warn("device advertises ABS_MT_SLOT but not ABS_MT_TRACKING_ID, multitouch tracking disabled",
			zap.String("device_name", name))
		return s, nil
	}

	info, err := dev.AbsInfo(event.ABS_MT_SLOT)
	if err != nil {
		return s, err
	}
	if info.Minimum != 0 {
		log.Warn("ABS_MT_SLOT has a non-zero minimum", zap.Int32("minimum", info.Minimum))
	}
	count := int(info.Maximum) + 1
	if count > MaxSlots {
		log.Warn("device declares more multitouch slots than supported, truncating",
			zap.Int("declared", count), zap.Int("max", MaxSlots))
		count = MaxSlots
	}
	if count < 0 {
		count = 0
	}
	s.slots = count
	if info.Value > 0 {
		s.active = info.Value
	}

	for code := event.ABS_MT_SLOT + 1; code <= event.ABS_MAX; code++ {
		if !axes.Contains(code) {
			continue
		}
		values, err := dev.MTSlotValues(code, s.slots)
		if err != nil {
			return Slots{}, err
		}
		s.codes++
		s.data = append(s.data, int32(code))
		s.data = append(s.data, values...)
	}

	return s, nil
}

// groupFor returns the per-slot values for one ABS_MT_* axis, or nil if
// the axis is not tracked. code must be above ABS_MT_SLOT.
func (s *Slots) groupFor(code event.Code) []int32 {
	width := s.slots + 1
	for i := 0; i < s.codes; i++ {
		grp := s.data[i*width:][:width]
		if grp[0] == int32(code) {
			return grp[1:]
		}
	}
	return nil
}

// ValidSlots returns the slot indices with valid contact data, in
// ascending order.
func (s *Slots) ValidSlots() []int32 {
	ids := s.groupFor(event.ABS_MT_TRACKING_ID)
	var out []int32
	for slot, id := range ids {
		if id >= 0 {
			out = append(out, int32(slot))
		}
	}
	return out
}

// Value returns the cached value of one ABS_MT_* axis for one slot.
// ok is false when the axis is untracked or the slot is out of range.
// Validity of the slot itself is not checked here; combine with
// ValidSlots, otherwise stale contact data may be returned.
func (s *Slots) Value(slot int32, code event.Code) (int32, bool) {
	grp := s.groupFor(code)
	if grp == nil || slot < 0 || int(slot) >= len(grp) {
		return 0, false
	}
	return grp[slot], true
}

// ActiveSlot returns the currently selected slot index.
func (s *Slots) ActiveSlot() int32 {
	return s.active
}

// apply folds one EV_ABS event into the table: a slot-change event moves
// the active pointer, any other MT axis event updates the single cell for
// that axis in the active slot.
func (s *Slots) apply(ev event.Event) {
	if ev.Code == event.ABS_MT_SLOT {
		s.active = ev.Value
		return
	}
	grp := s.groupFor(ev.Code)
	if grp == nil || s.active < 0 || int(s.active) >= len(grp) {
		return
	}
	grp[s.active] = ev.Value
}

func (s *Slots) String() string {
	return fmt.Sprintf("Slots{slots: %d, codes: %d, active: %d}", s.slots, s.codes, s.active)
}
