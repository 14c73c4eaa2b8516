package event

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Type is the broad category of an input event (EV_*).
type Type uint16

// Code identifies the key, axis, switch or other object an event concerns.
// Its meaning depends on the event Type.
type Code uint16

// Event types, from linux/input-event-codes.h.
const (
	EV_SYN Type = 0x00
	EV_KEY Type = 0x01
	EV_REL Type = 0x02
	EV_ABS Type = 0x03
	EV_MSC Type = 0x04
	EV_SW  Type = 0x05
	EV_LED Type = 0x11
	EV_SND Type = 0x12
	EV_REP Type = 0x14
	EV_FF  Type = 0x15
	EV_PWR Type = 0x16

	EV_MAX Type = 0x1f
)

// Synchronization codes. Only SYN_REPORT and SYN_DROPPED may legally
// terminate a batch of events.
const (
	SYN_REPORT    Code = 0
	SYN_CONFIG    Code = 1
	SYN_MT_REPORT Code = 2
	SYN_DROPPED   Code = 3
)

// Per-category maximum codes. Bit-set queries and BitSet sizing derive
// from these.
const (
	KEY_MAX Code = 0x2ff
	REL_MAX Code = 0x0f
	ABS_MAX Code = 0x3f
	SW_MAX  Code = 0x10
	LED_MAX Code = 0x0f
	SND_MAX Code = 0x07
)

// Absolute axes the reader cares about by name. Axes below ABS_MT_SLOT
// are plain scalars; ABS_MT_* axes carry one value per multitouch slot.
const (
	ABS_X              Code = 0x00
	ABS_Y              Code = 0x01
	ABS_Z              Code = 0x02
	ABS_MT_SLOT        Code = 0x2f
	ABS_MT_TOUCH_MAJOR Code = 0x30
	ABS_MT_TOUCH_MINOR Code = 0x31
	ABS_MT_POSITION_X  Code = 0x35
	ABS_MT_POSITION_Y  Code = 0x36
	ABS_MT_TRACKING_ID Code = 0x39
	ABS_MT_PRESSURE    Code = 0x3a
)

// Size is the wire size of a single input record: two 64-bit timestamp
// words, type, code and value, packed little-endian on every platform
// this module targets.
const Size = 24

// Event mirrors the kernel struct input_event: the timestamp is a split
// seconds/microseconds pair taken from the clock the device is configured
// with, followed by type, code and a signed 32-bit value.
type Event struct {
	Sec   int64
	Usec  int64
	Type  Type
	Code  Code
	Value int32
}

// New creates an event with a zero timestamp.
func New(t Type, c Code, v int32) Event {
	return Event{Type: t, Code: c, Value: v}
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.Unix(e.Sec, e.Usec*1000)
}

// WithTime returns a copy of the event stamped with the given time,
// truncated to the microsecond resolution the record format carries.
func (e Event) WithTime(t time.Time) Event {
	e.Sec = t.Unix()
	e.Usec = int64(t.Nanosecond() / 1000)
	return e
}

func (e Event) String() string {
	return fmt.Sprintf("%s/0x%02x = %d", e.Type, e.Code, e.Value)
}

func (t Type) String() string {
	switch t {
	case EV_SYN:
		return "EV_SYN"
	case EV_KEY:
		return "EV_KEY"
	case EV_REL:
		return "EV_REL"
	case EV_ABS:
		return "EV_ABS"
	case EV_MSC:
		return "EV_MSC"
	case EV_SW:
		return "EV_SW"
	case EV_LED:
		return "EV_LED"
	case EV_SND:
		return "EV_SND"
	case EV_REP:
		return "EV_REP"
	case EV_FF:
		return "EV_FF"
	default:
		return fmt.Sprintf("EV_0x%02x", uint16(t))
	}
}

// Encode writes the record into b, which must hold at least Size bytes.
func Encode(e Event, b []byte) {
	_ = b[Size-1]
	binary.LittleEndian.PutUint64(b[0:], uint64(e.Sec))
	binary.LittleEndian.PutUint64(b[8:], uint64(e.Usec))
	binary.LittleEndian.PutUint16(b[16:], uint16(e.Type))
	binary.LittleEndian.PutUint16(b[18:], uint16(e.Code))
	binary.LittleEndian.PutUint32(b[20:], uint32(e.Value))
}

// Decode reads one record from b, which must hold at least Size bytes.
func Decode(b []byte) Event {
	_ = b[Size-1]
	return Event{
		Sec:   int64(binary.LittleEndian.Uint64(b[0:])),
		Usec:  int64(binary.LittleEndian.Uint64(b[8:])),
		Type:  Type(binary.LittleEndian.Uint16(b[16:])),
		Code:  Code(binary.LittleEndian.Uint16(b[18:])),
		Value: int32(binary.LittleEndian.Uint32(b[20:])),
	}
}
