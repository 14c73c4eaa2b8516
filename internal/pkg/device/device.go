// Package device is the thin handle over a /dev/input/event* character
// device: open/close, single-ioctl state queries, raw reads and writes of
// fixed-size records, and blocking-mode control. All interpretation of the
// event stream lives in the reader package.
package device

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/evsync/evsync/internal/pkg/bits"
	"github.com/evsync/evsync/internal/pkg/event"
)

// ErrWouldBlock is returned by ReadEvents on a non-blocking handle when
// no records are currently available. It is a distinguished "no data yet"
// signal, not a failure.
var ErrWouldBlock = errors.New("device: no events available")

// AbsInfo describes an absolute axis as reported by the device: its
// current value, range, noise filter and resolution.
type AbsInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

// Handle is an opened event device. It holds a raw file descriptor so
// that non-blocking reads surface EAGAIN directly instead of parking in
// the runtime poller. The state-query ioctls are administrative
// operations and are unaffected by the handle's blocking mode.
type Handle struct {
	fd   int
	path string
}

func Open(path string) (*Handle, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s failed: %w", path, err)
	}
	return &Handle{fd: fd, path: path}, nil
}

func (h *Handle) Close() error {
	return unix.Close(h.fd)
}

func (h *Handle) Path() string {
	return h.path
}

// Fd exposes the raw descriptor, for callers that poll readiness
// externally.
func (h *Handle) Fd() int {
	return h.fd
}

// Name returns the device name reported by the driver.
func (h *Handle) Name() (string, error) {
	var buf [256]byte
	if err := ioctl(h.fd, eviocgname(uintptr(len(buf))), unsafe.Pointer(&buf[0])); err != nil {
		return "", fmt.Errorf("querying device name failed: %w", err)
	}
	return strings.TrimRight(string(buf[:]), "\x00"), nil
}

// Grab claims the device for exclusive use; no other client receives its
// events until Ungrab.
func (h *Handle) Grab() error {
	var one int32 = 1
	return ioctl(h.fd, eviocgrab(), unsafe.Pointer(&one))
}

func (h *Handle) Ungrab() error {
	return ioctl(h.fd, eviocgrab(), nil)
}

func (h *Handle) queryBitmap(req func(uintptr) uintptr, max event.Code) (bits.Set, error) {
	buf := make([]byte, int(max)/8+1)
	if err := ioctl(h.fd, req(uintptr(len(buf))), unsafe.Pointer(&buf[0])); err != nil {
		return bits.Set{}, err
	}
	return bits.FromBytes(max, buf), nil
}

// KeyState returns the set of currently pressed keys and buttons.
func (h *Handle) KeyState() (bits.Set, error) {
	return h.queryBitmap(eviocgkey, event.KEY_MAX)
}

// LedState returns the set of currently lit LEDs.
func (h *Handle) LedState() (bits.Set, error) {
	return h.queryBitmap(eviocgled, event.LED_MAX)
}

// SoundState returns the set of sounds currently requested to play.
func (h *Handle) SoundState() (bits.Set, error) {
	return h.queryBitmap(eviocgsnd, event.SND_MAX)
}

// SwitchState returns the set of currently closed switches.
func (h *Handle) SwitchState() (bits.Set, error) {
	return h.queryBitmap(eviocgsw, event.SW_MAX)
}

// SupportedAbsAxes returns the set of absolute axes the device advertises.
func (h *Handle) SupportedAbsAxes() (bits.Set, error) {
	return h.queryBitmap(func(size uintptr) uintptr {
		return eviocgbit(uintptr(event.EV_ABS), size)
	}, event.ABS_MAX)
}

// AbsInfo queries the current state and range of one absolute axis.
func (h *Handle) AbsInfo(axis event.Code) (AbsInfo, error) {
	var raw absInfoRaw
	if err := ioctl(h.fd, eviocgabs(uintptr(axis)), unsafe.Pointer(&raw)); err != nil {
		return AbsInfo{}, fmt.Errorf("querying axis 0x%02x failed: %w", axis, err)
	}
	return AbsInfo(raw), nil
}

// MTSlotValues bulk-fetches the value of one ABS_MT_* axis for every
// multitouch slot in a single query.
func (h *Handle) MTSlotValues(code event.Code, slots int) ([]int32, error) {
	// The kernel expects the requested code in the first element and
	// overwrites the rest with one value per slot.
	buf := make([]int32, slots+1)
	buf[0] = int32(code)
	size := uintptr(len(buf)) * unsafe.Sizeof(int32(0))
	if err := ioctl(h.fd, eviocgmtslots(size), unsafe.Pointer(&buf[0])); err != nil {
		return nil, fmt.Errorf("querying MT slots for axis 0x%02x failed: %w", code, err)
	}
	return buf[1:], nil
}

// ReadEvents performs one read call, decoding up to len(dst) complete
// records in arrival order. On a non-blocking handle with nothing
// pending it returns ErrWouldBlock.
func (h *Handle) ReadEvents(dst []event.Event) (int, error) {
	buf := make([]byte, len(dst)*event.Size)
	var n int
	for {
		var err error
		n, err = unix.Read(h.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, ErrWouldBlock
		}
		if err != nil {
			return 0, fmt.Errorf("reading events failed: %w", err)
		}
		break
	}
	if n%event.Size != 0 {
		return 0, fmt.Errorf("short read: %d bytes is not a whole number of records", n)
	}
	count := n / event.Size
	for i := 0; i < count; i++ {
		dst[i] = event.Decode(buf[i*event.Size:])
	}
	return count, nil
}

// WriteEvents writes the records in one call, preserving order.
func (h *Handle) WriteEvents(events []event.Event) error {
	buf := make([]byte, len(events)*event.Size)
	for i, ev := range events {
		event.Encode(ev, buf[i*event.Size:])
	}
	if _, err := unix.Write(h.fd, buf); err != nil {
		return fmt.Errorf("writing events failed: %w", err)
	}
	return nil
}

// SetNonblock switches the handle's blocking mode and returns the
// previous mode.
func (h *Handle) SetNonblock(enable bool) (bool, error) {
	prev, err := h.Nonblock()
	if err != nil {
		return false, err
	}
	if prev == enable {
		return prev, nil
	}
	if err := unix.SetNonblock(h.fd, enable); err != nil {
		return prev, fmt.Errorf("switching blocking mode failed: %w", err)
	}
	return prev, nil
}

// Nonblock reports whether the handle is currently in non-blocking mode.
func (h *Handle) Nonblock() (bool, error) {
	flags, err := unix.FcntlInt(uintptr(h.fd), unix.F_GETFL, 0)
	if err != nil {
		return false, fmt.Errorf("querying file flags failed: %w", err)
	}
	return flags&unix.O_NONBLOCK != 0, nil
}

// Readable reports whether a read would return data right now, without
// blocking.
func (h *Handle) Readable() (bool, error) {
	fds := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}
