package device

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux ioctl request encoding (asm-generic/ioctl.h).
const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func ioR(typ, nr, size uintptr) uintptr {
	return ioc(iocRead, typ, nr, size)
}

func ioW(typ, nr, size uintptr) uintptr {
	return ioc(iocWrite, typ, nr, size)
}

// evdev ioctl requests (linux/input.h). 'E' is the evdev ioctl type.
const evIoctlType = 'E'

func eviocgname(size uintptr) uintptr    { return ioR(evIoctlType, 0x06, size) }
func eviocgmtslots(size uintptr) uintptr { return ioR(evIoctlType, 0x0a, size) }
func eviocgkey(size uintptr) uintptr     { return ioR(evIoctlType, 0x18, size) }
func eviocgled(size uintptr) uintptr     { return ioR(evIoctlType, 0x19, size) }
func eviocgsnd(size uintptr) uintptr     { return ioR(evIoctlType, 0x1a, size) }
func eviocgsw(size uintptr) uintptr      { return ioR(evIoctlType, 0x1b, size) }

func eviocgbit(ev, size uintptr) uintptr { return ioR(evIoctlType, 0x20+ev, size) }
func eviocgabs(abs uintptr) uintptr      { return ioR(evIoctlType, 0x40+abs, unsafe.Sizeof(absInfoRaw{})) }

func eviocgrab() uintptr { return ioW(evIoctlType, 0x90, unsafe.Sizeof(int32(0))) }

// absInfoRaw mirrors struct input_absinfo.
type absInfoRaw struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

func ioctl(fd int, req uintptr, ptr unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(ptr))
	if errno != 0 {
		return errno
	}
	return nil
}
