//go:build linux

package hosttap

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/keyfence/keyfence/internal/keycode"
)

// uinput ioctl numbers and struct layout, from linux/uinput.h. The
// teacher already depends on golang.org/x/sys (aoa.go's USB control
// transfers); this reuses it for the ioctl surface instead of adding a
// cgo-based uinput binding.
const (
	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502

	evKey = 0x01
	evSyn = 0x00
	synReport = 0
)

const uinputMaxNameSize = 80

type uinputUserDev struct {
	Name       [uinputMaxNameSize]byte
	ID         inputID
	EffectsMax uint32
	AbsMax     [64]int32
	AbsMin     [64]int32
	AbsFuzz    [64]int32
	AbsFlat    [64]int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// uinputKeyboard is a virtual keyboard device the Host Stream Tap
// re-injects "pass" decisions onto, since Linux provides no return-value
// based pass/drop hook on the real event-tap dispatch point.
type uinputKeyboard struct {
	f *os.File
}

func newUinputKeyboard() (*uinputKeyboard, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|os.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}

	if err := ioctl(f, uiSetEvBit, evKey); err != nil {
		f.Close()
		return nil, fmt.Errorf("UI_SET_EVBIT EV_KEY: %w", err)
	}

	for code := uint32(0); code < 256; code++ {
		if err := ioctl(f, uiSetKeyBit, code); err != nil {
			f.Close()
			return nil, fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:], "keyfence-passthrough")
	dev.ID = inputID{Bustype: 0x06 /* BUS_VIRTUAL */, Vendor: 0x1, Product: 0x1, Version: 1}

	if err := writeStruct(f, &dev); err != nil {
		f.Close()
		return nil, fmt.Errorf("write uinput_user_dev: %w", err)
	}

	if err := ioctl(f, uiDevCreate, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("UI_DEV_CREATE: %w", err)
	}

	return &uinputKeyboard{f: f}, nil
}

// Emit writes a key event followed by a SYN_REPORT, mirroring how a real
// keyboard reports one transition per report. code is translated through
// keycode.LinuxKeyCode first: the internal key code space is not the
// Linux KEY_* space uinput expects.
func (u *uinputKeyboard) Emit(code keycode.Code, dir keycode.Direction) {
	value := int32(0)
	if dir == keycode.Down {
		value = 1
	}
	_ = writeEvent(u.f, evKey, keycode.LinuxKeyCode(code), value)
	_ = writeEvent(u.f, evSyn, synReport, 0)
}

func (u *uinputKeyboard) Close() error {
	_ = ioctl(u.f, uiDevDestroy, 0)
	return u.f.Close()
}

func ioctl(f *os.File, req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func writeStruct(f *os.File, v *uinputUserDev) error {
	buf := (*[unsafe.Sizeof(uinputUserDev{})]byte)(unsafe.Pointer(v))[:]
	_, err := f.Write(buf)
	return err
}

func writeEvent(f *os.File, typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	buf := (*[unsafe.Sizeof(inputEvent{})]byte)(unsafe.Pointer(&ev))[:]
	_, err := f.Write(buf)
	return err
}
