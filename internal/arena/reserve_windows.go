//go:build windows

package arena

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// reservation mirrors original/include/arena.h's VirtualAlloc-based path:
// reserve with MEM_RESERVE/PAGE_NOACCESS, commit/decommit toggle
// MEM_COMMIT/MEM_DECOMMIT over sub-ranges of the reservation.
type reservation struct {
	base uintptr
	size uint64
}

func reserve(maxSize uint64) (reservation, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(maxSize), windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return reservation{}, err
	}
	return reservation{base: addr, size: maxSize}, nil
}

func (r reservation) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r.base)), r.size)
}

func (r reservation) commit(oldSize, newSize uint64) error {
	if newSize <= oldSize {
		return nil
	}
	_, err := windows.VirtualAlloc(r.base+uintptr(oldSize), uintptr(newSize-oldSize), windows.MEM_COMMIT, windows.PAGE_READWRITE)
	return err
}

func (r reservation) decommit(newSize, oldSize uint64) error {
	if newSize >= oldSize {
		return nil
	}
	return windows.VirtualFree(r.base+uintptr(newSize), uintptr(oldSize-newSize), windows.MEM_DECOMMIT)
}

func (r reservation) protect(upTo uint64) error {
	if upTo == 0 {
		return nil
	}
	var old uint32
	return windows.VirtualProtect(r.base, uintptr(upTo), windows.PAGE_READONLY, &old)
}

func (r reservation) release() error {
	if r.base == 0 {
		return nil
	}
	return windows.VirtualFree(r.base, 0, windows.MEM_RELEASE)
}
