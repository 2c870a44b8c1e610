//go:build linux || darwin

package arena

import "golang.org/x/sys/unix"

// reservation is the unix mmap-backed implementation: reserve maps the full
// ceiling PROT_NONE up front (matching original/include/arena.h's
// ant_arena_reserve), commit/decommit toggle PROT_READ|PROT_WRITE (and
// MADV_DONTNEED on decommit, returning the pages to the OS) over sub-ranges,
// mirroring ant_arena_commit/ant_arena_decommit.
type reservation struct {
	mem []byte
}

func reserve(maxSize uint64) (reservation, error) {
	mem, err := unix.Mmap(-1, 0, int(maxSize), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return reservation{}, err
	}
	return reservation{mem: mem}, nil
}

func (r reservation) bytes() []byte { return r.mem }

func (r reservation) commit(oldSize, newSize uint64) error {
	if newSize <= oldSize {
		return nil
	}
	return unix.Mprotect(r.mem[oldSize:newSize], unix.PROT_READ|unix.PROT_WRITE)
}

func (r reservation) decommit(newSize, oldSize uint64) error {
	if newSize >= oldSize {
		return nil
	}
	region := r.mem[newSize:oldSize]
	if err := unix.Madvise(region, unix.MADV_DONTNEED); err != nil {
		return err
	}
	return unix.Mprotect(region, unix.PROT_NONE)
}

func (r reservation) protect(upTo uint64) error {
	if upTo == 0 {
		return nil
	}
	return unix.Mprotect(r.mem[:upTo], unix.PROT_READ)
}

func (r reservation) release() error {
	if r.mem == nil {
		return nil
	}
	return unix.Munmap(r.mem)
}
