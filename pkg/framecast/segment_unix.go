//go:build unix

package framecast

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// wordFileSize is the size of the files backing the mutex and event words.
const wordFileSize = 4

// defaultPerm lets processes of other users attach; umask still applies.
const defaultPerm os.FileMode = 0o666

// segment is one named, memory-mapped file.
type segment struct {
	path string
	file *os.File
	mem  []byte
}

// mapFile maps size bytes of f shared and read-write.
func mapFile(path string, f *os.File, size int) (*segment, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &segment{path: path, file: f, mem: mem}, nil
}

// createWord replaces any leftover file at path with a fresh zeroed word.
// Only the channel owner calls this, so nothing live can be using the old one.
func createWord(path string, perm os.FileMode) (*segment, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if err := f.Truncate(wordFileSize); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("size %s: %w", path, err)
	}
	seg, err := mapFile(path, f, wordFileSize)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return seg, nil
}

// openWord attaches to an existing word file.
func openWord(path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil || st.Size() < wordFileSize {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	seg, err := mapFile(path, f, wordFileSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	return seg, nil
}

// claimRegion creates the region file at path and takes the exclusive owner
// lock on it. A live owner makes the lock fail with EWOULDBLOCK, which is
// reported as ErrAlreadyExists. A non-empty unlocked file was left by a dead
// owner; it is unlinked rather than reused because its old clients may still
// have it mapped.
func claimRegion(path string, size int, perm os.FileMode) (*segment, error) {
	const op = "create"
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, perm)
		if err != nil {
			return nil, newError(CodeResourceExhausted, op, "cannot open region", err)
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				return nil, newError(CodeAlreadyExists, op, ErrAlreadyExists.Message, nil)
			}
			return nil, newError(CodeResourceExhausted, op, "cannot lock region", err)
		}

		// The file may have been unlinked and replaced between open and flock.
		same, empty, err := checkClaim(path, f)
		if err != nil || !same {
			f.Close()
			continue
		}
		if !empty {
			os.Remove(path)
			f.Close()
			continue
		}

		if err := f.Truncate(int64(size)); err != nil {
			os.Remove(path)
			f.Close()
			return nil, newError(CodeResourceExhausted, op, "cannot size region", err)
		}
		seg, err := mapFile(path, f, size)
		if err != nil {
			os.Remove(path)
			f.Close()
			return nil, newError(CodeResourceExhausted, op, "cannot map region", err)
		}
		return seg, nil
	}
	return nil, newError(CodeAlreadyExists, op, "region changed hands while claiming it", nil)
}

func checkClaim(path string, f *os.File) (same, empty bool, err error) {
	held, err := f.Stat()
	if err != nil {
		return false, false, err
	}
	named, err := os.Stat(path)
	if err != nil {
		return false, false, err
	}
	return os.SameFile(held, named), held.Size() == 0, nil
}

// openRegion maps an existing region read-write. The returned segment covers
// the whole file as sized by its owner.
func openRegion(path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() < HeaderSize {
		f.Close()
		return nil, fmt.Errorf("%s: region not initialized: %w", path, os.ErrNotExist)
	}
	seg, err := mapFile(path, f, int(st.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}
	return seg, nil
}

// ownerAlive reports whether some process holds the owner lock on the
// region. It briefly takes a shared lock, so it must never be called by the
// owner itself.
func (s *segment) ownerAlive() bool {
	fd := int(s.file.Fd())
	if err := unix.Flock(fd, unix.LOCK_SH|unix.LOCK_NB); err != nil {
		return errors.Is(err, unix.EWOULDBLOCK)
	}
	_ = unix.Flock(fd, unix.LOCK_UN)
	return false
}

// word returns the first 32-bit word of the mapping.
func (s *segment) word() *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[0]))
}

// close unmaps and closes. Closing the file drops any flock held on it.
func (s *segment) close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil {
			errs = append(errs, fmt.Errorf("munmap %s: %w", s.path, err))
		}
		s.mem = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, err)
		}
		s.file = nil
	}
	return errors.Join(errs...)
}

// unlink removes the name; existing mappings stay valid.
func (s *segment) unlink() error {
	if s == nil {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
