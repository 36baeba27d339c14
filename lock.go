package sfdb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"
)

// LockState is the lock a process holds on the data file.
type LockState int

const (
	Unlocked LockState = iota
	LockRead
	LockWrite
)

func (s LockState) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case LockRead:
		return "read"
	case LockWrite:
		return "write"
	default:
		return fmt.Sprintf("LockState(%d)", int(s))
	}
}

// maxReaders is the semaphore weight of a writer.
const maxReaders = 1 << 30

const lockPollInterval = 5 * time.Millisecond

// Lock file header: magic, write generation, xxhash64 of the preceding bytes.
const (
	lockMagic      = "SFDBLOCK"
	lockHeaderSize = 24
)

// Locker arbitrates access to a data file. Within the process, any number of
// readers or a single writer hold the lock at a time. In shared mode, the
// process additionally holds flock(2) on a lock file next to the data file:
// shared while reading, exclusive while writing.
//
// Every write that changed data bumps a generation counter stored in the
// lock file, which is how other processes notice the change.
type Locker struct {
	mode    FileMode
	timeout time.Duration
	path    string
	log     *Logger
	sem     *semaphore.Weighted

	// Acquired is called when the process moves from Unlocked to state, after
	// the file lock is taken.
	Acquired func(state LockState) error

	// Released is called before the process returns to Unlocked.
	Released func(state LockState) error

	// Invalidate is called before Enter returns a LockControl with Changed set.
	Invalidate func()

	mu      sync.Mutex
	readers int
	writer  bool
	written bool
	file    *os.File
	gen     uint64
	seen    bool
}

// NewLocker returns a locker for the given mode. path is the lock file and is
// only used in shared mode.
func NewLocker(mode FileMode, path string, timeout time.Duration, log *Logger) *Locker {
	if mode != ModeShared {
		path = ""
	}
	return &Locker{
		mode:    mode,
		timeout: timeout,
		path:    path,
		log:     log,
		sem:     semaphore.NewWeighted(maxReaders),
	}
}

// LockControl is held while a lock is entered. Release it on every path.
type LockControl struct {
	// Changed is true when another process wrote to the file since this
	// process last held a lock, so cached pages are stale.
	Changed bool

	l        *Locker
	state    LockState
	released bool
}

func (lc *LockControl) State() LockState {
	return lc.state
}

// MarkWritten records that data was modified under this write lock, so that
// releasing it bumps the write generation.
func (lc *LockControl) MarkWritten() {
	if lc.state != LockWrite || lc.released {
		return
	}
	lc.l.mu.Lock()
	lc.l.written = true
	lc.l.mu.Unlock()
}

// Release exits the lock. Calling it again is a no-op.
func (lc *LockControl) Release() error {
	if lc.released {
		return nil
	}
	lc.released = true
	return lc.l.release(lc.state)
}

// State returns the lock currently held by the process.
func (l *Locker) State() LockState {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.writer:
		return LockWrite
	case l.readers > 0:
		return LockRead
	default:
		return Unlocked
	}
}

func weight(state LockState) int64 {
	if state == LockWrite {
		return maxReaders
	}
	return 1
}

// Enter waits up to the configured timeout for state to become available.
func (l *Locker) Enter(state LockState) (*LockControl, error) {
	if state != LockRead && state != LockWrite {
		panic(fmt.Errorf("sfdb: cannot enter %v", state))
	}
	if state == LockWrite && l.mode == ModeReadOnly {
		return nil, ErrReadOnly
	}

	var ctx context.Context
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if err := l.sem.Acquire(ctx, weight(state)); err != nil {
			l.log.Write(LogLock, "timeout entering %v after %v", state, l.timeout)
			return nil, &LockTimeoutError{State: state, Timeout: l.timeout}
		}
	} else {
		ctx = context.Background()
		if !l.sem.TryAcquire(weight(state)) {
			return nil, &LockTimeoutError{State: state, Timeout: l.timeout}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// another reader may have held mu while polling the lock file
	if ctx.Err() != nil {
		l.sem.Release(weight(state))
		l.log.Write(LogLock, "timeout entering %v after %v", state, l.timeout)
		return nil, &LockTimeoutError{State: state, Timeout: l.timeout}
	}

	lc := &LockControl{l: l, state: state}
	if state == LockRead && l.readers > 0 {
		l.readers++
		return lc, nil
	}

	changed, err := l.lockFile(ctx, state)
	if err != nil {
		l.sem.Release(weight(state))
		return nil, err
	}
	if changed {
		l.log.Write(LogLock, "data file changed by another process, generation %d", l.gen)
		if l.Invalidate != nil {
			l.Invalidate()
		}
	}
	if l.Acquired != nil {
		if err := l.Acquired(state); err != nil {
			l.unlockFile()
			l.sem.Release(weight(state))
			return nil, err
		}
	}
	if state == LockRead {
		l.readers = 1
	} else {
		l.writer = true
		l.written = false
	}
	l.log.Write(LogLock, "entered %v", state)
	lc.Changed = changed
	return lc, nil
}

// drain waits up to the timeout for every in-process holder to leave, then
// keeps new ones out until undrain. The lock file is not touched.
func (l *Locker) drain() error {
	w := weight(LockWrite)
	if l.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if err := l.sem.Acquire(ctx, w); err != nil {
			return &LockTimeoutError{State: LockWrite, Timeout: l.timeout}
		}
	} else if !l.sem.TryAcquire(w) {
		return &LockTimeoutError{State: LockWrite, Timeout: l.timeout}
	}
	return nil
}

func (l *Locker) undrain() {
	l.sem.Release(weight(LockWrite))
}

func (l *Locker) release(state LockState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.sem.Release(weight(state))

	if state == LockRead {
		l.readers--
		if l.readers > 0 {
			return nil
		}
	}

	var err error
	if l.Released != nil {
		err = l.Released(state)
	}
	if state == LockWrite {
		if l.written && l.file != nil {
			l.gen++
			if werr := writeLockHeader(l.file, l.gen); werr != nil {
				err = errors.Join(err, werr)
			}
		}
		l.writer = false
		l.written = false
	}
	if uerr := l.unlockFile(); uerr != nil {
		err = errors.Join(err, uerr)
	}
	l.log.Write(LogLock, "exited %v", state)
	return err
}

// lockFile takes the OS lock and reports whether the write generation moved
// since the previous lock.
func (l *Locker) lockFile(ctx context.Context, state LockState) (bool, error) {
	if l.path == "" {
		return false, nil
	}
	if l.file == nil {
		f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o666)
		if err != nil {
			return false, err
		}
		l.file = f
	}
	for {
		ok, err := flockTry(l.file, state == LockWrite)
		if err != nil {
			return false, fmt.Errorf("lock %s: %w", l.path, err)
		}
		if ok {
			break
		}
		if _, wait := ctx.Deadline(); !wait {
			return false, &LockTimeoutError{State: state, Timeout: l.timeout}
		}
		select {
		case <-ctx.Done():
			l.log.Write(LogLock, "timeout waiting for %v lock on %s", state, l.path)
			return false, &LockTimeoutError{State: state, Timeout: l.timeout}
		case <-time.After(lockPollInterval):
		}
	}

	gen, valid, err := readLockHeader(l.file)
	if err != nil {
		funlock(l.file)
		return false, fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !valid {
		l.log.Write(LogLock, "invalid lock file header in %s", l.path)
		return l.seen, nil
	}
	changed := l.seen && gen != l.gen
	l.gen, l.seen = gen, true
	return changed, nil
}

func (l *Locker) unlockFile() error {
	if l.file == nil {
		return nil
	}
	return funlock(l.file)
}

// Close closes the lock file.
func (l *Locker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// readLockHeader returns the write generation recorded in f. An empty file
// is generation zero.
func readLockHeader(f *os.File) (gen uint64, valid bool, err error) {
	var buf [lockHeaderSize]byte
	n, err := f.ReadAt(buf[:], 0)
	if err != nil && err != io.EOF {
		return 0, false, err
	}
	if n == 0 {
		return 0, true, nil
	}
	if n < lockHeaderSize || string(buf[:8]) != lockMagic {
		return 0, false, nil
	}
	if xxhash.Sum64(buf[:16]) != binary.LittleEndian.Uint64(buf[16:]) {
		return 0, false, nil
	}
	return binary.LittleEndian.Uint64(buf[8:]), true, nil
}

func writeLockHeader(f *os.File, gen uint64) error {
	var buf [lockHeaderSize]byte
	copy(buf[:], lockMagic)
	binary.LittleEndian.PutUint64(buf[8:], gen)
	binary.LittleEndian.PutUint64(buf[16:], xxhash.Sum64(buf[:16]))
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		return err
	}
	return f.Sync()
}
