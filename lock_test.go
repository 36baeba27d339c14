package sfdb

import (
	"errors"
	"testing"
	"time"
)

func TestLocker_Readers(t *testing.T) {
	l := NewLocker(ModeExclusive, "", time.Second, nil)
	var acquired, released []LockState
	l.Acquired = func(s LockState) error { acquired = append(acquired, s); return nil }
	l.Released = func(s LockState) error { released = append(released, s); return nil }

	r1 := must(l.Enter(LockRead))
	r2 := must(l.Enter(LockRead))
	deepEqual(t, l.State(), LockRead)
	deepEqual(t, r2.State(), LockRead)

	ensure(r1.Release())
	ensure(r1.Release())
	deepEqual(t, l.State(), LockRead)
	ensure(r2.Release())
	deepEqual(t, l.State(), Unlocked)

	w := must(l.Enter(LockWrite))
	deepEqual(t, l.State(), LockWrite)
	ensure(w.Release())
	deepEqual(t, l.State(), Unlocked)

	deepEqual(t, acquired, []LockState{LockRead, LockWrite})
	deepEqual(t, released, []LockState{LockRead, LockWrite})
}

func TestLocker_Timeout(t *testing.T) {
	l := NewLocker(ModeExclusive, "", 20*time.Millisecond, nil)
	r := must(l.Enter(LockRead))

	start := time.Now()
	_, err := l.Enter(LockWrite)
	var lte *LockTimeoutError
	if !errors.As(err, &lte) || !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("err = %v, wanted *LockTimeoutError", err)
	}
	deepEqual(t, lte.State, LockWrite)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("gave up after %v", elapsed)
	}

	ensure(r.Release())
	w := must(l.Enter(LockWrite))
	if _, err := l.Enter(LockRead); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("err = %v, wanted ErrLockTimeout", err)
	}
	ensure(w.Release())
}

func TestLocker_TimeoutCoversFileLockWait(t *testing.T) {
	l := NewLocker(ModeExclusive, "", 20*time.Millisecond, nil)

	// stands in for a concurrent reader polling the lock file
	l.mu.Lock()
	done := make(chan error, 1)
	go func() {
		lc, err := l.Enter(LockRead)
		if err == nil {
			lc.Release()
		}
		done <- err
	}()
	time.Sleep(60 * time.Millisecond)
	l.mu.Unlock()

	if err := <-done; !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("err = %v, wanted ErrLockTimeout", err)
	}
	deepEqual(t, l.State(), Unlocked)
	ensure(must(l.Enter(LockWrite)).Release())
}

func TestLocker_ZeroTimeout(t *testing.T) {
	l := NewLocker(ModeExclusive, "", 0, nil)
	w := must(l.Enter(LockWrite))
	if _, err := l.Enter(LockWrite); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("err = %v, wanted ErrLockTimeout", err)
	}
	ensure(w.Release())
	ensure(must(l.Enter(LockRead)).Release())
}

func TestLocker_ReadOnly(t *testing.T) {
	l := NewLocker(ModeReadOnly, "", time.Second, nil)
	if _, err := l.Enter(LockWrite); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("err = %v, wanted ErrReadOnly", err)
	}
	r := must(l.Enter(LockRead))
	deepEqual(t, r.Changed, false)
	ensure(r.Release())
}

func TestLocker_AcquiredFails(t *testing.T) {
	l := NewLocker(ModeExclusive, "", time.Second, nil)
	boom := errors.New("boom")
	l.Acquired = func(LockState) error { return boom }
	if _, err := l.Enter(LockWrite); !errors.Is(err, boom) {
		t.Fatalf("err = %v, wanted boom", err)
	}
	deepEqual(t, l.State(), Unlocked)

	l.Acquired = nil
	ensure(must(l.Enter(LockWrite)).Release())
}

func TestLocker_EnterUnlocked(t *testing.T) {
	l := NewLocker(ModeExclusive, "", time.Second, nil)
	assertPanics(t, "cannot enter", func() { l.Enter(Unlocked) })
}
