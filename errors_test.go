package sfdb

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestDataError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) {
			t.Fatalf("errors.Is(err, inner) = false, wanted true")
		}
		s := err.Error()
		if !strings.Contains(s, "oops") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2)") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2)", s)
		}
	})

	t.Run("large data includes prefix+suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		err := dataErrf(data, 0, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})
}

func TestIndexError_ErrorAndUnwrap(t *testing.T) {
	err := indexErrf("users", "email", String("a@b"), ErrDuplicateKey, "oops %d", 1)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("errors.Is(err, ErrDuplicateKey) = false, wanted true")
	}
	s := err.Error()
	if !strings.Contains(s, "users.email") || !strings.Contains(s, `"a@b"`) || !strings.Contains(s, "oops 1") || !strings.Contains(s, ErrDuplicateKey.Error()) {
		t.Fatalf("err.Error() = %q, wanted collection/index/key/msg/inner", s)
	}

	s = (&IndexError{Collection: "T", Err: io.EOF}).Error()
	if s != "T: EOF" {
		t.Fatalf("IndexError.Error() = %q, wanted %q", s, "T: EOF")
	}
}

func TestCorruptionError(t *testing.T) {
	err := error(&CorruptionError{Addr: PageAddress{3, 7}, What: "index node"})
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("errors.Is(err, ErrCorrupted) = false, wanted true")
	}
	if s := err.Error(); !strings.Contains(s, "3:7") || !strings.Contains(s, "index node") {
		t.Fatalf("err.Error() = %q, wanted address and kind", s)
	}
}

func TestLockTimeoutError(t *testing.T) {
	err := error(&LockTimeoutError{State: LockWrite, Timeout: 2 * time.Second})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("errors.Is(err, ErrLockTimeout) = false, wanted true")
	}
	if s := err.Error(); !strings.Contains(s, "write") || !strings.Contains(s, "2s") {
		t.Fatalf("err.Error() = %q, wanted state and timeout", s)
	}
}
