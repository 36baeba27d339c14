package sfdb

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrCorrupted             = errors.New("data file corrupted")
	ErrDuplicateKey          = errors.New("duplicate key in unique index")
	ErrIndexKeyTooLong       = errors.New("index key too long")
	ErrInvalidIndexKey       = errors.New("MinValue and MaxValue cannot be used as index keys")
	ErrInvalidString         = errors.New("string is not valid UTF-8")
	ErrLockTimeout           = errors.New("lock timeout")
	ErrReadOnly              = errors.New("database is read-only")
	ErrEmptyConnectionString = errors.New("connection string is empty")
	ErrNotFound              = errors.New("not found")
	ErrFileSizeLimit         = errors.New("file size limit reached")
	ErrUpgradeRequired       = errors.New("data file uses an older format, open with upgrade=true")
	ErrClosed                = errors.New("database is closed")
)

// DataError reports a malformed byte sequence met by the codec.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

// CorruptionError is returned when a page address does not resolve to a live
// node or document. It always wraps ErrCorrupted.
type CorruptionError struct {
	Addr PageAddress
	What string
}

func (e *CorruptionError) Unwrap() error {
	return ErrCorrupted
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%v: no %s at %v", ErrCorrupted, e.What, e.Addr)
}

type IndexError struct {
	Collection string
	Index      string
	Key        Value
	Msg        string
	Err        error
}

func indexErrf(col, idx string, key Value, err error, format string, args ...any) error {
	return &IndexError{col, idx, key, fmt.Sprintf(format, args...), err}
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func (e *IndexError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Collection)
	if e.Index != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Index)
	}
	if !e.Key.IsZero() {
		buf.WriteByte('/')
		buf.WriteString(e.Key.String())
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

type LockTimeoutError struct {
	State   LockState
	Timeout time.Duration
}

func (e *LockTimeoutError) Unwrap() error {
	return ErrLockTimeout
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("%v: could not enter %v mode within %v", ErrLockTimeout, e.State, e.Timeout)
}
