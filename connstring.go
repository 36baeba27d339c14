package sfdb

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// FileMode controls how a data file is shared between processes.
type FileMode int

const (
	// ModeExclusive keeps the file locked by this process while it is open.
	ModeExclusive FileMode = iota
	// ModeShared lets several processes use the file, locking it per
	// operation.
	ModeShared
	// ModeReadOnly opens the file for reading only.
	ModeReadOnly
)

func (m FileMode) String() string {
	switch m {
	case ModeExclusive:
		return "Exclusive"
	case ModeShared:
		return "Shared"
	case ModeReadOnly:
		return "ReadOnly"
	default:
		return fmt.Sprintf("FileMode(%d)", int(m))
	}
}

// MemoryFilename opens a transient in-memory database.
const MemoryFilename = ":memory:"

// ConnectionString holds the options of a database, parsed from
// "key1=value1;key2=value2" or a bare filename.
type ConnectionString struct {
	Filename    string
	Journal     bool
	Password    string
	CacheSize   int
	Timeout     time.Duration
	Mode        FileMode
	InitialSize int64
	LimitSize   int64
	Log         LogLevel
	UTC         bool
	Upgrade     bool
}

func DefaultConnectionString() *ConnectionString {
	return &ConnectionString{
		Journal:   true,
		CacheSize: 5000,
		Timeout:   time.Minute,
		Mode:      ModeExclusive,
		LimitSize: math.MaxInt64,
	}
}

// ParseConnectionString parses s. Keys are case-insensitive and unknown keys
// are ignored; absent keys keep their defaults.
func ParseConnectionString(s string) (*ConnectionString, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyConnectionString
	}
	cs := DefaultConnectionString()
	if !strings.Contains(s, "=") {
		cs.Filename = s
		return cs, nil
	}

	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := splitByte(part, '=')
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "filename":
			cs.Filename = value
		case "journal":
			cs.Journal, err = strconv.ParseBool(value)
		case "password":
			cs.Password = value
		case "cache size":
			cs.CacheSize, err = strconv.Atoi(value)
			if err == nil && cs.CacheSize < 0 {
				err = fmt.Errorf("must not be negative")
			}
		case "timeout":
			cs.Timeout, err = parseTimeout(value)
		case "mode":
			cs.Mode, err = parseFileMode(value)
		case "initial size":
			cs.InitialSize, err = parseSize(value)
		case "limit size":
			cs.LimitSize, err = parseSize(value)
		case "log":
			var v uint64
			v, err = strconv.ParseUint(value, 10, 8)
			cs.Log = LogLevel(v)
		case "utc":
			cs.UTC, err = strconv.ParseBool(value)
		case "upgrade":
			cs.Upgrade, err = strconv.ParseBool(value)
		}
		if err != nil {
			return nil, fmt.Errorf("connection string: invalid %s %q: %w", key, value, err)
		}
	}
	return cs, nil
}

func (cs *ConnectionString) IsMemory() bool {
	return cs.Filename == MemoryFilename
}

func (cs *ConnectionString) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "filename=%s;journal=%v;cache size=%d;timeout=%v;mode=%v", cs.Filename, cs.Journal, cs.CacheSize, cs.Timeout, cs.Mode)
	if cs.InitialSize > 0 {
		fmt.Fprintf(&buf, ";initial size=%s", formatSize(cs.InitialSize))
	}
	if cs.LimitSize < math.MaxInt64 {
		fmt.Fprintf(&buf, ";limit size=%s", formatSize(cs.LimitSize))
	}
	if cs.Password != "" {
		buf.WriteString(";password=***")
	}
	fmt.Fprintf(&buf, ";log=%d;utc=%v;upgrade=%v", uint8(cs.Log), cs.UTC, cs.Upgrade)
	return buf.String()
}

func parseFileMode(s string) (FileMode, error) {
	switch strings.ToLower(s) {
	case "exclusive":
		return ModeExclusive, nil
	case "shared":
		return ModeShared, nil
	case "readonly":
		return ModeReadOnly, nil
	default:
		return 0, fmt.Errorf("unknown mode")
	}
}

// parseTimeout accepts whole seconds, a Go duration ("90s", "1m30s") or
// hh:mm:ss.
func parseTimeout(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("must not be negative")
		}
		return time.Duration(n) * time.Second, nil
	}
	if h, rest, ok := splitByte(s, ':'); ok {
		m, sec, ok := splitByte(rest, ':')
		if !ok {
			return 0, fmt.Errorf("expected hh:mm:ss")
		}
		hh, err1 := strconv.Atoi(h)
		mm, err2 := strconv.Atoi(m)
		ss, err3 := strconv.ParseFloat(sec, 64)
		if err1 != nil || err2 != nil || err3 != nil || hh < 0 || mm < 0 || mm > 59 || ss < 0 || ss >= 60 {
			return 0, fmt.Errorf("expected hh:mm:ss")
		}
		return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute + time.Duration(ss*float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

// parseSize parses a byte size. KB, MB, GB and TB (or K, M, G, T) are powers
// of 1024, so "10MB" is 10485760.
func parseSize(s string) (int64, error) {
	t := strings.TrimSpace(s)
	u := strings.TrimSuffix(strings.ToUpper(t), "B")
	if n := len(u); n > 0 && strings.IndexByte("KMGT", u[n-1]) >= 0 {
		t = u + "iB"
	}
	v, err := humanize.ParseBytes(t)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("too large")
	}
	return int64(v), nil
}

func formatSize(n int64) string {
	return humanize.IBytes(uint64(n))
}
