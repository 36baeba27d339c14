package sfdb

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseConnectionString_Filename(t *testing.T) {
	cs := must(ParseConnectionString("  data/app.db "))
	want := DefaultConnectionString()
	want.Filename = "data/app.db"
	deepEqual(t, cs, want)

	deepEqual(t, must(ParseConnectionString(":memory:")).IsMemory(), true)
	deepEqual(t, must(ParseConnectionString("filename=:memory:")).IsMemory(), true)
}

func TestParseConnectionString_Keys(t *testing.T) {
	cs := must(ParseConnectionString("Filename=app.db; journal=false;password=s3cret;cache size=10;timeout=90;mode=Shared;initial size=1KB;limit size=10MB;log=12;utc=true;upgrade=true;color=blue"))
	deepEqual(t, cs, &ConnectionString{
		Filename:    "app.db",
		Journal:     false,
		Password:    "s3cret",
		CacheSize:   10,
		Timeout:     90 * time.Second,
		Mode:        ModeShared,
		InitialSize: 1024,
		LimitSize:   10485760,
		Log:         LogCommand | LogLock,
		UTC:         true,
		Upgrade:     true,
	})
	deepEqual(t, cs.Log.String(), "command|lock")
}

func TestParseConnectionString_Defaults(t *testing.T) {
	cs := must(ParseConnectionString("filename=app.db"))
	deepEqual(t, cs.Journal, true)
	deepEqual(t, cs.CacheSize, 5000)
	deepEqual(t, cs.Timeout, time.Minute)
	deepEqual(t, cs.Mode, ModeExclusive)
	deepEqual(t, cs.LimitSize, int64(math.MaxInt64))
	deepEqual(t, cs.InitialSize, int64(0))
	deepEqual(t, cs.Log, LogLevel(0))
}

func TestParseConnectionString_Empty(t *testing.T) {
	for _, s := range []string{"", "   "} {
		if _, err := ParseConnectionString(s); !errors.Is(err, ErrEmptyConnectionString) {
			t.Errorf("%q: err = %v, wanted ErrEmptyConnectionString", s, err)
		}
	}
}

func TestParseConnectionString_Invalid(t *testing.T) {
	for _, s := range []string{
		"filename=a;journal=maybe",
		"filename=a;cache size=-1",
		"filename=a;cache size=lots",
		"filename=a;mode=weird",
		"filename=a;limit size=abc",
		"filename=a;timeout=-5",
		"filename=a;timeout=1:70:00",
		"filename=a;timeout=soon",
		"filename=a;log=256",
		"filename=a;utc=2",
	} {
		if _, err := ParseConnectionString(s); err == nil {
			t.Errorf("%q: succeeded, wanted error", s)
		}
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		s    string
		want time.Duration
	}{
		{"0", 0},
		{"90", 90 * time.Second},
		{"1m30s", 90 * time.Second},
		{"00:01:30", 90 * time.Second},
		{"2:00:00.5", 2*time.Hour + 500*time.Millisecond},
	}
	for _, tt := range tests {
		deepEqual(t, must(parseTimeout(tt.s)), tt.want)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		s    string
		want int64
	}{
		{"1024", 1024},
		{"1KB", 1024},
		{"1kb", 1024},
		{"10MB", 10485760},
		{"10 MB", 10485760},
		{"2G", 2 << 30},
		{"1TB", 1 << 40},
		{"10 MiB", 10485760},
	}
	for _, tt := range tests {
		deepEqual(t, must(parseSize(tt.s)), tt.want)
	}
}

func TestConnectionString_String(t *testing.T) {
	cs := must(ParseConnectionString("filename=app.db;password=s3cret;limit size=10MB;mode=readonly"))
	s := cs.String()
	if strings.Contains(s, "s3cret") {
		t.Errorf("password leaked: %s", s)
	}
	deepEqual(t, s, "filename=app.db;journal=true;cache size=5000;timeout=1m0s;mode=ReadOnly;limit size=10 MiB;password=***;log=0;utc=false;upgrade=false")

	// String output parses back to the same options
	back := must(ParseConnectionString(s))
	back.Password = cs.Password
	deepEqual(t, back, cs)
}
