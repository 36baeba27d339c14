package sfdb

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// ObjectID is a 12-byte identifier: 4 bytes of big-endian Unix seconds,
// 5 bytes of per-process randomness, 3 bytes of a big-endian counter.
// Freshly generated ids sort in creation order within a process.
type ObjectID [12]byte

var (
	objectIDProcess [5]byte
	objectIDCounter atomic.Uint32
)

func init() {
	var seed [8]byte
	must(rand.Read(objectIDProcess[:]))
	must(rand.Read(seed[:]))
	objectIDCounter.Store(binary.BigEndian.Uint32(seed[:4]) & 0xFFFFFF)
}

func NewObjectID() ObjectID {
	return newObjectIDAt(time.Now())
}

func newObjectIDAt(now time.Time) ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(now.Unix()))
	copy(id[4:9], objectIDProcess[:])
	c := objectIDCounter.Add(1)
	id[9] = byte(c >> 16)
	id[10] = byte(c >> 8)
	id[11] = byte(c)
	return id
}

func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 24 {
		return id, fmt.Errorf("invalid ObjectId %q: wanted 24 hex digits", s)
	}
	_, err := hex.Decode(id[:], []byte(s))
	if err != nil {
		return id, fmt.Errorf("invalid ObjectId %q: %w", s, err)
	}
	return id, nil
}

func (id ObjectID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0)
}

func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ObjectID) String() string {
	return id.Hex()
}

func (id ObjectID) Compare(other ObjectID) int {
	return bytes.Compare(id[:], other[:])
}
