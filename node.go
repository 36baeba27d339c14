package sfdb

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

const (
	// MaxLevels is the number of skip levels of head and tail sentinels, and
	// the upper bound for any node.
	MaxLevels = 32

	// MaxIndexKeyLength is the maximum encoded payload size of an index key.
	MaxIndexKeyLength = 512
)

// PageAddress points to a slot within a page of the page store.
type PageAddress struct {
	PageID uint32 `msgpack:"p"`
	Index  uint16 `msgpack:"i"`
}

const pageAddressSize = 6

// EmptyAddress is the null pointer.
var EmptyAddress = PageAddress{PageID: math.MaxUint32, Index: math.MaxUint16}

func (a PageAddress) IsEmpty() bool {
	return a.PageID == math.MaxUint32
}

func (a PageAddress) String() string {
	if a.IsEmpty() {
		return "(empty)"
	}
	return fmt.Sprintf("%d:%d", a.PageID, a.Index)
}

// Uint64 packs the address into an integer, used as a cache key.
func (a PageAddress) Uint64() uint64 {
	return uint64(a.PageID)<<16 | uint64(a.Index)
}

// key returns the big-endian form used as a storage key, which sorts in
// allocation order.
func (a PageAddress) key() []byte {
	var b [pageAddressSize]byte
	binary.BigEndian.PutUint32(b[0:], a.PageID)
	binary.BigEndian.PutUint16(b[4:], a.Index)
	return b[:]
}

// IndexNode is an element of a skip-list index. Next[i] and Prev[i] link the
// node into level i; level 0 links every node of the index in key order.
//
// Nodes handed out by a PageStore are shared and must be treated as read-only;
// mutations go through Clone and PageStore.UpdateNode.
type IndexNode struct {
	Position  PageAddress
	Key       Value
	DataBlock PageAddress
	Next      []PageAddress
	Prev      []PageAddress
}

func newIndexNode(key Value, dataBlock PageAddress, levels int) *IndexNode {
	n := &IndexNode{
		Position:  EmptyAddress,
		Key:       key,
		DataBlock: dataBlock,
		Next:      make([]PageAddress, levels),
		Prev:      make([]PageAddress, levels),
	}
	for i := range levels {
		n.Next[i] = EmptyAddress
		n.Prev[i] = EmptyAddress
	}
	return n
}

func (n *IndexNode) Levels() int {
	return len(n.Next)
}

// IsSentinel reports whether n is the head or tail node of its index.
func (n *IndexNode) IsSentinel() bool {
	return n.DataBlock.IsEmpty()
}

// NextIn returns the neighbour on level i in the given direction.
func (n *IndexNode) NextIn(i int, dir Direction) PageAddress {
	if dir == Descending {
		return n.Prev[i]
	}
	return n.Next[i]
}

func (n *IndexNode) Clone() *IndexNode {
	c := *n
	c.Next = slices.Clone(n.Next)
	c.Prev = slices.Clone(n.Prev)
	return &c
}

func (n *IndexNode) String() string {
	return fmt.Sprintf("node(%v key=%v data=%v levels=%d)", n.Position, n.Key, n.DataBlock, n.Levels())
}

// Direction of an index walk.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

func (d Direction) Reversed() Direction {
	return -d
}

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}
