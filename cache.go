package sfdb

import (
	"github.com/dgraph-io/ristretto/v2"
)

// nodeCache keeps decoded index nodes of committed data, keyed by address.
// Only read transactions populate it; write transactions evict every node
// they modify, and the whole cache is dropped when another process changed
// the file.
type nodeCache struct {
	c *ristretto.Cache[uint64, *IndexNode]
}

// newNodeCache returns a cache holding roughly size nodes, or nil when size
// is zero (caching disabled).
func newNodeCache(size int) (*nodeCache, error) {
	if size <= 0 {
		return nil, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config[uint64, *IndexNode]{
		NumCounters: int64(size) * 10,
		MaxCost:     int64(size),
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &nodeCache{c: c}, nil
}

func (nc *nodeCache) get(addr PageAddress) (*IndexNode, bool) {
	if nc == nil {
		return nil, false
	}
	return nc.c.Get(addr.Uint64())
}

func (nc *nodeCache) put(n *IndexNode) {
	if nc == nil {
		return
	}
	nc.c.Set(n.Position.Uint64(), n, 1)
}

func (nc *nodeCache) evict(addr PageAddress) {
	if nc == nil {
		return
	}
	nc.c.Del(addr.Uint64())
}

// settle waits for buffered writes, so that evictions made by a committed
// transaction are visible to the next reader.
func (nc *nodeCache) settle() {
	if nc == nil {
		return
	}
	nc.c.Wait()
}

func (nc *nodeCache) clear() {
	if nc == nil {
		return
	}
	nc.c.Clear()
}

func (nc *nodeCache) stats() (hits, misses uint64) {
	if nc == nil || nc.c.Metrics == nil {
		return 0, 0
	}
	return nc.c.Metrics.Hits(), nc.c.Metrics.Misses()
}

func (nc *nodeCache) close() {
	if nc == nil {
		return
	}
	nc.c.Close()
}
