package sfdb

// CollectionStats describes the size of a collection. Sizes are the encoded
// bytes of its records.
type CollectionStats struct {
	Documents  int
	IndexNodes int

	DataSize  int
	IndexSize int
}

func (cs *CollectionStats) TotalSize() int {
	return cs.DataSize + cs.IndexSize
}

// StorageStats describes the storage buckets and the node cache. In-memory
// databases report the used size as allocated.
type StorageStats struct {
	Nodes      int
	NodesSize  int64
	NodesAlloc int64

	Documents      int
	DocumentsSize  int64
	DocumentsAlloc int64

	CacheHits   uint64
	CacheMisses uint64
}

func (ss *StorageStats) TotalAlloc() int64 {
	return ss.NodesAlloc + ss.DocumentsAlloc
}

func (c *collection) stats() (CollectionStats, error) {
	var s CollectionStats
	for node, err := range c.ix.FindAll(c.PrimaryKey(), Ascending) {
		if err != nil {
			return s, err
		}
		s.Documents++
		if data := c.tx.data.Get(node.DataBlock.key()); data != nil {
			s.DataSize += len(data)
		}
	}
	for _, idx := range c.meta.Indexes {
		// sentinels count towards the size
		for _, addr := range []PageAddress{idx.Head, idx.Tail} {
			s.IndexSize += len(c.tx.nodes.Get(addr.key()))
		}
		for node, err := range c.ix.FindAll(idx, Ascending) {
			if err != nil {
				return s, err
			}
			s.IndexNodes++
			s.IndexSize += nodeRecordSize(node.Levels(), ValueLength(node.Key))
		}
	}
	return s, nil
}

// CollectionStats returns the size of a collection, or zero stats if it does
// not exist.
func (db *DB) CollectionStats(col string) (CollectionStats, error) {
	var s CollectionStats
	err := db.readCollection(col, func(c *collection) error {
		var err error
		s, err = c.stats()
		return err
	})
	return s, err
}

func (db *DB) StorageStats() (StorageStats, error) {
	var s StorageStats
	err := db.read(func(tx *pageTx) error {
		if tx.nodes != nil {
			bs := tx.nodes.Stats()
			s.Nodes, s.NodesSize, s.NodesAlloc = bs.KeyN, bs.LeafInuse, bs.TotalAlloc()
		}
		if tx.data != nil {
			bs := tx.data.Stats()
			s.Documents, s.DocumentsSize, s.DocumentsAlloc = bs.KeyN, bs.LeafInuse, bs.TotalAlloc()
		}
		return nil
	})
	s.CacheHits, s.CacheMisses = db.cache.stats()
	return s, err
}
