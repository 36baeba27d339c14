package sfdb

import (
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpCollectionHeaders = DumpFlags(1 << iota)
	DumpDocuments
	DumpStats
	DumpIndexes
	DumpIndexNodes

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the contents of every collection for debugging and tests.
func (db *DB) Dump(f DumpFlags) (string, error) {
	var buf strings.Builder
	err := db.read(func(tx *pageTx) error {
		names, err := tx.collectionNames()
		if err != nil {
			return err
		}
		for _, name := range names {
			c, err := tx.openCollection(name, false, nil)
			if err != nil {
				return err
			}
			if err := c.dump(&buf, f); err != nil {
				return err
			}
		}
		return nil
	})
	return buf.String(), err
}

func (c *collection) dump(w *strings.Builder, f DumpFlags) error {
	prefix := c.meta.Name
	s, err := c.stats()
	if err != nil {
		return err
	}

	if f.Contains(DumpCollectionHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d documents)\n", prefix, s.Documents)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: index_nodes = %d, data_size = %d, index_size = %d\n", prefix, s.IndexNodes, s.DataSize, s.IndexSize)
	}

	if f.Contains(DumpDocuments) {
		if f.Contains(DumpStats) {
			fmt.Fprintln(w, dumpSep2)
		}
		var pos int
		for node, err := range c.ix.FindAll(c.PrimaryKey(), Ascending) {
			if err != nil {
				return err
			}
			pos++
			doc, err := c.tx.GetDocument(node.DataBlock)
			if err != nil {
				fmt.Fprintf(w, "%s.%d = (%v) ** ERROR: %v\n", prefix, pos, node.DataBlock, err)
				continue
			}
			fmt.Fprintf(w, "%s.%d = (%v) %v\n", prefix, pos, node.DataBlock, doc)
		}
	}

	if f.Contains(DumpIndexes) {
		for _, idx := range c.meta.Indexes {
			if err := c.dumpIndex(w, prefix, f, idx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *collection) dumpIndex(w *strings.Builder, prefix string, f DumpFlags, idx *CollectionIndex) error {
	fmt.Fprintln(w, dumpSep2)
	prefix = prefix + ".i." + idx.Name
	fmt.Fprintf(w, "%s %v max_level=%d\n", prefix, idx, idx.MaxLevel)

	if f.Contains(DumpIndexNodes) {
		var pos int
		for node, err := range c.ix.FindAll(idx, Ascending) {
			if err != nil {
				return err
			}
			pos++
			fmt.Fprintf(w, "%s.%d: %s => %v\n", prefix, pos, rpad(node.Key.String(), 24, ' ')+" L"+fmt.Sprint(node.Levels()), node.DataBlock)
		}
	}
	return nil
}
