package sfdb

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// formatVersion is the on-disk format written by this package.
//
// Version 1 catalogs did not record CollectionIndex.MaxLevel; searches
// started from the top sentinel level. Upgrading recomputes it from the head
// sentinel.
const formatVersion = 2

var metaFormatKey = []byte("format")

// collectionMeta is the catalog record of a collection.
type collectionMeta struct {
	Name    string             `msgpack:"n"`
	Indexes []*CollectionIndex `msgpack:"i"`
}

func (m *collectionMeta) index(name string) *CollectionIndex {
	for _, idx := range m.Indexes {
		if strings.EqualFold(idx.Name, name) {
			return idx
		}
	}
	return nil
}

func (m *collectionMeta) primaryKey() *CollectionIndex {
	return m.Indexes[0]
}

// indexForField returns the index whose expression has the given canonical
// field name.
func (m *collectionMeta) indexForField(field string) *CollectionIndex {
	for _, idx := range m.Indexes {
		if idx.Field() == field {
			return idx
		}
	}
	return nil
}

func (tx *pageTx) collectionNames() ([]string, error) {
	if tx.catalog == nil {
		return nil, nil
	}
	var names []string
	c := tx.catalog.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		names = append(names, string(k))
	}
	return names, nil
}

// loadCollection returns the catalog record of name, or nil if there is no
// such collection.
func (tx *pageTx) loadCollection(name string) (*collectionMeta, error) {
	if tx.catalog == nil {
		return nil, nil
	}
	data := tx.catalog.Get([]byte(name))
	if data == nil {
		return nil, nil
	}
	meta := new(collectionMeta)
	if err := decodeMeta(data, meta); err != nil {
		return nil, fmt.Errorf("catalog %q: %w", name, err)
	}
	if len(meta.Indexes) == 0 || meta.Indexes[0].Field() != IDField {
		return nil, fmt.Errorf("catalog %q: %w: missing primary key index", name, ErrCorrupted)
	}
	return meta, nil
}

func (tx *pageTx) saveCollection(meta *collectionMeta) error {
	return tx.catalog.Put([]byte(meta.Name), encodeMeta(meta))
}

func (tx *pageTx) deleteCollection(name string) error {
	return tx.catalog.Delete([]byte(name))
}

// format returns the format version of the file, 0 for a file without one.
func (tx *pageTx) format() (int, error) {
	if tx.meta == nil {
		return 0, nil
	}
	data := tx.meta.Get(metaFormatKey)
	if data == nil {
		return 0, nil
	}
	if len(data) != 4 {
		return 0, dataErrf(data, 0, ErrUnsupportedFormat, "invalid format version record")
	}
	return int(binary.LittleEndian.Uint32(data)), nil
}

func (tx *pageTx) setFormat(v int) error {
	return tx.meta.Put(metaFormatKey, binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

// checkFormat validates the format version of the file, bootstrapping empty
// files and upgrading older ones when allowed.
func (tx *pageTx) checkFormat(upgrade bool) error {
	v, err := tx.format()
	if err != nil {
		return err
	}
	switch {
	case v == formatVersion:
		return nil
	case v > formatVersion:
		return fmt.Errorf("%w: format version %d, newest supported is %d", ErrUnsupportedFormat, v, formatVersion)
	case v == 0 && !tx.bootstrapped():
		if !tx.writable() {
			return nil
		}
		if err := tx.bootstrap(); err != nil {
			return err
		}
		return tx.setFormat(formatVersion)
	case v == 0:
		return fmt.Errorf("%w: missing format version", ErrUnsupportedFormat)
	case !upgrade || !tx.writable():
		return fmt.Errorf("%w (format version %d, current %d)", ErrUpgradeRequired, v, formatVersion)
	}

	tx.log.Write(LogRecovery, "upgrading data file from format %d to %d", v, formatVersion)
	names, err := tx.collectionNames()
	if err != nil {
		return err
	}
	ix := NewIndexer(tx, nil)
	for _, name := range names {
		meta, err := tx.loadCollection(name)
		if err != nil {
			return err
		}
		for _, idx := range meta.Indexes {
			head, err := ix.GetNode(idx.Head)
			if err != nil {
				return err
			}
			idx.MaxLevel = 1
			for i := head.Levels() - 1; i > 0; i-- {
				if head.Next[i] != idx.Tail {
					idx.MaxLevel = i + 1
					break
				}
			}
		}
		if err := tx.saveCollection(meta); err != nil {
			return err
		}
	}
	return tx.setFormat(formatVersion)
}
