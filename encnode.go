package sfdb

// Node record layout:
//
//	levels     u8
//	keyLength  u16, payload length of the key
//	key        tag byte + payload
//	dataBlock  PageAddress
//	prev       PageAddress × levels
//	next       PageAddress × levels
//
// The node's own position is the storage key and is not repeated here.

func nodeRecordSize(levels, keyLength int) int {
	return 1 + 2 + 1 + keyLength + pageAddressSize + 2*levels*pageAddressSize
}

func encodeNode(n *IndexNode) []byte {
	levels := n.Levels()
	assert(levels >= 1 && levels <= MaxLevels && len(n.Prev) == levels, "invalid node levels %d/%d", levels, len(n.Prev))

	payload, keyLength := valuePayload(n.Key)
	assert(keyLength <= MaxIndexKeyLength, "index key of %d bytes", keyLength)

	w := NewByteWriter(make([]byte, nodeRecordSize(levels, keyLength)))
	w.Byte(byte(levels))
	w.UInt16(uint16(keyLength))
	w.Byte(byte(n.Key.Type()))
	w.writePayload(n.Key, payload)
	w.PageAddress(n.DataBlock)
	for _, a := range n.Prev {
		w.PageAddress(a)
	}
	for _, a := range n.Next {
		w.PageAddress(a)
	}
	assert(w.Position() == w.Len(), "node record size mismatch")
	return w.Bytes()
}

func decodeNode(pos PageAddress, data []byte, utcDate bool) (*IndexNode, error) {
	r := NewByteReader(data)
	r.UTCDate = utcDate

	levels, err := r.Byte()
	if err != nil {
		return nil, err
	}
	if levels < 1 || levels > MaxLevels {
		return nil, dataErrf(data, 0, ErrCorrupted, "invalid node levels %d", levels)
	}
	keyLength, err := r.UInt16()
	if err != nil {
		return nil, err
	}
	key, err := r.Value(int(keyLength))
	if err != nil {
		return nil, err
	}
	n := &IndexNode{
		Position: pos,
		Key:      key,
		Next:     make([]PageAddress, levels),
		Prev:     make([]PageAddress, levels),
	}
	if n.DataBlock, err = r.PageAddress(); err != nil {
		return nil, err
	}
	for i := range n.Prev {
		if n.Prev[i], err = r.PageAddress(); err != nil {
			return nil, err
		}
	}
	for i := range n.Next {
		if n.Next[i], err = r.PageAddress(); err != nil {
			return nil, err
		}
	}
	if r.Remaining() != 0 {
		return nil, dataErrf(data, r.Position(), nil, "%d trailing bytes after node record", r.Remaining())
	}
	return n, nil
}

// encodeDocumentRecord stores a document as a tagged Document value; the
// record length implies the payload length.
func encodeDocumentRecord(doc *Document) []byte {
	return EncodeValue(Doc(doc))
}

func decodeDocumentRecord(data []byte, utcDate bool) (*Document, error) {
	v, err := DecodeValue(data, utcDate)
	if err != nil {
		return nil, err
	}
	if !v.IsDocument() {
		return nil, dataErrf(data, 0, ErrCorrupted, "%v stored where a document was expected", v.Type())
	}
	return v.AsDocument(), nil
}
