package sfdb

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Document and Array payloads are msgpack containers. A document is a map of
// field name to a bin item, an array is an array of bin items; each bin item
// holds a tagged value (see EncodeValue), whose payload length follows from
// the bin length.

func encodeDocumentPayload(doc *Document) []byte {
	bb := bytesBuilder{}
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	defer msgpack.PutEncoder(enc)

	ensure(enc.EncodeMapLen(doc.Len()))
	for _, f := range doc.Fields() {
		ensure(enc.EncodeString(f.Name))
		ensure(enc.EncodeBytes(EncodeValue(f.Value)))
	}
	return bb.Buf
}

func encodeArrayPayload(items []Value) []byte {
	bb := bytesBuilder{}
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	defer msgpack.PutEncoder(enc)

	ensure(enc.EncodeArrayLen(len(items)))
	for _, item := range items {
		ensure(enc.EncodeBytes(EncodeValue(item)))
	}
	return bb.Buf
}

func decodeDocumentPayload(buf []byte, utcDate bool) (*Document, error) {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	defer msgpack.PutDecoder(dec)

	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, dataErrf(buf, 0, err, "failed to decode document")
	}
	if n < 0 {
		return nil, dataErrf(buf, 0, ErrUnsupportedFormat, "nil document map")
	}
	doc := &Document{fields: make([]Field, 0, n)}
	for i := 0; i < n; i++ {
		name, err := dec.DecodeString()
		if err != nil {
			return nil, dataErrf(buf, len(buf)-r.Len(), err, "failed to decode document field %d name", i)
		}
		raw, err := dec.DecodeBytes()
		if err != nil {
			return nil, dataErrf(buf, len(buf)-r.Len(), err, "failed to decode document field %q", name)
		}
		v, err := DecodeValue(raw, utcDate)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		doc.fields = append(doc.fields, Field{name, v})
	}
	if r.Len() != 0 {
		return nil, dataErrf(buf, len(buf)-r.Len(), nil, "trailing bytes after document")
	}
	return doc, nil
}

func decodeArrayPayload(buf []byte, utcDate bool) ([]Value, error) {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	defer msgpack.PutDecoder(dec)

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, dataErrf(buf, 0, err, "failed to decode array")
	}
	if n < 0 {
		return nil, dataErrf(buf, 0, ErrUnsupportedFormat, "nil array")
	}
	items := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		raw, err := dec.DecodeBytes()
		if err != nil {
			return nil, dataErrf(buf, len(buf)-r.Len(), err, "failed to decode array item %d", i)
		}
		v, err := DecodeValue(raw, utcDate)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, v)
	}
	if r.Len() != 0 {
		return nil, dataErrf(buf, len(buf)-r.Len(), nil, "trailing bytes after array")
	}
	return items, nil
}

// encodeMeta and decodeMeta serialize catalog records.
func encodeMeta(v any) []byte {
	bb := bytesBuilder{}
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	enc.SetSortMapKeys(true)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", v, err))
	}
	return bb.Buf
}

func decodeMeta(buf []byte, ptr any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(ptr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(buf, 0, err, "failed to decode msgpack into %T", ptr)
	}
	return nil
}
