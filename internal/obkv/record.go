// Package obkv implements the ordered-key sparse record codec (§4.G):
// a byte encoding of a (FieldId, value) association list whose keys
// are strictly ascending, plus the record-stream file layout used to
// hand finished documents back to the caller (§6).
package obkv

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Field is a single (FieldId, raw JSON value bytes) pair.
type Field struct {
	ID    uint16
	Value []byte
}

// Record is a decoded, ordered list of Fields.
type Record []Field

// Get returns the value bytes stored under id, if present.
func (r Record) Get(id uint16) ([]byte, bool) {
	i := sort.Search(len(r), func(i int) bool { return r[i].ID >= id })
	if i < len(r) && r[i].ID == id {
		return r[i].Value, true
	}
	return nil, false
}

// entry framing: 2-byte field id, 4-byte big-endian value length,
// value bytes. Encode requires fields sorted ascending by id with no
// duplicates; this is the codec's core invariant (§4.G, §8 invariant 2).
const headerSize = 2 + 4

// Encode serializes fields, which must already be sorted ascending by
// FieldId with no duplicate keys, into the codec's framed byte form.
// It returns an error if that invariant is violated.
func Encode(fields []Field) ([]byte, error) {
	for i := 1; i < len(fields); i++ {
		if fields[i].ID < fields[i-1].ID {
			return nil, fmt.Errorf("obkv: fields are not sorted ascending: id %d follows id %d", fields[i].ID, fields[i-1].ID)
		}
		if fields[i].ID == fields[i-1].ID {
			return nil, fmt.Errorf("obkv: duplicate field id %d", fields[i].ID)
		}
	}

	size := 0
	for _, f := range fields {
		size += headerSize + len(f.Value)
	}

	buf := make([]byte, size)
	offset := 0
	for _, f := range fields {
		binary.BigEndian.PutUint16(buf[offset:], f.ID)
		binary.BigEndian.PutUint32(buf[offset+2:], uint32(len(f.Value)))
		offset += headerSize
		copy(buf[offset:], f.Value)
		offset += len(f.Value)
	}
	return buf, nil
}

// Decode parses the framed byte form produced by Encode back into an
// ascending-key Record.
func Decode(data []byte) (Record, error) {
	var record Record
	offset := 0
	for offset < len(data) {
		if offset+headerSize > len(data) {
			return nil, fmt.Errorf("obkv: truncated record header at offset %d", offset)
		}
		id := binary.BigEndian.Uint16(data[offset:])
		length := binary.BigEndian.Uint32(data[offset+2:])
		offset += headerSize
		if offset+int(length) > len(data) {
			return nil, fmt.Errorf("obkv: truncated record value at offset %d", offset)
		}
		record = append(record, Field{ID: id, Value: data[offset : offset+int(length)]})
		offset += int(length)
	}
	return record, nil
}

// WriteStream appends a single (internal id, record) pair to w in the
// record-stream file layout of §6: a 4-byte big-endian internal id
// followed by the encoded record. A further 4-byte big-endian length
// prefix precedes the encoded record itself so a stream reader can
// locate the next entry's internal id without re-parsing the codec's
// internal field framing; this is a stream-level delimiter, not part
// of the record codec proper.
func WriteStream(w io.Writer, internalID uint32, encodedRecord []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], internalID)
	binary.BigEndian.PutUint32(header[4:], uint32(len(encodedRecord)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(encodedRecord)
	return err
}

// StreamEntry is a single (internal id, record) pair read back from a
// record-stream file.
type StreamEntry struct {
	InternalID uint32
	Record     Record
}

// ReadStream reads the next (internal id, record) pair from r. It
// returns io.EOF when the stream is exhausted.
func ReadStream(r io.Reader) (StreamEntry, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return StreamEntry{}, err
	}
	internalID := binary.BigEndian.Uint32(header[:4])
	length := binary.BigEndian.Uint32(header[4:])

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return StreamEntry{}, err
	}

	record, err := Decode(buf)
	if err != nil {
		return StreamEntry{}, err
	}
	return StreamEntry{InternalID: internalID, Record: record}, nil
}
