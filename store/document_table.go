// Package store persists the obkv-encoded document records a
// transform produces, keyed by internal document id.
package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	"github.com/gcbaptista/docingest/internal/obkv"
)

// DocumentTable holds two parallel record tables for the same set of
// internal ids: the original, as-submitted encoding and the flattened
// encoding used for attribute-level lookups. It is safe for concurrent
// use.
type DocumentTable struct {
	Mu         sync.RWMutex
	Original   map[uint32][]byte
	Flattened  map[uint32][]byte
}

// gobDocumentTableData excludes the mutex from the persisted form.
type gobDocumentTableData struct {
	Original  map[uint32][]byte
	Flattened map[uint32][]byte
}

// NewDocumentTable returns an empty DocumentTable.
func NewDocumentTable() *DocumentTable {
	return &DocumentTable{
		Original:  make(map[uint32][]byte),
		Flattened: make(map[uint32][]byte),
	}
}

// Put stores the encoded original and flattened records for id,
// overwriting any prior entry.
func (t *DocumentTable) Put(id uint32, original, flattened []byte) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	t.Original[id] = original
	t.Flattened[id] = flattened
}

// Get returns the encoded original and flattened records for id, if
// present.
func (t *DocumentTable) Get(id uint32) (original, flattened []byte, ok bool) {
	t.Mu.RLock()
	defer t.Mu.RUnlock()
	original, ok = t.Original[id]
	if !ok {
		return nil, nil, false
	}
	flattened = t.Flattened[id]
	return original, flattened, true
}

// Delete removes id's entries from both tables.
func (t *DocumentTable) Delete(id uint32) {
	t.Mu.Lock()
	defer t.Mu.Unlock()
	delete(t.Original, id)
	delete(t.Flattened, id)
}

// Len returns the number of documents currently stored.
func (t *DocumentTable) Len() int {
	t.Mu.RLock()
	defer t.Mu.RUnlock()
	return len(t.Original)
}

// LoadStreams stores every entry of the record streams produced by a
// transform's Finalize or Remap call, id by id: an entry overwrites the
// table's entry for the same id, and ids absent from a stream keep what
// the table already holds.
func (t *DocumentTable) LoadStreams(original, flattened io.Reader) error {
	originalEntries, err := readAllEntries(original)
	if err != nil {
		return fmt.Errorf("store: loading original document stream: %w", err)
	}
	flattenedEntries, err := readAllEntries(flattened)
	if err != nil {
		return fmt.Errorf("store: loading flattened document stream: %w", err)
	}

	t.Mu.Lock()
	defer t.Mu.Unlock()
	for id, record := range originalEntries {
		t.Original[id] = record
	}
	for id, record := range flattenedEntries {
		t.Flattened[id] = record
	}
	return nil
}

func readAllEntries(r io.Reader) (map[uint32][]byte, error) {
	entries := make(map[uint32][]byte)
	for {
		entry, err := obkv.ReadStream(r)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		encoded, err := obkv.Encode(entry.Record)
		if err != nil {
			return nil, err
		}
		entries[entry.InternalID] = encoded
	}
}

// GobEncode implements gob.GobEncoder.
func (t *DocumentTable) GobEncode() ([]byte, error) {
	t.Mu.RLock()
	defer t.Mu.RUnlock()

	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)
	data := gobDocumentTableData{Original: t.Original, Flattened: t.Flattened}
	if err := encoder.Encode(data); err != nil {
		return nil, fmt.Errorf("store: gob encoding document table: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (t *DocumentTable) GobDecode(data []byte) error {
	var decoded gobDocumentTableData
	decoder := gob.NewDecoder(bytes.NewBuffer(data))
	if err := decoder.Decode(&decoded); err != nil {
		return fmt.Errorf("store: gob decoding document table: %w", err)
	}

	t.Mu.Lock()
	defer t.Mu.Unlock()
	t.Original = decoded.Original
	t.Flattened = decoded.Flattened
	if t.Original == nil {
		t.Original = make(map[uint32][]byte)
	}
	if t.Flattened == nil {
		t.Flattened = make(map[uint32][]byte)
	}
	return nil
}
