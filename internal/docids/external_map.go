package docids

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"
)

// ExternalIDMap is the persisted mapping from external document id
// strings to internal 32-bit ids (§4.E). It is safe for concurrent use.
type ExternalIDMap struct {
	Mu            sync.RWMutex
	ExternalToInt map[string]uint32
}

// gobExternalIDMapData excludes the mutex from the persisted form.
type gobExternalIDMapData struct {
	ExternalToInt map[string]uint32
}

// NewExternalIDMap returns an empty ExternalIDMap.
func NewExternalIDMap() *ExternalIDMap {
	return &ExternalIDMap{ExternalToInt: make(map[string]uint32)}
}

// Get returns the internal id associated with externalID, if any.
func (m *ExternalIDMap) Get(externalID string) (uint32, bool) {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	id, ok := m.ExternalToInt[externalID]
	return id, ok
}

// Insert records the association, overwriting any prior internal id
// for the same external id.
func (m *ExternalIDMap) Insert(externalID string, internalID uint32) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ExternalToInt[externalID] = internalID
}

// Delete removes externalID's association, if present.
func (m *ExternalIDMap) Delete(externalID string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	delete(m.ExternalToInt, externalID)
}

// Len returns the number of external ids currently mapped.
func (m *ExternalIDMap) Len() int {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	return len(m.ExternalToInt)
}

// SortedExternalIDs returns the mapped external ids in ascending order.
// The map itself is a Go map, persisted and ranged over in no
// particular order.
func (m *ExternalIDMap) SortedExternalIDs() []string {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	ids := make([]string, 0, len(m.ExternalToInt))
	for id := range m.ExternalToInt {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge unions other into m. Where both maps carry an entry for the
// same external id, other's internal id wins: the union is
// right-biased, matching the behavior a later ingestion batch must have
// over an earlier one when remapping external ids.
func (m *ExternalIDMap) Merge(other *ExternalIDMap) {
	other.Mu.RLock()
	defer other.Mu.RUnlock()
	m.Mu.Lock()
	defer m.Mu.Unlock()
	for externalID, internalID := range other.ExternalToInt {
		m.ExternalToInt[externalID] = internalID
	}
}

// GobEncode implements gob.GobEncoder.
func (m *ExternalIDMap) GobEncode() ([]byte, error) {
	m.Mu.RLock()
	defer m.Mu.RUnlock()

	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)
	if err := encoder.Encode(gobExternalIDMapData{ExternalToInt: m.ExternalToInt}); err != nil {
		return nil, fmt.Errorf("failed to gob encode external id map: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (m *ExternalIDMap) GobDecode(data []byte) error {
	var decoded gobExternalIDMapData
	decoder := gob.NewDecoder(bytes.NewBuffer(data))
	if err := decoder.Decode(&decoded); err != nil {
		return fmt.Errorf("failed to gob decode external id map: %w", err)
	}

	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ExternalToInt = decoded.ExternalToInt
	if m.ExternalToInt == nil {
		m.ExternalToInt = make(map[string]uint32)
	}
	return nil
}

// Builder accumulates external-id-to-internal-id associations for a
// single ingestion batch without touching the base map, so the batch
// can be validated and then merged in one step (§4.E).
type Builder struct {
	base    *ExternalIDMap
	pending map[string]uint32
}

// NewBuilder starts a Builder layered on top of base. Lookups first
// consult pending insertions from this batch, then fall back to base.
func NewBuilder(base *ExternalIDMap) *Builder {
	return &Builder{base: base, pending: make(map[string]uint32)}
}

// Get looks up externalID, preferring this batch's own pending
// insertions over the base map.
func (b *Builder) Get(externalID string) (uint32, bool) {
	if id, ok := b.pending[externalID]; ok {
		return id, true
	}
	return b.base.Get(externalID)
}

// Insert stages an association for this batch. It does not affect the
// base map until Commit is called.
func (b *Builder) Insert(externalID string, internalID uint32) {
	b.pending[externalID] = internalID
}

// Len returns the count of associations staged so far in this batch.
func (b *Builder) Len() int {
	return len(b.pending)
}

// Commit unions this batch's staged associations into the base map,
// with the batch's own entries winning over any pre-existing base
// entry for the same external id (right-biased union).
func (b *Builder) Commit() {
	b.base.Mu.Lock()
	defer b.base.Mu.Unlock()
	for externalID, internalID := range b.pending {
		b.base.ExternalToInt[externalID] = internalID
	}
}
