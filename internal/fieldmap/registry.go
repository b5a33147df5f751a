// Package fieldmap maintains the bidirectional mapping between field
// names and the stable 16-bit field ids used throughout a stored
// record, and the per-batch remapping of a freshly ingested batch's
// local field ids onto that registry.
package fieldmap

import (
	"sort"

	"github.com/gcbaptista/docingest/internal/errors"
)

// MaxFieldID is the largest value a FieldId may take; the registry
// rejects growth past this cap.
const MaxFieldID = 1<<16 - 1

// Registry is a bijection between field names and dense FieldIds,
// growing monotonically as new names are seen. The zero value is an
// empty, ready-to-use registry.
type Registry struct {
	nameToID map[string]uint16
	idToName []string
}

// NewRegistry creates an empty field registry.
func NewRegistry() *Registry {
	return &Registry{nameToID: make(map[string]uint16)}
}

// ID returns the field id registered for name, if any.
func (r *Registry) ID(name string) (uint16, bool) {
	id, ok := r.nameToID[name]
	return id, ok
}

// Name returns the field name registered for id, if any.
func (r *Registry) Name(id uint16) (string, bool) {
	if int(id) >= len(r.idToName) {
		return "", false
	}
	return r.idToName[id], true
}

// Len returns the number of distinct fields currently registered.
func (r *Registry) Len() int {
	return len(r.idToName)
}

// Insert returns the id already registered for name, or registers a
// fresh one and returns it. It returns ErrAttributeLimitReached once
// the registry would grow past MaxFieldID+1 entries.
func (r *Registry) Insert(name string) (uint16, error) {
	if id, ok := r.nameToID[name]; ok {
		return id, nil
	}
	if len(r.idToName) > MaxFieldID {
		return 0, errors.NewAttributeLimitReachedError()
	}
	if r.nameToID == nil {
		r.nameToID = make(map[string]uint16)
	}
	id := uint16(len(r.idToName))
	r.idToName = append(r.idToName, name)
	r.nameToID[name] = id
	return id, nil
}

// Entry is a single (id, name) pair yielded by Iterate.
type Entry struct {
	ID   uint16
	Name string
}

// Iterate yields every registered (id, name) pair in ascending id
// order.
func (r *Registry) Iterate() []Entry {
	entries := make([]Entry, len(r.idToName))
	for id, name := range r.idToName {
		entries[id] = Entry{ID: uint16(id), Name: name}
	}
	return entries
}

// Clone returns a deep copy, for a caller that wants to snapshot the
// registry before a speculative batch of inserts.
func (r *Registry) Clone() *Registry {
	clone := &Registry{
		nameToID: make(map[string]uint16, len(r.nameToID)),
		idToName: append([]string(nil), r.idToName...),
	}
	for k, v := range r.nameToID {
		clone.nameToID[k] = v
	}
	return clone
}

// gobRegistryData mirrors the teacher's document store gob-helper
// pattern: encode only the data, not any synchronization state.
type gobRegistryData struct {
	IDToName []string
}

// GobEncode implements gob.GobEncoder.
func (r *Registry) GobEncode() ([]byte, error) {
	return gobEncode(gobRegistryData{IDToName: r.idToName})
}

// GobDecode implements gob.GobDecoder.
func (r *Registry) GobDecode(data []byte) error {
	var decoded gobRegistryData
	if err := gobDecode(data, &decoded); err != nil {
		return err
	}
	r.idToName = decoded.IDToName
	r.nameToID = make(map[string]uint16, len(r.idToName))
	for id, name := range r.idToName {
		r.nameToID[name] = uint16(id)
	}
	return nil
}

// BatchFieldMap is the batch-local field namespace handed to us by a
// batch reader (§6): a set of local ids paired with names, with no
// ordering guarantee from the source format.
type BatchFieldMap map[uint16]string

// RemapBatch computes the mapping from each local field id in fields to
// the registry's ids, registering any unseen name. It walks fields in
// ascending local-id order so that, for a given starting registry
// state, two batches that introduce the same new names end up with the
// same assignment of global ids (§4.B, §5).
func RemapBatch(registry *Registry, fields BatchFieldMap) (map[uint16]uint16, error) {
	localIDs := make([]uint16, 0, len(fields))
	for id := range fields {
		localIDs = append(localIDs, id)
	}
	sort.Slice(localIDs, func(i, j int) bool { return localIDs[i] < localIDs[j] })

	mapping := make(map[uint16]uint16, len(localIDs))
	for _, localID := range localIDs {
		globalID, err := registry.Insert(fields[localID])
		if err != nil {
			return nil, err
		}
		mapping[localID] = globalID
	}
	return mapping, nil
}
