package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/gcbaptista/docingest/internal/fieldmap"
	"github.com/gcbaptista/docingest/internal/flatten"
	"github.com/gcbaptista/docingest/internal/obkv"
)

// Remap rebuilds every stored document's field-id-addressed encoding
// under newRegistry, reading already-indexed original documents from
// originalIn (as written by Finalize) and writing the remapped original
// and flattened record streams to originalOut and flattenedOut.
//
// Unlike the implementation this pipeline is modeled on, Remap always
// populates flattenedOut: a reindex that changes field ids must leave
// both stored representations internally consistent, not just the
// original one.
func Remap(originalIn io.Reader, oldRegistry, newRegistry *fieldmap.Registry, originalOut, flattenedOut io.Writer) (uint64, error) {
	var count uint64
	for {
		entry, err := obkv.ReadStream(originalIn)
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("transform: reading stored document for remap: %w", err)
		}

		doc, err := decodeRecordToDocument(oldRegistry, entry.Record)
		if err != nil {
			return count, fmt.Errorf("transform: decoding document %d for remap: %w", entry.InternalID, err)
		}

		originalRecord, err := projectDocument(newRegistry, doc)
		if err != nil {
			return count, fmt.Errorf("transform: re-encoding document %d for remap: %w", entry.InternalID, err)
		}
		flattenedRecord, err := projectDocument(newRegistry, flatten.Flatten(doc))
		if err != nil {
			return count, fmt.Errorf("transform: re-flattening document %d for remap: %w", entry.InternalID, err)
		}

		if err := obkv.WriteStream(originalOut, entry.InternalID, originalRecord); err != nil {
			return count, err
		}
		if err := obkv.WriteStream(flattenedOut, entry.InternalID, flattenedRecord); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// DiscoverUsedFields scans every stored document in originalIn and
// returns a fresh registry holding only the field names still
// referenced by at least one of them, assigned compacted ids in
// oldRegistry's existing order. A caller that wants to compact a
// registry after churn from deletions or partial updates builds this
// registry and hands it to Remap as newRegistry, rather than handing
// Remap an already-fixed field set.
func DiscoverUsedFields(originalIn io.Reader, oldRegistry *fieldmap.Registry) (*fieldmap.Registry, error) {
	used := make(map[uint16]bool)
	for {
		entry, err := obkv.ReadStream(originalIn)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("transform: reading stored document to discover used fields: %w", err)
		}
		for _, field := range entry.Record {
			used[field.ID] = true
		}
	}

	newRegistry := fieldmap.NewRegistry()
	for _, entry := range oldRegistry.Iterate() {
		if !used[entry.ID] {
			continue
		}
		if _, err := newRegistry.Insert(entry.Name); err != nil {
			return nil, err
		}
	}
	return newRegistry, nil
}

// projectDocument encodes doc under registry's existing ids only: a
// field whose name is not registered is dropped rather than added, so
// Remap can shrink a document's field set when newRegistry doesn't
// carry every name oldRegistry did. Unlike encodeDocument, it never
// grows registry.
func projectDocument(registry *fieldmap.Registry, doc map[string]interface{}) ([]byte, error) {
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]obkv.Field, 0, len(names))
	for _, name := range names {
		id, ok := registry.ID(name)
		if !ok {
			continue
		}
		value, err := json.Marshal(doc[name])
		if err != nil {
			return nil, err
		}
		fields = append(fields, obkv.Field{ID: id, Value: value})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })
	return obkv.Encode(fields)
}

func decodeRecordToDocument(registry *fieldmap.Registry, record obkv.Record) (map[string]interface{}, error) {
	doc := make(map[string]interface{}, len(record))
	for _, field := range record {
		name, ok := registry.Name(field.ID)
		if !ok {
			return nil, fmt.Errorf("transform: field id %d is not present in the source registry", field.ID)
		}
		var value interface{}
		if err := json.Unmarshal(field.Value, &value); err != nil {
			return nil, err
		}
		doc[name] = value
	}
	return doc, nil
}
