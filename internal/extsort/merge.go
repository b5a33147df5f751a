package extsort

import (
	"fmt"
	"sort"

	"github.com/gcbaptista/docingest/internal/obkv"
)

// MergeFunc combines the values accumulated under a single key during a
// drain, in the order they were originally inserted. It is called only
// when a key has more than one value; single-value keys pass through
// untouched.
type MergeFunc func(key []byte, values [][]byte) ([]byte, error)

// KeepLatest resolves duplicate keys by keeping only the most recently
// inserted value, discarding the rest. This is the policy used when a
// later batch's document with the same external id fully replaces an
// earlier one.
func KeepLatest(_ []byte, values [][]byte) ([]byte, error) {
	return values[len(values)-1], nil
}

// ForbidDuplicates resolves duplicate keys by failing outright. This is
// the policy used where a duplicate key would indicate a logic error
// rather than a legitimate update, e.g. while merging per-run internal
// id allocations that are supposed to be unique.
func ForbidDuplicates(key []byte, values [][]byte) ([]byte, error) {
	return nil, fmt.Errorf("extsort: forbidden duplicate key %x (%d occurrences)", key, len(values))
}

// UnionRecords resolves duplicate keys by decoding each value as an
// obkv record and unioning their fields, with later values' fields
// overriding earlier ones where both set the same field id. This is the
// policy used when a document is updated by a later batch that only
// supplies a subset of its fields.
func UnionRecords(_ []byte, values [][]byte) ([]byte, error) {
	merged := make(map[uint16][]byte)
	var order []uint16

	for _, raw := range values {
		record, err := obkv.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("extsort: decoding record for union: %w", err)
		}
		for _, field := range record {
			if _, exists := merged[field.ID]; !exists {
				order = append(order, field.ID)
			}
			merged[field.ID] = field.Value
		}
	}

	fields := make([]obkv.Field, len(order))
	for i, id := range order {
		fields[i] = obkv.Field{ID: id, Value: merged[id]}
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })

	return obkv.Encode(fields)
}
