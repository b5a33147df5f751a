// Package docids manages the internal 32-bit document identifiers
// assigned to ingested documents: smallest-unused-id allocation (§4.D)
// and the persisted external-id-to-internal-id mapping (§4.E).
package docids

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/gcbaptista/docingest/internal/errors"
)

// MaxInternalID is the highest internal document id this allocator will
// hand out. Internal ids are 32-bit, but the top value is reserved so
// that "one past the maximum used id" always fits in the same type.
const MaxInternalID = ^uint32(0) - 1

// Allocator hands out the smallest unused internal document id, tracked
// as a roaring bitmap of ids currently in use. It is not safe for
// concurrent use.
type Allocator struct {
	used *roaring.Bitmap
}

// NewAllocator returns an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{used: roaring.New()}
}

// NewAllocatorFromUsed returns an Allocator that already considers the
// ids in used to be taken, as when resuming against a persisted index.
func NewAllocatorFromUsed(used *roaring.Bitmap) *Allocator {
	if used == nil {
		used = roaring.New()
	}
	return &Allocator{used: used.Clone()}
}

// Allocate reserves and returns the smallest id not currently in use.
// It fails with DocumentLimitReachedError once the id space is
// exhausted.
func (a *Allocator) Allocate() (uint32, error) {
	id := uint32(0)
	for a.used.Contains(id) {
		if id == MaxInternalID {
			return 0, errors.NewDocumentLimitReachedError()
		}
		id++
	}
	a.used.Add(id)
	return id, nil
}

// Release marks id as no longer in use, making it eligible for reuse by
// a later Allocate call.
func (a *Allocator) Release(id uint32) {
	a.used.Remove(id)
}

// Contains reports whether id is currently considered in use.
func (a *Allocator) Contains(id uint32) bool {
	return a.used.Contains(id)
}

// Used returns a clone of the bitmap of ids currently in use, safe for
// the caller to mutate or persist independently.
func (a *Allocator) Used() *roaring.Bitmap {
	return a.used.Clone()
}

// Len returns the count of ids currently in use.
func (a *Allocator) Len() uint64 {
	return a.used.GetCardinality()
}

// GobEncode persists the underlying used-id bitmap.
func (a *Allocator) GobEncode() ([]byte, error) {
	return a.used.ToBytes()
}

// GobDecode restores the allocator from a previously persisted bitmap.
func (a *Allocator) GobDecode(data []byte) error {
	bitmap := roaring.New()
	if err := bitmap.UnmarshalBinary(data); err != nil {
		return err
	}
	a.used = bitmap
	return nil
}
