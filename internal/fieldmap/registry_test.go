package fieldmap

import (
	"errors"
	"fmt"
	"testing"

	internalErrors "github.com/gcbaptista/docingest/internal/errors"
)

func TestRegistryInsertReturnsSameIDForSameName(t *testing.T) {
	r := NewRegistry()

	id1, err := r.Insert("title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := r.Insert("title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same id for repeated insert, got %d and %d", id1, id2)
	}

	name, ok := r.Name(id1)
	if !ok || name != "title" {
		t.Errorf("expected Name(%d) = 'title', got %q, %v", id1, name, ok)
	}
}

func TestRegistryIDAndNameLookupMiss(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.ID("nope"); ok {
		t.Error("expected ID lookup miss on empty registry")
	}
	if _, ok := r.Name(0); ok {
		t.Error("expected Name lookup miss on empty registry")
	}
}

func TestRegistryInsertIsMonotonicallyDense(t *testing.T) {
	r := NewRegistry()
	names := []string{"a", "b", "c"}
	for i, name := range names {
		id, err := r.Insert(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if int(id) != i {
			t.Errorf("expected dense id %d for %q, got %d", i, name, id)
		}
	}
	if r.Len() != len(names) {
		t.Errorf("expected Len() = %d, got %d", len(names), r.Len())
	}
}

func TestRegistryAttributeLimitReached(t *testing.T) {
	r := &Registry{
		nameToID: make(map[string]uint16, MaxFieldID+1),
		idToName: make([]string, MaxFieldID+1),
	}
	for i := 0; i <= MaxFieldID; i++ {
		name := fmt.Sprintf("field%d", i)
		r.idToName[i] = name
		r.nameToID[name] = uint16(i)
	}

	_, err := r.Insert("one-too-many")
	if !errors.Is(err, internalErrors.ErrAttributeLimitReached) {
		t.Fatalf("expected ErrAttributeLimitReached, got %v", err)
	}
	if r.Len() != MaxFieldID+1 {
		t.Errorf("expected registry left at exactly %d entries, got %d", MaxFieldID+1, r.Len())
	}
}

func TestRegistryCloneIsIndependent(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Insert("title"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clone := r.Clone()
	if _, err := clone.Insert("body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Len() != 1 {
		t.Errorf("expected original registry untouched, got Len() = %d", r.Len())
	}
	if clone.Len() != 2 {
		t.Errorf("expected clone to grow independently, got Len() = %d", clone.Len())
	}
}

func TestRegistryGobRoundTrip(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"id", "title", "tags"} {
		if _, err := r.Insert(name); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	data, err := r.GobEncode()
	if err != nil {
		t.Fatalf("GobEncode failed: %v", err)
	}

	decoded := NewRegistry()
	if err := decoded.GobDecode(data); err != nil {
		t.Fatalf("GobDecode failed: %v", err)
	}

	if decoded.Len() != r.Len() {
		t.Fatalf("expected Len() = %d after round-trip, got %d", r.Len(), decoded.Len())
	}
	for _, name := range []string{"id", "title", "tags"} {
		wantID, _ := r.ID(name)
		gotID, ok := decoded.ID(name)
		if !ok || gotID != wantID {
			t.Errorf("expected ID(%q) = %d after round-trip, got %d, %v", name, wantID, gotID, ok)
		}
	}
}

func TestRemapBatchIsDeterministicByLocalID(t *testing.T) {
	registry := NewRegistry()

	batch := BatchFieldMap{
		2: "tags",
		0: "id",
		1: "title",
	}

	mapping, err := RemapBatch(registry, batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "id" (local 0) must be registered before "title" (local 1) before
	// "tags" (local 2), regardless of Go's randomized map iteration.
	idGlobal := mapping[0]
	titleGlobal := mapping[1]
	tagsGlobal := mapping[2]
	if !(idGlobal < titleGlobal && titleGlobal < tagsGlobal) {
		t.Errorf("expected ascending-local-id registration order, got id=%d title=%d tags=%d", idGlobal, titleGlobal, tagsGlobal)
	}
}

func TestRemapBatchReusesExistingRegistryEntries(t *testing.T) {
	registry := NewRegistry()
	existingID, err := registry.Insert("title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mapping, err := RemapBatch(registry, BatchFieldMap{0: "title"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mapping[0] != existingID {
		t.Errorf("expected remap to reuse existing id %d, got %d", existingID, mapping[0])
	}
}

func TestRemapBatchPropagatesAttributeLimit(t *testing.T) {
	registry := &Registry{
		nameToID: make(map[string]uint16, MaxFieldID+1),
		idToName: make([]string, MaxFieldID+1),
	}
	for i := 0; i <= MaxFieldID; i++ {
		name := fmt.Sprintf("field%d", i)
		registry.idToName[i] = name
		registry.nameToID[name] = uint16(i)
	}

	_, err := RemapBatch(registry, BatchFieldMap{0: "brand-new-field"})
	if !errors.Is(err, internalErrors.ErrAttributeLimitReached) {
		t.Fatalf("expected ErrAttributeLimitReached, got %v", err)
	}
}
