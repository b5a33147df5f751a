package transform

import (
	"bytes"
	"testing"

	"github.com/gcbaptista/docingest/internal/batch"
	"github.com/gcbaptista/docingest/internal/docids"
	"github.com/gcbaptista/docingest/internal/fielddist"
	"github.com/gcbaptista/docingest/internal/fieldmap"
)

func TestRemapReassignsFieldIDsAndPopulatesFlattened(t *testing.T) {
	oldRegistry := fieldmap.NewRegistry()
	cfg := Config{
		Registry:     oldRegistry,
		ExternalIDs:  docids.NewExternalIDMap(),
		Allocator:    docids.NewAllocator(),
		Distribution: fielddist.New(),
		Autogenerate: true,
		UpdateMethod: ReplaceDocuments,
	}
	p := New(cfg)

	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{
		{"id": "a", "meta": map[string]interface{}{"author": "x"}, "title": "t"},
	})
	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	if _, err := p.Finalize(&originalOut, &flattenedOut, nil); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	newRegistry := fieldmap.NewRegistry()
	// Insert in a different order than the old registry assigned, so the
	// remap must actually translate ids rather than reuse them verbatim.
	newRegistry.Insert("title")
	newRegistry.Insert("meta.author")
	newRegistry.Insert("id")

	var remappedOriginal, remappedFlattened bytes.Buffer
	count, err := Remap(&originalOut, oldRegistry, newRegistry, &remappedOriginal, &remappedFlattened)
	if err != nil {
		t.Fatalf("Remap() error: %v", err)
	}
	if count != 1 {
		t.Fatalf("Remap() count = %d, want 1", count)
	}

	originalEntries := readAllStream(t, &remappedOriginal)
	flattenedEntries := readAllStream(t, &remappedFlattened)
	if len(originalEntries) != 1 {
		t.Fatalf("expected 1 remapped original document, got %d", len(originalEntries))
	}
	if len(flattenedEntries) != 1 {
		t.Fatalf("expected the flattened stream to be populated by Remap too, got %d entries", len(flattenedEntries))
	}

	titleID, _ := newRegistry.ID("title")
	value, ok := originalEntries[0].Record.Get(titleID)
	if !ok || string(value) != `"t"` {
		t.Errorf("expected remapped original record to carry title=t under its new id, got %s, %v", value, ok)
	}

	authorID, _ := newRegistry.ID("meta.author")
	flatValue, ok := flattenedEntries[0].Record.Get(authorID)
	if !ok || string(flatValue) != `"x"` {
		t.Errorf("expected remapped flattened record to carry meta.author=x under its new id, got %s, %v", flatValue, ok)
	}
}

// TestRemapDropsFieldsAbsentFromNewRegistry checks that a newRegistry
// missing a name the old registry had causes Remap to drop that field
// from the document rather than add it to newRegistry.
func TestRemapDropsFieldsAbsentFromNewRegistry(t *testing.T) {
	oldRegistry := fieldmap.NewRegistry()
	cfg := Config{
		Registry:     oldRegistry,
		ExternalIDs:  docids.NewExternalIDMap(),
		Allocator:    docids.NewAllocator(),
		Distribution: fielddist.New(),
		Autogenerate: true,
		UpdateMethod: ReplaceDocuments,
	}
	p := New(cfg)

	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{
		{"id": "a", "title": "t", "legacy": "drop-me"},
	})
	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	if _, err := p.Finalize(&originalOut, &flattenedOut, nil); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	// newRegistry has no entry for "legacy": it must be dropped, not
	// silently registered.
	newRegistry := fieldmap.NewRegistry()
	newRegistry.Insert("id")
	newRegistry.Insert("title")

	var remappedOriginal, remappedFlattened bytes.Buffer
	count, err := Remap(&originalOut, oldRegistry, newRegistry, &remappedOriginal, &remappedFlattened)
	if err != nil {
		t.Fatalf("Remap() error: %v", err)
	}
	if count != 1 {
		t.Fatalf("Remap() count = %d, want 1", count)
	}

	if _, ok := newRegistry.ID("legacy"); ok {
		t.Fatalf("expected \"legacy\" to remain unregistered in newRegistry, got an id")
	}

	originalEntries := readAllStream(t, &remappedOriginal)
	if len(originalEntries) != 1 {
		t.Fatalf("expected 1 remapped original document, got %d", len(originalEntries))
	}
	if len(originalEntries[0].Record) != 2 {
		t.Errorf("expected the remapped record to carry only id and title, got %d fields", len(originalEntries[0].Record))
	}

	titleID, _ := newRegistry.ID("title")
	if value, ok := originalEntries[0].Record.Get(titleID); !ok || string(value) != `"t"` {
		t.Errorf("expected title=t to survive the remap, got %s, %v", value, ok)
	}
}

// TestDiscoverUsedFields checks that a field no longer present in any
// stored document is excluded from the registry it builds, matching
// what IndexInstance.RemapFields relies on to compact ids.
func TestDiscoverUsedFields(t *testing.T) {
	oldRegistry := fieldmap.NewRegistry()
	cfg := Config{
		Registry:     oldRegistry,
		ExternalIDs:  docids.NewExternalIDMap(),
		Allocator:    docids.NewAllocator(),
		Distribution: fielddist.New(),
		Autogenerate: true,
		UpdateMethod: ReplaceDocuments,
	}
	p := New(cfg)

	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{
		{"id": "a", "title": "t"},
	})
	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	if _, err := p.Finalize(&originalOut, &flattenedOut, nil); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	// Register a name no document ever used, simulating a field orphaned
	// by deletions or partial updates since the registry was built.
	oldRegistry.Insert("orphaned")

	newRegistry, err := DiscoverUsedFields(&originalOut, oldRegistry)
	if err != nil {
		t.Fatalf("DiscoverUsedFields() error: %v", err)
	}

	if _, ok := newRegistry.ID("orphaned"); ok {
		t.Errorf("expected \"orphaned\" to be excluded from the discovered registry")
	}
	if _, ok := newRegistry.ID("title"); !ok {
		t.Errorf("expected \"title\" to be present in the discovered registry")
	}
	if _, ok := newRegistry.ID("id"); !ok {
		t.Errorf("expected \"id\" to be present in the discovered registry")
	}
}
