package transform

import (
	"bytes"
	"io"
	"testing"

	"github.com/gcbaptista/docingest/internal/batch"
	"github.com/gcbaptista/docingest/internal/docids"
	"github.com/gcbaptista/docingest/internal/fielddist"
	"github.com/gcbaptista/docingest/internal/fieldmap"
	"github.com/gcbaptista/docingest/internal/obkv"
)

func newTestConfig() Config {
	return Config{
		Registry:        fieldmap.NewRegistry(),
		ExternalIDs:     docids.NewExternalIDMap(),
		Allocator:       docids.NewAllocator(),
		Distribution:    fielddist.New(),
		Autogenerate:    true,
		UpdateMethod:    ReplaceDocuments,
		MaxSortMemory:   0,
		SortCompression: "",
	}
}

// fakePriorRecords is a PriorRecordSource backed by a plain map, used to
// simulate a store.DocumentTable holding records from before the
// current Ingest session.
type fakePriorRecords map[uint32][2][]byte

func (f fakePriorRecords) Get(internalID uint32) (original, flattened []byte, ok bool) {
	pair, ok := f[internalID]
	if !ok {
		return nil, nil, false
	}
	return pair[0], pair[1], true
}

func readAllStream(t *testing.T, r io.Reader) []obkv.StreamEntry {
	t.Helper()
	var entries []obkv.StreamEntry
	for {
		entry, err := obkv.ReadStream(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadStream() error: %v", err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestPipelineIngestAndFinalizeAssignsSequentialIDs(t *testing.T) {
	cfg := newTestConfig()
	p := New(cfg)

	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{
		{"id": "a", "title": "one"},
		{"id": "b", "title": "two"},
	})

	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	output, err := p.Finalize(&originalOut, &flattenedOut, nil)
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	if output.DocumentsCount != 2 {
		t.Errorf("DocumentsCount = %d, want 2", output.DocumentsCount)
	}
	if output.PrimaryKey != "id" {
		t.Errorf("PrimaryKey = %q, want \"id\"", output.PrimaryKey)
	}
	if output.NewDocumentIDs.GetCardinality() != 2 {
		t.Errorf("NewDocumentIDs cardinality = %d, want 2", output.NewDocumentIDs.GetCardinality())
	}
	if output.ReplacedDocumentIDs.GetCardinality() != 0 {
		t.Errorf("ReplacedDocumentIDs cardinality = %d, want 0", output.ReplacedDocumentIDs.GetCardinality())
	}

	entries := readAllStream(t, &originalOut)
	if len(entries) != 2 {
		t.Fatalf("expected 2 stored documents, got %d", len(entries))
	}
	if entries[0].InternalID >= entries[1].InternalID {
		t.Errorf("expected ascending internal ids in the stream, got %d then %d", entries[0].InternalID, entries[1].InternalID)
	}

	for _, name := range []string{"title"} {
		if output.FieldDistribution.Count(name) != 2 {
			t.Errorf("FieldDistribution.Count(%q) = %d, want 2", name, output.FieldDistribution.Count(name))
		}
	}
}

func TestPipelineReplaceDocumentsKeepsLatestValue(t *testing.T) {
	cfg := newTestConfig()
	cfg.UpdateMethod = ReplaceDocuments
	p := New(cfg)

	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{
		{"id": "a", "title": "old"},
		{"id": "a", "title": "new"},
	})

	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	output, err := p.Finalize(&originalOut, &flattenedOut, nil)
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	if output.DocumentsCount != 1 {
		t.Fatalf("DocumentsCount = %d, want 1 (duplicate external id collapses to one document)", output.DocumentsCount)
	}
	if output.NewDocumentIDs.GetCardinality() != 1 {
		t.Errorf("NewDocumentIDs cardinality = %d, want 1", output.NewDocumentIDs.GetCardinality())
	}
	if output.ReplacedDocumentIDs.GetCardinality() != 1 {
		t.Errorf("ReplacedDocumentIDs cardinality = %d, want 1 (second occurrence replaces the first within the same batch)", output.ReplacedDocumentIDs.GetCardinality())
	}

	entries := readAllStream(t, &originalOut)
	if len(entries) != 1 {
		t.Fatalf("expected 1 stored document, got %d", len(entries))
	}

	titleID, ok := output.FieldsIDsMap.ID("title")
	if !ok {
		t.Fatalf("expected \"title\" to be registered")
	}
	value, ok := entries[0].Record.Get(titleID)
	if !ok || string(value) != `"new"` {
		t.Errorf("expected the latest value to win, got %s", value)
	}
}

func TestPipelineExistingExternalIDIsTreatedAsReplace(t *testing.T) {
	cfg := newTestConfig()
	cfg.ExternalIDs.Insert("a", 7)
	cfg.Allocator = docids.NewAllocatorFromUsed(nil)
	p := New(cfg)

	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{
		{"id": "a", "title": "updated"},
	})
	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	output, err := p.Finalize(&originalOut, &flattenedOut, nil)
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	if output.NewDocumentIDs.GetCardinality() != 0 {
		t.Errorf("expected no new ids, got cardinality %d", output.NewDocumentIDs.GetCardinality())
	}
	if !output.ReplacedDocumentIDs.Contains(7) {
		t.Errorf("expected internal id 7 to be marked replaced")
	}
}

func TestPipelineAutogeneratesIDWhenMissing(t *testing.T) {
	cfg := newTestConfig()
	cfg.Autogenerate = true
	p := New(cfg)

	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{{"title": "x"}})
	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	output, err := p.Finalize(&originalOut, &flattenedOut, nil)
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if output.PrimaryKey != "id" {
		t.Errorf("PrimaryKey = %q, want \"id\"", output.PrimaryKey)
	}
	if len(output.ExternalDocumentsIDs.SortedExternalIDs()) != 1 {
		t.Fatalf("expected exactly one autogenerated external id")
	}
}

func TestPipelineFinalizeBeforeIngestFails(t *testing.T) {
	p := New(newTestConfig())
	var out bytes.Buffer
	if _, err := p.Finalize(&out, &out, nil); err == nil {
		t.Fatal("expected an error calling Finalize before Ingest")
	}
}

func TestPipelineFlattensNestedDocuments(t *testing.T) {
	cfg := newTestConfig()
	p := New(cfg)

	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{
		{"id": "a", "meta": map[string]interface{}{"author": "x"}},
	})
	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	output, err := p.Finalize(&originalOut, &flattenedOut, nil)
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	if output.FieldDistribution.Count("meta.author") != 1 {
		t.Errorf("expected flattened path \"meta.author\" in the distribution, got %v", output.FieldDistribution)
	}

	entries := readAllStream(t, &flattenedOut)
	if len(entries) != 1 {
		t.Fatalf("expected 1 flattened document, got %d", len(entries))
	}
	authorID, ok := output.FieldsIDsMap.ID("meta.author")
	if !ok {
		t.Fatalf("expected \"meta.author\" to be registered")
	}
	if _, ok := entries[0].Record.Get(authorID); !ok {
		t.Errorf("expected the flattened record to carry meta.author")
	}
}

// TestPipelineUpdateMergesAgainstPriorStoredRecord exercises a document
// that existed before this Ingest session (not merely earlier in the
// same batch): an update naming only "u" must still come out carrying
// "t" from the record already on disk, and the field distribution must
// net the merge out rather than double-count "t".
func TestPipelineUpdateMergesAgainstPriorStoredRecord(t *testing.T) {
	registry := fieldmap.NewRegistry()
	externalIDs := docids.NewExternalIDMap()
	externalIDs.Insert("a", 7)

	priorRecord, err := encodeDocument(registry, map[string]interface{}{"id": "a", "t": "x"})
	if err != nil {
		t.Fatalf("encodeDocument() error: %v", err)
	}

	cfg := newTestConfig()
	cfg.Registry = registry
	cfg.ExternalIDs = externalIDs
	cfg.Allocator = docids.NewAllocatorFromUsed(nil)
	cfg.UpdateMethod = UpdateDocuments
	cfg.PriorRecords = fakePriorRecords{7: {priorRecord, priorRecord}}
	cfg.Distribution.Increment("id")
	cfg.Distribution.Increment("t")

	p := New(cfg)
	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{
		{"id": "a", "u": "q"},
	})
	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	output, err := p.Finalize(&originalOut, &flattenedOut, nil)
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	entries := readAllStream(t, &originalOut)
	if len(entries) != 1 {
		t.Fatalf("expected 1 stored document, got %d", len(entries))
	}

	tID, ok := registry.ID("t")
	if !ok {
		t.Fatalf("expected \"t\" to remain registered")
	}
	if value, ok := entries[0].Record.Get(tID); !ok || string(value) != `"x"` {
		t.Errorf("expected the prior field \"t\" to survive the update merge, got %s, %v", value, ok)
	}

	uID, ok := registry.ID("u")
	if !ok {
		t.Fatalf("expected \"u\" to be registered")
	}
	if value, ok := entries[0].Record.Get(uID); !ok || string(value) != `"q"` {
		t.Errorf("expected the new field \"u\" to be present, got %s, %v", value, ok)
	}

	if output.FieldDistribution.Count("id") != 1 {
		t.Errorf(`FieldDistribution.Count("id") = %d, want 1`, output.FieldDistribution.Count("id"))
	}
	if output.FieldDistribution.Count("t") != 1 {
		t.Errorf(`FieldDistribution.Count("t") = %d, want 1 (unchanged by the merge)`, output.FieldDistribution.Count("t"))
	}
	if output.FieldDistribution.Count("u") != 1 {
		t.Errorf(`FieldDistribution.Count("u") = %d, want 1`, output.FieldDistribution.Count("u"))
	}
}

// TestPipelineReplaceDiscardsPriorStoredRecord checks the ReplaceDocuments
// side of the same mechanism: a prior on-disk record must lose entirely
// to a same-external-id document in the new batch, not merge with it.
func TestPipelineReplaceDiscardsPriorStoredRecord(t *testing.T) {
	registry := fieldmap.NewRegistry()
	externalIDs := docids.NewExternalIDMap()
	externalIDs.Insert("a", 7)

	priorRecord, err := encodeDocument(registry, map[string]interface{}{"id": "a", "t": "x"})
	if err != nil {
		t.Fatalf("encodeDocument() error: %v", err)
	}

	cfg := newTestConfig()
	cfg.Registry = registry
	cfg.ExternalIDs = externalIDs
	cfg.Allocator = docids.NewAllocatorFromUsed(nil)
	cfg.UpdateMethod = ReplaceDocuments
	cfg.PriorRecords = fakePriorRecords{7: {priorRecord, priorRecord}}

	p := New(cfg)
	docs := batch.NewJSONArrayReaderFromDocuments([]map[string]interface{}{
		{"id": "a", "u": "q"},
	})
	if err := p.Ingest(docs, nil); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	var originalOut, flattenedOut bytes.Buffer
	_, err = p.Finalize(&originalOut, &flattenedOut, nil)
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	entries := readAllStream(t, &originalOut)
	if len(entries) != 1 {
		t.Fatalf("expected 1 stored document, got %d", len(entries))
	}

	if tID, ok := registry.ID("t"); ok {
		if _, ok := entries[0].Record.Get(tID); ok {
			t.Errorf("expected \"t\" from the prior stored record to be discarded on replace")
		}
	}

	uID, ok := registry.ID("u")
	if !ok {
		t.Fatalf("expected \"u\" to be registered")
	}
	if _, ok := entries[0].Record.Get(uID); !ok {
		t.Errorf("expected the new field \"u\" to be present")
	}
}
