package engine

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gcbaptista/docingest/config"
	"github.com/gcbaptista/docingest/internal/batch"
	"github.com/gcbaptista/docingest/internal/docids"
	internalErrors "github.com/gcbaptista/docingest/internal/errors"
	"github.com/gcbaptista/docingest/internal/fielddist"
	"github.com/gcbaptista/docingest/internal/fieldmap"
	"github.com/gcbaptista/docingest/internal/obkv"
	"github.com/gcbaptista/docingest/internal/progress"
	"github.com/gcbaptista/docingest/internal/transform"
	"github.com/gcbaptista/docingest/model"
	"github.com/gcbaptista/docingest/services"
	"github.com/gcbaptista/docingest/store"
)

// IndexInstance holds all the per-index state the transform pipeline
// reads from and writes into: the field registry, the external id map,
// the internal id allocator, the field distribution, the resolved
// primary key, and the document table itself. It implements
// services.IndexAccessor.
type IndexInstance struct {
	settings     *config.IndexSettings
	Registry     *fieldmap.Registry
	ExternalIDs  *docids.ExternalIDMap
	Allocator    *docids.Allocator
	Distribution fielddist.Distribution
	DocumentTable *store.DocumentTable
}

// NewIndexInstance creates and initializes a new, empty IndexInstance.
func NewIndexInstance(settings config.IndexSettings) (*IndexInstance, error) {
	if settings.Name == "" {
		return nil, fmt.Errorf("index name cannot be empty in settings")
	}

	return &IndexInstance{
		settings:      &settings,
		Registry:      fieldmap.NewRegistry(),
		ExternalIDs:   docids.NewExternalIDMap(),
		Allocator:     docids.NewAllocator(),
		Distribution:  fielddist.New(),
		DocumentTable: store.NewDocumentTable(),
	}, nil
}

// AddDocuments runs docs through a transform pipeline against this
// instance's current bookkeeping, merges the result into the document
// table, and updates the instance's registry, external id map,
// allocator, and field distribution in place.
func (i *IndexInstance) AddDocuments(docs []model.Document, cb progress.Callback) (services.IngestResult, error) {
	readerDocs := make([]map[string]interface{}, len(docs))
	for idx, d := range docs {
		readerDocs[idx] = d
	}
	return i.ingest(newDocumentReader(readerDocs), cb)
}

// AddDocumentsFromReader behaves like AddDocuments but reads its batch
// from a raw JSON array stream, for callers that want to avoid
// buffering the whole request body into a []model.Document up front.
func (i *IndexInstance) AddDocumentsFromReader(r io.Reader, cb progress.Callback) (services.IngestResult, error) {
	batchReader, err := batch.NewJSONArrayReader(r, -1)
	if err != nil {
		return services.IngestResult{}, fmt.Errorf("index '%s': %w", i.settings.Name, err)
	}
	return i.ingest(batchReader, cb)
}

func (i *IndexInstance) ingest(r batch.Reader, cb progress.Callback) (services.IngestResult, error) {
	pipeline := transform.New(transform.Config{
		Registry:         i.Registry,
		ExternalIDs:      i.ExternalIDs,
		Allocator:        i.Allocator,
		Distribution:     i.Distribution,
		PriorRecords:     i.DocumentTable,
		PrimaryKeyName:   i.settings.PrimaryKey,
		Autogenerate:     i.settings.AutogenerateDocIDs,
		UpdateMethod:     i.settings.UpdateMethod,
		MaxSortMemory:    i.settings.MaxMemory,
		SortCompression:  i.settings.ChunkCompressionType,
		CompressionLevel: i.settings.ChunkCompressionLevel,
	})

	if err := pipeline.Ingest(r, cb); err != nil {
		return services.IngestResult{}, fmt.Errorf("index '%s': %w", i.settings.Name, err)
	}

	var originalOut, flattenedOut bytes.Buffer
	output, err := pipeline.Finalize(&originalOut, &flattenedOut, cb)
	if err != nil {
		return services.IngestResult{}, fmt.Errorf("index '%s': %w", i.settings.Name, err)
	}

	if err := i.DocumentTable.LoadStreams(&originalOut, &flattenedOut); err != nil {
		return services.IngestResult{}, fmt.Errorf("index '%s': %w", i.settings.Name, err)
	}

	// output.FieldDistribution is i.Distribution itself: Finalize
	// decrements replaced documents' old fields and increments the new
	// ones directly on the instance's running distribution.
	i.settings.PrimaryKey = output.PrimaryKey

	return services.IngestResult{
		PrimaryKey:        output.PrimaryKey,
		DocumentsCount:    output.DocumentsCount,
		NewDocuments:      output.NewDocumentIDs.GetCardinality(),
		ReplacedDocuments: output.ReplacedDocumentIDs.GetCardinality(),
	}, nil
}

// RemapFields rebuilds every stored document's field-id encoding under a
// fresh registry, compacting field ids after churn from repeated
// partial updates or deletions. It does not change the document set.
func (i *IndexInstance) RemapFields() error {
	var originalIn bytes.Buffer
	for id, record := range i.DocumentTable.Original {
		if err := obkv.WriteStream(&originalIn, id, record); err != nil {
			return fmt.Errorf("index '%s': %w", i.settings.Name, err)
		}
	}
	originalBytes := originalIn.Bytes()

	// Flattened records carry dotted field names that no original record
	// holds; scan them as well so the re-flattened output keeps them.
	discoverIn := bytes.NewBuffer(append([]byte(nil), originalBytes...))
	for id, record := range i.DocumentTable.Flattened {
		if err := obkv.WriteStream(discoverIn, id, record); err != nil {
			return fmt.Errorf("index '%s': %w", i.settings.Name, err)
		}
	}

	newRegistry, err := transform.DiscoverUsedFields(discoverIn, i.Registry)
	if err != nil {
		return fmt.Errorf("index '%s': %w", i.settings.Name, err)
	}

	var originalOut, flattenedOut bytes.Buffer
	if _, err := transform.Remap(bytes.NewReader(originalBytes), i.Registry, newRegistry, &originalOut, &flattenedOut); err != nil {
		return fmt.Errorf("index '%s': %w", i.settings.Name, err)
	}

	fresh := store.NewDocumentTable()
	if err := fresh.LoadStreams(&originalOut, &flattenedOut); err != nil {
		return fmt.Errorf("index '%s': %w", i.settings.Name, err)
	}

	i.Registry = newRegistry
	i.DocumentTable = fresh
	return nil
}

// DeleteAllDocuments clears every document from this instance while
// preserving the resolved primary key and field registry.
func (i *IndexInstance) DeleteAllDocuments() error {
	i.DocumentTable = store.NewDocumentTable()
	i.ExternalIDs = docids.NewExternalIDMap()
	i.Allocator = docids.NewAllocator()
	i.Distribution = fielddist.New()
	return nil
}

// DeleteDocument removes the document stored under externalID, if any.
func (i *IndexInstance) DeleteDocument(externalID string) error {
	internalID, ok := i.ExternalIDs.Get(externalID)
	if !ok {
		return internalErrors.NewDocumentNotFoundError(externalID, i.settings.Name)
	}
	i.DocumentTable.Delete(internalID)
	i.ExternalIDs.Delete(externalID)
	return nil
}

// GetDocument decodes and returns the stored document for externalID.
func (i *IndexInstance) GetDocument(externalID string) (model.Document, bool, error) {
	internalID, ok := i.ExternalIDs.Get(externalID)
	if !ok {
		return nil, false, nil
	}
	original, _, ok := i.DocumentTable.Get(internalID)
	if !ok {
		return nil, false, nil
	}
	doc, err := decodeOriginalRecord(i.Registry, original)
	if err != nil {
		return nil, false, fmt.Errorf("index '%s': %w", i.settings.Name, err)
	}
	return doc, true, nil
}

// DocumentCount returns the number of documents currently stored.
func (i *IndexInstance) DocumentCount() int {
	return i.DocumentTable.Len()
}

// Settings returns the configuration settings for this index.
func (i *IndexInstance) Settings() config.IndexSettings {
	return *i.settings
}
