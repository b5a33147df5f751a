package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/gcbaptista/docingest/internal/batch"
	"github.com/gcbaptista/docingest/internal/docids"
	internalErrors "github.com/gcbaptista/docingest/internal/errors"
	"github.com/gcbaptista/docingest/internal/extsort"
	"github.com/gcbaptista/docingest/internal/fielddist"
	"github.com/gcbaptista/docingest/internal/fieldmap"
	"github.com/gcbaptista/docingest/internal/flatten"
	"github.com/gcbaptista/docingest/internal/obkv"
	"github.com/gcbaptista/docingest/internal/primarykey"
	"github.com/gcbaptista/docingest/internal/progress"
)

// UpdateMethod selects how a batch resolves documents that collide on
// the same external id, both against already-indexed documents and
// against other documents within the same batch.
type UpdateMethod string

const (
	// ReplaceDocuments makes the most recently seen document for a
	// given external id win outright, discarding earlier field values.
	ReplaceDocuments UpdateMethod = "replace"
	// UpdateDocuments merges colliding documents field by field, with
	// later documents' fields overriding earlier ones.
	UpdateDocuments UpdateMethod = "update"
)

func (m UpdateMethod) mergeFunc() extsort.MergeFunc {
	if m == UpdateDocuments {
		return extsort.UnionRecords
	}
	return extsort.KeepLatest
}

// State is a Pipeline's position in its ingest/finalize lifecycle.
type State int

const (
	StateFresh State = iota
	StateIngesting
	StateFinalizing
	StateRemapping
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateIngesting:
		return "ingesting"
	case StateFinalizing:
		return "finalizing"
	case StateRemapping:
		return "remapping"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PriorRecordSource looks up the original and flattened records already
// persisted for an internal id, so a replace or update within this
// session can be merged against whatever a prior session already stored
// under the same external id, not just other documents within the
// current batch. Satisfied by *store.DocumentTable.
type PriorRecordSource interface {
	Get(internalID uint32) (original, flattened []byte, ok bool)
}

// Config carries everything a Pipeline needs that is not itself part of
// the document stream: the index's existing bookkeeping and its
// configured update behavior.
type Config struct {
	Registry         *fieldmap.Registry
	ExternalIDs      *docids.ExternalIDMap
	Allocator        *docids.Allocator
	Distribution     fielddist.Distribution
	PriorRecords     PriorRecordSource
	PrimaryKeyName   string // empty if not yet resolved
	Autogenerate     bool
	UpdateMethod     UpdateMethod
	MaxSortMemory    int
	SortCompression  extsort.Codec
	CompressionLevel int
}

// Pipeline drives one ingestion session: one or more Ingest calls
// followed by exactly one Finalize call. Remap is a separate function
// that needs no Pipeline. It is not safe for concurrent use.
type Pipeline struct {
	cfg Config

	state State

	primaryKeyName string
	primaryKeyID   uint16
	resolved       bool

	builder *docids.Builder

	originalSorter  *extsort.Sorter
	flattenedSorter *extsort.Sorter

	// priorFlattened caches, per internal id, the flattened record a
	// prior session already stored, fetched at most once per session so
	// repeated occurrences of the same external id within a batch don't
	// re-insert it or double-count its fields when Finalize decrements
	// them.
	priorFlattened map[uint32][]byte

	newDocumentIDs      *roaring.Bitmap
	replacedDocumentIDs *roaring.Bitmap
}

// New returns a fresh Pipeline over cfg. cfg.Registry, cfg.ExternalIDs,
// cfg.Allocator, and cfg.Distribution are mutated in place as documents
// are ingested.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		cfg:                 cfg,
		state:               StateFresh,
		primaryKeyName:      cfg.PrimaryKeyName,
		resolved:            cfg.PrimaryKeyName != "",
		builder:             docids.NewBuilder(cfg.ExternalIDs),
		priorFlattened:      make(map[uint32][]byte),
		newDocumentIDs:      roaring.New(),
		replacedDocumentIDs: roaring.New(),
	}
}

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() State { return p.state }

func (p *Pipeline) ensureSorters() {
	if p.originalSorter != nil {
		return
	}
	mergeFunc := p.cfg.UpdateMethod.mergeFunc()
	p.originalSorter = extsort.New(extsort.Config{
		MaxMemoryBytes:   p.cfg.MaxSortMemory,
		Codec:            p.cfg.SortCompression,
		CompressionLevel: p.cfg.CompressionLevel,
		Merge:            mergeFunc,
	})
	p.flattenedSorter = extsort.New(extsort.Config{
		MaxMemoryBytes:   p.cfg.MaxSortMemory,
		Codec:            p.cfg.SortCompression,
		CompressionLevel: p.cfg.CompressionLevel,
		Merge:            mergeFunc,
	})
}

// Ingest reads every document out of r, resolving the primary key on
// the very first document seen across the pipeline's lifetime, and
// stages their field-id-addressed encodings into the pipeline's
// external sorters. It may be called more than once to ingest several
// batches into the same session before Finalize.
func (p *Pipeline) Ingest(r batch.Reader, cb progress.Callback) error {
	if p.state != StateFresh && p.state != StateIngesting {
		return fmt.Errorf("transform: Ingest called in state %s", p.state)
	}
	p.state = StateIngesting
	p.ensureSorters()

	total := uint64(0)
	if n := r.Len(); n > 0 {
		total = uint64(n)
	}

	for {
		doc, index, err := r.NextDocumentWithIndex()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.state = StateFailed
			return fmt.Errorf("transform: reading document at index %d: %w", index, err)
		}

		if !p.resolved {
			if err := p.resolvePrimaryKey(doc); err != nil {
				p.state = StateFailed
				return err
			}
		}

		if err := p.ingestDocument(doc); err != nil {
			p.state = StateFailed
			return fmt.Errorf("transform: document at index %d: %w", index, err)
		}

		if cb != nil {
			cb(progress.Event{Step: progress.StepRemapDocumentAddition, Current: uint64(index) + 1, Total: total})
		}
	}
	return nil
}

// resolvePrimaryKey resolves the session's primary key field from the
// first document ingested, using its top-level keys (sorted
// alphabetically, since JSON objects carry no field order of their own)
// as the batch field map §4.C's inference rule scans.
func (p *Pipeline) resolvePrimaryKey(doc map[string]interface{}) error {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batchFields := make(fieldmap.BatchFieldMap, len(keys))
	for i, k := range keys {
		batchFields[uint16(i)] = k
	}

	id, name, err := primarykey.Resolve(p.cfg.Registry, p.primaryKeyName, batchFields, p.cfg.Autogenerate)
	if err != nil {
		return err
	}
	p.primaryKeyID = id
	p.primaryKeyName = name
	p.resolved = true
	return nil
}

func (p *Pipeline) ingestDocument(doc map[string]interface{}) error {
	rawValue, found := doc[p.primaryKeyName]

	var rawBytes []byte
	if found {
		encoded, err := json.Marshal(rawValue)
		if err != nil {
			return err
		}
		rawBytes = encoded
	}

	externalID, autogenValue, err := primarykey.ResolveDocumentID(rawBytes, found, p.primaryKeyName, p.cfg.Autogenerate, doc)
	if err != nil {
		return err
	}
	if autogenValue != nil {
		var decoded interface{}
		if err := json.Unmarshal(autogenValue, &decoded); err != nil {
			return err
		}
		doc[p.primaryKeyName] = decoded
	}

	internalID, replaced := p.builder.Get(externalID)
	if !replaced {
		internalID, err = p.cfg.Allocator.Allocate()
		if err != nil {
			return err
		}
		p.builder.Insert(externalID, internalID)
		p.newDocumentIDs.Add(internalID)
	} else {
		p.replacedDocumentIDs.Add(internalID)

		// externalID was already known before this session started (as
		// opposed to merely colliding with an earlier document in this
		// same batch): fetch its stored record and stage it ahead of
		// the incoming document, so the sorter's merge policy resolves
		// the two exactly as it would two documents within one batch.
		if _, existedBeforeSession := p.cfg.ExternalIDs.Get(externalID); existedBeforeSession {
			if err := p.insertPriorRecord(internalID); err != nil {
				return err
			}
		}
	}

	originalRecord, err := encodeDocument(p.cfg.Registry, doc)
	if err != nil {
		return err
	}
	flattenedRecord, err := encodeDocument(p.cfg.Registry, flatten.Flatten(doc))
	if err != nil {
		return err
	}

	key := internalIDKey(internalID)
	if err := p.originalSorter.Insert(key, originalRecord); err != nil {
		return err
	}
	if err := p.flattenedSorter.Insert(key, flattenedRecord); err != nil {
		return err
	}
	return nil
}

// insertPriorRecord fetches internalID's previously stored original and
// flattened records through cfg.PriorRecords and stages them into this
// session's sorters, once per internal id. A no-op if no prior-record
// source was configured, since a pipeline run purely in isolation (as
// in a unit test) has nothing to fetch from.
func (p *Pipeline) insertPriorRecord(internalID uint32) error {
	if p.cfg.PriorRecords == nil {
		return nil
	}
	if _, already := p.priorFlattened[internalID]; already {
		return nil
	}

	original, flattened, ok := p.cfg.PriorRecords.Get(internalID)
	if !ok {
		return internalErrors.NewDatabaseMissingEntryError(internalID)
	}

	key := internalIDKey(internalID)
	if err := p.originalSorter.Insert(key, original); err != nil {
		return err
	}
	if err := p.flattenedSorter.Insert(key, flattened); err != nil {
		return err
	}
	p.priorFlattened[internalID] = flattened
	return nil
}

// Finalize drains the pipeline's sorters, writing the deduplicated,
// field-id-addressed record streams to originalOut and flattenedOut,
// and returns the resulting index-wide bookkeeping.
func (p *Pipeline) Finalize(originalOut, flattenedOut io.Writer, cb progress.Callback) (*Output, error) {
	if p.state != StateIngesting {
		return nil, fmt.Errorf("transform: Finalize called in state %s", p.state)
	}
	p.state = StateFinalizing

	p.builder.Commit()

	// Net out every replaced document's old field set before the
	// drains below add its new one back in, so cfg.Distribution keeps
	// reflecting exactly the fields present in the stored documents
	// rather than growing without bound across replaces and updates.
	for _, flattened := range p.priorFlattened {
		if err := p.decrementPriorFields(flattened); err != nil {
			p.state = StateFailed
			return nil, fmt.Errorf("transform: decrementing replaced field distribution: %w", err)
		}
	}

	// A second, internal-id-keyed pass over the first stage's already
	// merged output. Every external id was deduplicated to a single
	// internal id above, so this pass should never actually observe a
	// duplicate key; ForbidDuplicates exists to catch it as the
	// invariant violation it would be, not to perform any real merging.
	finalMerge := func() extsort.Config {
		return extsort.Config{
			MaxMemoryBytes:   p.cfg.MaxSortMemory,
			Codec:            p.cfg.SortCompression,
			CompressionLevel: p.cfg.CompressionLevel,
			Merge:            forbidDuplicateInternalIDs,
		}
	}
	finalOriginal := extsort.New(finalMerge())
	finalFlattened := extsort.New(finalMerge())

	if err := drainInto(p.originalSorter, finalOriginal); err != nil {
		p.state = StateFailed
		return nil, fmt.Errorf("transform: merging original documents by internal id: %w", err)
	}
	if err := drainInto(p.flattenedSorter, finalFlattened); err != nil {
		p.state = StateFailed
		return nil, fmt.Errorf("transform: merging flattened documents by internal id: %w", err)
	}

	count, err := mergeSortedStream(finalOriginal, originalOut, nil, cb)
	if err != nil {
		p.state = StateFailed
		return nil, fmt.Errorf("transform: finalizing original documents: %w", err)
	}
	if _, err := mergeSortedStream(finalFlattened, flattenedOut, &distributionSink{registry: p.cfg.Registry, dist: p.cfg.Distribution}, nil); err != nil {
		p.state = StateFailed
		return nil, fmt.Errorf("transform: finalizing flattened documents: %w", err)
	}

	p.state = StateDone
	return &Output{
		PrimaryKey:           p.primaryKeyName,
		FieldsIDsMap:         p.cfg.Registry,
		FieldDistribution:    p.cfg.Distribution,
		ExternalDocumentsIDs: p.cfg.ExternalIDs,
		NewDocumentIDs:       p.newDocumentIDs,
		ReplacedDocumentIDs:  p.replacedDocumentIDs,
		DocumentsCount:       count,
	}, nil
}

// decrementPriorFields removes one count, per field present in the
// given previously stored flattened record, from cfg.Distribution.
func (p *Pipeline) decrementPriorFields(flattened []byte) error {
	record, err := obkv.Decode(flattened)
	if err != nil {
		return err
	}
	for _, field := range record {
		if name, ok := p.cfg.Registry.Name(field.ID); ok {
			p.cfg.Distribution.Decrement(name)
		}
	}
	return nil
}

// distributionSink increments a Distribution using field names resolved
// through registry, so the flattened-document pass in Finalize can
// count by name rather than raw field id.
type distributionSink struct {
	registry *fieldmap.Registry
	dist     fielddist.Distribution
}

func (s *distributionSink) increment(record obkv.Record) {
	if s == nil {
		return
	}
	for _, field := range record {
		if name, ok := s.registry.Name(field.ID); ok {
			s.dist.Increment(name)
		}
	}
}

// mergeSortedStream drains sorter, writing each merged record to out in
// the record-stream layout and, when sink is non-nil, incrementing its
// distribution once per field present in each final record.
func mergeSortedStream(sorter *extsort.Sorter, out io.Writer, sink *distributionSink, cb progress.Callback) (uint64, error) {
	it, err := sorter.Drain()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var count uint64
	for {
		key, value, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}

		internalID := decodeInternalIDKey(key)
		if err := obkv.WriteStream(out, internalID, value); err != nil {
			return 0, err
		}

		if sink != nil {
			record, err := obkv.Decode(value)
			if err != nil {
				return 0, err
			}
			sink.increment(record)
		}

		count++
		if cb != nil {
			cb(progress.Event{Step: progress.StepComputeIdsAndMergeDocuments, Current: count})
		}
	}
	return count, nil
}

// drainInto drains src in merged key order and reinserts every
// resulting (key, value) pair into dst, letting dst apply a distinct
// merge policy over src's already-deduplicated output.
func drainInto(src, dst *extsort.Sorter) error {
	it, err := src.Drain()
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		key, value, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := dst.Insert(key, value); err != nil {
			return err
		}
	}
	return nil
}

// forbidDuplicateInternalIDs is the final sort stage's merge policy: it
// is only ever invoked for a key with more than one value, which here
// means the same internal id reached the final stage twice. That can
// only happen if external-id deduplication upstream failed to collapse
// two documents onto a single internal id first.
func forbidDuplicateInternalIDs(key []byte, _ [][]byte) ([]byte, error) {
	return nil, internalErrors.NewIndexingMergingKeysError(decodeInternalIDKey(key))
}

func internalIDKey(id uint32) []byte {
	return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

func decodeInternalIDKey(key []byte) uint32 {
	return uint32(key[0])<<24 | uint32(key[1])<<16 | uint32(key[2])<<8 | uint32(key[3])
}

func encodeDocument(registry *fieldmap.Registry, doc map[string]interface{}) ([]byte, error) {
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]obkv.Field, 0, len(names))
	for _, name := range names {
		id, err := registry.Insert(name)
		if err != nil {
			return nil, err
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
