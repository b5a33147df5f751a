// Package progress defines the step taxonomy the transform pipeline
// reports through during a long-running ingestion (§5).
package progress

// Step names a stage of document ingestion. The first two are produced
// by this module's own pipeline; the latter two are reserved for the
// downstream indexing work that consumes a TransformOutput, so a single
// progress callback can narrate an entire add-documents operation.
type Step string

const (
	// StepRemapDocumentAddition covers reading the batch, resolving the
	// primary key, allocating or reusing internal ids, flattening
	// documents, and staging them into the pipeline's sorters.
	StepRemapDocumentAddition Step = "remap_document_addition"

	// StepComputeIdsAndMergeDocuments covers draining the sorters,
	// merging duplicate documents, and writing the final original
	// record stream.
	StepComputeIdsAndMergeDocuments Step = "compute_ids_and_merge_documents"

	// StepIndexDocuments is reserved for the downstream stage that
	// builds search-time structures from a TransformOutput.
	StepIndexDocuments Step = "index_documents"

	// StepMergeDataIntoFinalDatabase is reserved for the downstream
	// stage that commits indexed data into the persistent store.
	StepMergeDataIntoFinalDatabase Step = "merge_data_into_final_database"
)

// Event reports progress through a Step. Current and Total describe
// work units completed so far within the step; Total is 0 when the
// total is not known in advance (e.g. a streaming batch source).
type Event struct {
	Step    Step
	Current uint64
	Total   uint64
}

// Callback receives a monotonically increasing sequence of Events for a
// single ingestion operation: StepIndex never decreases across
// successive calls for the same operation.
type Callback func(Event)

// StepIndex returns the step's fixed position in the overall
// add-documents pipeline, for callers that want to render a "step N of
// 4" style indicator.
func StepIndex(step Step) int {
	switch step {
	case StepRemapDocumentAddition:
		return 0
	case StepComputeIdsAndMergeDocuments:
		return 1
	case StepIndexDocuments:
		return 2
	case StepMergeDataIntoFinalDatabase:
		return 3
	default:
		return -1
	}
}
