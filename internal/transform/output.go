// Package transform implements the document ingestion pipeline: turning
// a batch of raw JSON documents into the field-id-addressed, sorted,
// deduplicated record streams an index stores and searches over.
package transform

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/gcbaptista/docingest/internal/docids"
	"github.com/gcbaptista/docingest/internal/fielddist"
	"github.com/gcbaptista/docingest/internal/fieldmap"
)

// Output is the result of a completed Finalize call: the
// updated index-wide bookkeeping plus the documents actually written to
// the caller's output streams.
type Output struct {
	PrimaryKey           string
	FieldsIDsMap         *fieldmap.Registry
	FieldDistribution    fielddist.Distribution
	ExternalDocumentsIDs *docids.ExternalIDMap
	NewDocumentIDs       *roaring.Bitmap
	ReplacedDocumentIDs  *roaring.Bitmap
	DocumentsCount       uint64
}
