package engine

import (
	"encoding/json"
	"io"

	"github.com/gcbaptista/docingest/internal/fieldmap"
	"github.com/gcbaptista/docingest/internal/obkv"
	"github.com/gcbaptista/docingest/model"
)

// documentReader adapts an in-memory slice of documents to
// batch.Reader without requiring callers to go through JSON encoding
// first.
type documentReader struct {
	docs  []map[string]interface{}
	index int
}

func newDocumentReader(docs []map[string]interface{}) *documentReader {
	return &documentReader{docs: docs, index: -1}
}

func (r *documentReader) NextDocumentWithIndex() (map[string]interface{}, int, error) {
	next := r.index + 1
	if next >= len(r.docs) {
		return nil, r.index, io.EOF
	}
	r.index = next
	return r.docs[r.index], r.index, nil
}

func (r *documentReader) Index() int { return r.index }
func (r *documentReader) Len() int   { return len(r.docs) }

// decodeOriginalRecord reconstructs a document map from its
// obkv-encoded original record.
func decodeOriginalRecord(registry *fieldmap.Registry, encoded []byte) (model.Document, error) {
	record, err := obkv.Decode(encoded)
	if err != nil {
		return nil, err
	}
	doc := make(model.Document, len(record))
	for _, field := range record {
		name, ok := registry.Name(field.ID)
		if !ok {
			continue
		}
		var value interface{}
		if err := json.Unmarshal(field.Value, &value); err != nil {
			return nil, err
		}
		doc[name] = value
	}
	return doc, nil
}
