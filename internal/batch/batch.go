// Package batch defines the contract an ingestion source must satisfy
// to feed the transform pipeline, plus a JSON-array-backed
// implementation of it (§6). Decoding a columnar obkv wire format
// straight from a client connection is out of scope here; this package
// only covers the document-array shape used by the batch CLI and the
// HTTP ingestion endpoint.
package batch

import (
	"encoding/json"
	"fmt"
	"io"
)

// Reader is the contract the transform pipeline's Ingest step consumes
// documents through. NextDocumentWithIndex returns documents in a
// stable, repeatable order (Index always reports the same position for
// the same document on repeated iteration of a fresh Reader), which the
// pipeline relies on for deterministic progress reporting.
type Reader interface {
	// NextDocumentWithIndex decodes the next document in the batch. It
	// returns io.EOF once the batch is exhausted.
	NextDocumentWithIndex() (doc map[string]interface{}, index int, err error)

	// Index returns the index of the document most recently returned by
	// NextDocumentWithIndex, or -1 if none has been returned yet.
	Index() int

	// Len returns the total number of documents in the batch, if known
	// in advance, or -1 if it is not (e.g. a streaming source).
	Len() int
}

// JSONArrayReader reads documents out of a JSON array of objects,
// streamed element by element from an io.Reader.
type JSONArrayReader struct {
	decoder *json.Decoder
	index   int
	length  int
}

// NewJSONArrayReader wraps r, which must produce a single JSON array of
// objects, as a Reader. length may be passed as -1 when the document
// count is not known ahead of time.
func NewJSONArrayReader(r io.Reader, length int) (*JSONArrayReader, error) {
	decoder := json.NewDecoder(r)
	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("batch: reading opening array token: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("batch: expected a JSON array, got %v", token)
	}
	return &JSONArrayReader{decoder: decoder, index: -1, length: length}, nil
}

// NewJSONArrayReaderFromDocuments wraps an already-decoded slice of
// documents as a Reader, for callers that already hold the batch in
// memory.
func NewJSONArrayReaderFromDocuments(docs []map[string]interface{}) *bufferedReader {
	return &bufferedReader{docs: docs, index: -1}
}

// NextDocumentWithIndex implements Reader.
func (r *JSONArrayReader) NextDocumentWithIndex() (map[string]interface{}, int, error) {
	if !r.decoder.More() {
		return nil, r.index, io.EOF
	}
	var doc map[string]interface{}
	if err := r.decoder.Decode(&doc); err != nil {
		return nil, r.index, fmt.Errorf("batch: decoding document at index %d: %w", r.index+1, err)
	}
	r.index++
	return doc, r.index, nil
}

// Index implements Reader.
func (r *JSONArrayReader) Index() int { return r.index }

// Len implements Reader.
func (r *JSONArrayReader) Len() int { return r.length }

// bufferedReader is a Reader over an in-memory slice of documents.
type bufferedReader struct {
	docs  []map[string]interface{}
	index int
}

func (r *bufferedReader) NextDocumentWithIndex() (map[string]interface{}, int, error) {
	next := r.index + 1
	if next >= len(r.docs) {
		return nil, r.index, io.EOF
	}
	r.index = next
	return r.docs[r.index], r.index, nil
}

func (r *bufferedReader) Index() int { return r.index }

func (r *bufferedReader) Len() int { return len(r.docs) }
