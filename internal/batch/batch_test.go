package batch

import (
	"io"
	"strings"
	"testing"
)

func TestJSONArrayReaderIteratesInOrder(t *testing.T) {
	r, err := NewJSONArrayReader(strings.NewReader(`[{"a":1},{"a":2},{"a":3}]`), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for want := 0; want < 3; want++ {
		doc, index, err := r.NextDocumentWithIndex()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if index != want {
			t.Errorf("index = %d, want %d", index, want)
		}
		if doc["a"] != float64(want+1) {
			t.Errorf("doc[\"a\"] = %v, want %v", doc["a"], want+1)
		}
	}

	if _, _, err := r.NextDocumentWithIndex(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestJSONArrayReaderRejectsNonArray(t *testing.T) {
	_, err := NewJSONArrayReader(strings.NewReader(`{"a":1}`), -1)
	if err == nil {
		t.Fatal("expected an error for a non-array top level value")
	}
}

func TestJSONArrayReaderEmptyArray(t *testing.T) {
	r, err := NewJSONArrayReader(strings.NewReader(`[]`), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := r.NextDocumentWithIndex(); err != io.EOF {
		t.Errorf("expected io.EOF on empty array, got %v", err)
	}
}

func TestBufferedReaderIteratesInOrder(t *testing.T) {
	docs := []map[string]interface{}{{"a": 1}, {"a": 2}}
	r := NewJSONArrayReaderFromDocuments(docs)

	doc, index, err := r.NextDocumentWithIndex()
	if err != nil || index != 0 || doc["a"] != 1 {
		t.Fatalf("unexpected first document: %v, %d, %v", doc, index, err)
	}
	doc, index, err = r.NextDocumentWithIndex()
	if err != nil || index != 1 || doc["a"] != 2 {
		t.Fatalf("unexpected second document: %v, %d, %v", doc, index, err)
	}
	if _, _, err := r.NextDocumentWithIndex(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}
