package engine

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/gcbaptista/docingest/config"
	"github.com/gcbaptista/docingest/model"
)

func createTestDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "engine_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.RemoveAll(dir); err != nil {
			t.Logf("failed to remove test directory: %v", err)
		}
	})
	return dir
}

func newTestEngine(t *testing.T) *Engine {
	e, err := NewEngine(createTestDir(t))
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func TestEngineCreateAndGetIndex(t *testing.T) {
	e := newTestEngine(t)

	settings := config.DefaultIndexSettings("products")
	if err := e.CreateIndex(settings); err != nil {
		t.Fatalf("CreateIndex() error: %v", err)
	}

	if err := e.CreateIndex(settings); err == nil {
		t.Error("expected error creating a duplicate index")
	}

	accessor, err := e.GetIndex("products")
	if err != nil {
		t.Fatalf("GetIndex() error: %v", err)
	}
	if accessor.DocumentCount() != 0 {
		t.Errorf("DocumentCount() = %d, want 0", accessor.DocumentCount())
	}
}

func TestEngineAddAndGetDocuments(t *testing.T) {
	e := newTestEngine(t)
	settings := config.DefaultIndexSettings("products")
	if err := e.CreateIndex(settings); err != nil {
		t.Fatalf("CreateIndex() error: %v", err)
	}

	accessor, err := e.GetIndex("products")
	if err != nil {
		t.Fatalf("GetIndex() error: %v", err)
	}

	docs := []model.Document{
		{"id": "1", "title": "Keyboard"},
		{"id": "2", "title": "Mouse"},
	}
	result, err := accessor.AddDocuments(docs, nil)
	if err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}
	if result.DocumentsCount != 2 {
		t.Errorf("DocumentsCount = %d, want 2", result.DocumentsCount)
	}

	doc, found, err := accessor.GetDocument("1")
	if err != nil {
		t.Fatalf("GetDocument() error: %v", err)
	}
	if !found {
		t.Fatal("expected document '1' to be found")
	}
	if doc["title"] != "Keyboard" {
		t.Errorf("title = %v, want Keyboard", doc["title"])
	}

	if err := accessor.DeleteDocument("1"); err != nil {
		t.Fatalf("DeleteDocument() error: %v", err)
	}
	if _, found, _ := accessor.GetDocument("1"); found {
		t.Error("expected document '1' to be gone after delete")
	}
}

func TestEnginePersistenceRoundTrip(t *testing.T) {
	dir := createTestDir(t)

	e, err := NewEngine(dir)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	settings := config.DefaultIndexSettings("products")
	if err := e.CreateIndex(settings); err != nil {
		t.Fatalf("CreateIndex() error: %v", err)
	}
	accessor, err := e.GetIndex("products")
	if err != nil {
		t.Fatalf("GetIndex() error: %v", err)
	}
	if _, err := accessor.AddDocuments([]model.Document{{"id": "1", "title": "Keyboard"}}, nil); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}
	if err := e.PersistIndexData("products"); err != nil {
		t.Fatalf("PersistIndexData() error: %v", err)
	}
	e.Stop()

	reloaded, err := NewEngine(dir)
	if err != nil {
		t.Fatalf("NewEngine() reload error: %v", err)
	}
	defer reloaded.Stop()

	reloadedAccessor, err := reloaded.GetIndex("products")
	if err != nil {
		t.Fatalf("GetIndex() after reload error: %v", err)
	}
	doc, found, err := reloadedAccessor.GetDocument("1")
	if err != nil {
		t.Fatalf("GetDocument() after reload error: %v", err)
	}
	if !found || doc["title"] != "Keyboard" {
		t.Errorf("got doc=%v found=%v after reload, want Keyboard/true", doc, found)
	}
}

func TestEngineAddDocumentsAsync(t *testing.T) {
	e := newTestEngine(t)
	settings := config.DefaultIndexSettings("products")
	if err := e.CreateIndex(settings); err != nil {
		t.Fatalf("CreateIndex() error: %v", err)
	}

	body := bytes.NewReader([]byte(`[{"id":"1","title":"Keyboard"},{"id":"2","title":"Mouse"}]`))
	jobID, err := e.AddDocumentsAsync("products", body)
	if err != nil {
		t.Fatalf("AddDocumentsAsync() error: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected non-empty job ID")
	}

	job := waitForJob(t, e, jobID)
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed (error: %s)", job.Status, job.Error)
	}
	if job.Type != model.JobTypeAddDocuments {
		t.Errorf("job type = %s, want %s", job.Type, model.JobTypeAddDocuments)
	}

	accessor, err := e.GetIndex("products")
	if err != nil {
		t.Fatalf("GetIndex() error: %v", err)
	}
	if accessor.DocumentCount() != 2 {
		t.Errorf("DocumentCount() = %d, want 2", accessor.DocumentCount())
	}
}

func TestEngineRemapFieldsAsync(t *testing.T) {
	e := newTestEngine(t)
	settings := config.DefaultIndexSettings("products")
	if err := e.CreateIndex(settings); err != nil {
		t.Fatalf("CreateIndex() error: %v", err)
	}
	accessor, err := e.GetIndex("products")
	if err != nil {
		t.Fatalf("GetIndex() error: %v", err)
	}
	if _, err := accessor.AddDocuments([]model.Document{{"id": "1", "title": "Keyboard"}}, nil); err != nil {
		t.Fatalf("AddDocuments() error: %v", err)
	}

	jobID, err := e.RemapFieldsAsync("products")
	if err != nil {
		t.Fatalf("RemapFieldsAsync() error: %v", err)
	}

	job := waitForJob(t, e, jobID)
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed (error: %s)", job.Status, job.Error)
	}

	doc, found, err := accessor.GetDocument("1")
	if err != nil {
		t.Fatalf("GetDocument() after remap error: %v", err)
	}
	if !found || doc["title"] != "Keyboard" {
		t.Errorf("got doc=%v found=%v after remap, want Keyboard/true", doc, found)
	}
}

func TestEngineRenameAndDeleteIndex(t *testing.T) {
	e := newTestEngine(t)
	settings := config.DefaultIndexSettings("products")
	if err := e.CreateIndex(settings); err != nil {
		t.Fatalf("CreateIndex() error: %v", err)
	}

	if err := e.RenameIndex("products", "products"); err == nil {
		t.Error("expected error renaming an index to its own name")
	}

	if err := e.RenameIndex("products", "catalog"); err != nil {
		t.Fatalf("RenameIndex() error: %v", err)
	}
	if _, err := e.GetIndex("products"); err == nil {
		t.Error("expected old index name to be gone after rename")
	}
	if _, err := e.GetIndex("catalog"); err != nil {
		t.Errorf("GetIndex() for renamed index error: %v", err)
	}

	if err := e.DeleteIndex("catalog"); err != nil {
		t.Fatalf("DeleteIndex() error: %v", err)
	}
	if _, err := e.GetIndex("catalog"); err == nil {
		t.Error("expected index to be gone after delete")
	}
}

func waitForJob(t *testing.T, e *Engine, jobID string) *model.Job {
	t.Helper()
	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			t.Fatalf("timed out waiting for job %s to finish", jobID)
		case <-ticker.C:
			job, err := e.GetJob(jobID)
			if err != nil {
				t.Fatalf("GetJob() error: %v", err)
			}
			if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusFailed {
				return job
			}
		}
	}
}
