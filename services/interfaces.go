// Package services defines the contracts the HTTP and job layers use to
// drive index lifecycle management and document ingestion, independent
// of the concrete engine implementation.
package services

import (
	"io"

	"github.com/gcbaptista/docingest/config"
	"github.com/gcbaptista/docingest/internal/progress"
	"github.com/gcbaptista/docingest/model"
)

// IngestResult summarizes the outcome of a completed AddDocuments call.
type IngestResult struct {
	PrimaryKey        string `json:"primary_key"`
	DocumentsCount    uint64 `json:"documents_count"`
	NewDocuments      uint64 `json:"new_documents"`
	ReplacedDocuments uint64 `json:"replaced_documents"`
}

// Indexer defines operations for adding data to an index.
type Indexer interface {
	AddDocuments(docs []model.Document, cb progress.Callback) (IngestResult, error)
	DeleteAllDocuments() error
	DeleteDocument(externalID string) error
}

// DocumentAccessor defines read access to an index's stored documents.
type DocumentAccessor interface {
	GetDocument(externalID string) (model.Document, bool, error)
	DocumentCount() int
}

// IndexManager manages the lifecycle of indexes.
type IndexManager interface {
	CreateIndex(settings config.IndexSettings) error
	GetIndex(name string) (IndexAccessor, error)
	GetIndexSettings(name string) (config.IndexSettings, error)
	UpdateIndexSettings(name string, settings config.IndexSettings) error
	RenameIndex(oldName, newName string) error
	DeleteIndex(name string) error
	ListIndexes() []string
	PersistIndexData(indexName string) error
}

// IndexManagerWithAsyncIngestion extends IndexManager with asynchronous,
// job-tracked document ingestion.
type IndexManagerWithAsyncIngestion interface {
	IndexManager
	AddDocumentsAsync(indexName string, r io.Reader) (jobID string, err error)
	RemapFieldsAsync(indexName string) (jobID string, err error)
}

// JobManager defines operations for managing background jobs.
type JobManager interface {
	GetJob(jobID string) (*model.Job, error)
	ListJobs(indexName string, status *model.JobStatus) []*model.Job
}

// IndexAccessor exposes both ingestion and read access over a single
// index.
type IndexAccessor interface {
	Indexer
	DocumentAccessor
	Settings() config.IndexSettings
}
