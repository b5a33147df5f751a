// Package engine ties together the per-index transform pipelines,
// on-disk persistence, and background job tracking into the single
// object the API layer drives.
package engine

import (
	"fmt"
	"io"
	"sync"

	"github.com/gcbaptista/docingest/config"
	internalErrors "github.com/gcbaptista/docingest/internal/errors"
	"github.com/gcbaptista/docingest/internal/jobs"
	"github.com/gcbaptista/docingest/internal/progress"
	"github.com/gcbaptista/docingest/model"
	"github.com/gcbaptista/docingest/services"
)

// maxConcurrentJobs bounds how many background jobs run at once,
// regardless of how many indexes exist.
const maxConcurrentJobs = 4

// Engine owns every index on disk and the background jobs operating on
// them. It implements services.IndexManagerWithAsyncIngestion and
// services.JobManager.
type Engine struct {
	mu         sync.RWMutex
	indexes    map[string]*IndexInstance
	dataDir    string
	jobManager *jobs.Manager
}

// NewEngine creates an Engine rooted at dataDir, loading any indexes
// already persisted there.
func NewEngine(dataDir string) (*Engine, error) {
	e := &Engine{
		indexes:    make(map[string]*IndexInstance),
		dataDir:    dataDir,
		jobManager: jobs.NewManager(maxConcurrentJobs),
	}
	e.jobManager.Start()

	if err := e.loadIndexesFromDisk(); err != nil {
		return nil, fmt.Errorf("engine: loading indexes from disk: %w", err)
	}
	return e, nil
}

// Stop shuts down the engine's background job manager, waiting for
// in-flight jobs to finish.
func (e *Engine) Stop() {
	e.jobManager.Stop()
}

// GetIndex returns an accessor for the named index.
func (e *Engine) GetIndex(name string) (services.IndexAccessor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	instance, exists := e.indexes[name]
	if !exists {
		return nil, internalErrors.NewIndexNotFoundError(name)
	}
	return instance, nil
}

// GetIndexSettings returns the configuration for the named index.
func (e *Engine) GetIndexSettings(name string) (config.IndexSettings, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	instance, exists := e.indexes[name]
	if !exists {
		return config.IndexSettings{}, internalErrors.NewIndexNotFoundError(name)
	}
	return instance.Settings(), nil
}

// ListIndexes returns the names of every index the engine knows about.
func (e *Engine) ListIndexes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.indexes))
	for name := range e.indexes {
		names = append(names, name)
	}
	return names
}

// IngestFromReader runs a JSON document array straight through the
// named index's transform pipeline and persists the result, blocking
// until the batch completes. It is the synchronous counterpart to
// AddDocumentsAsync, used by the offline batch driver rather than the
// HTTP API.
func (e *Engine) IngestFromReader(indexName string, r io.Reader, cb progress.Callback) (services.IngestResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	instance, exists := e.indexes[indexName]
	if !exists {
		return services.IngestResult{}, internalErrors.NewIndexNotFoundError(indexName)
	}

	result, err := instance.AddDocumentsFromReader(r, cb)
	if err != nil {
		return services.IngestResult{}, err
	}
	if err := e.persistInstanceUnsafe(indexName, instance); err != nil {
		return services.IngestResult{}, fmt.Errorf("persisting index '%s': %w", indexName, err)
	}
	return result, nil
}

// GetJob returns a snapshot of the named job.
func (e *Engine) GetJob(jobID string) (*model.Job, error) {
	return e.jobManager.GetJob(jobID)
}

// ListJobs returns jobs for indexName, optionally filtered by status.
func (e *Engine) ListJobs(indexName string, status *model.JobStatus) []*model.Job {
	return e.jobManager.ListJobs(indexName, status)
}

// GetJobMetrics returns aggregate job execution metrics.
func (e *Engine) GetJobMetrics() jobs.JobMetricsData {
	return e.jobManager.GetMetrics()
}

// GetJobSuccessRate returns the overall fraction of jobs that have
// completed successfully.
func (e *Engine) GetJobSuccessRate() float64 {
	return e.jobManager.GetJobSuccessRate()
}

// GetCurrentWorkload returns the number of jobs currently pending or
// running.
func (e *Engine) GetCurrentWorkload() int64 {
	return e.jobManager.GetCurrentWorkload()
}
