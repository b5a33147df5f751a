package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/gcbaptista/docingest/config"
	internalErrors "github.com/gcbaptista/docingest/internal/errors"
	"github.com/gcbaptista/docingest/internal/progress"
	"github.com/gcbaptista/docingest/model"
	"github.com/gcbaptista/docingest/services"
)

// jobProgressCallback adapts a progress.Callback call site to the job
// manager's int-based progress tracking.
func (e *Engine) jobProgressCallback(jobID string) progress.Callback {
	return func(ev progress.Event) {
		e.jobManager.UpdateJobProgress(jobID, int(ev.Current), int(ev.Total), string(ev.Step))
	}
}

// CreateIndexAsync creates a new index in the background, returning the
// tracking job's ID immediately.
func (e *Engine) CreateIndexAsync(settings config.IndexSettings) (string, error) {
	jobID := e.jobManager.CreateJob(model.JobTypeCreateIndex, settings.Name, nil)
	err := e.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		return e.CreateIndex(settings)
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// DeleteIndexAsync deletes an index in the background.
func (e *Engine) DeleteIndexAsync(name string) (string, error) {
	e.mu.RLock()
	_, exists := e.indexes[name]
	e.mu.RUnlock()
	if !exists {
		return "", internalErrors.NewIndexNotFoundError(name)
	}

	jobID := e.jobManager.CreateJob(model.JobTypeDeleteIndex, name, nil)
	err := e.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		return e.DeleteIndex(name)
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// RenameIndexAsync renames an index in the background.
func (e *Engine) RenameIndexAsync(oldName, newName string) (string, error) {
	e.mu.RLock()
	_, exists := e.indexes[oldName]
	e.mu.RUnlock()
	if !exists {
		return "", internalErrors.NewIndexNotFoundError(oldName)
	}

	jobID := e.jobManager.CreateJob(model.JobTypeRenameIndex, oldName, map[string]string{"new_name": newName})
	err := e.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		return e.RenameIndex(oldName, newName)
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// AddDocumentsAsync runs a document batch through the named index's
// transform pipeline in the background. r must remain valid for the
// lifetime of the job; callers driving this from an HTTP request body
// should buffer it first, since the request's underlying connection
// may be torn down before the background job runs.
func (e *Engine) AddDocumentsAsync(indexName string, r io.Reader) (string, error) {
	e.mu.RLock()
	instance, exists := e.indexes[indexName]
	e.mu.RUnlock()
	if !exists {
		return "", internalErrors.NewIndexNotFoundError(indexName)
	}

	jobID := e.jobManager.CreateJob(model.JobTypeAddDocuments, indexName, nil)
	err := e.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		return e.executeAddDocumentsJob(jobID, indexName, instance, r)
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

func (e *Engine) executeAddDocumentsJob(jobID, indexName string, instance *IndexInstance, r io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := instance.AddDocumentsFromReader(r, e.jobProgressCallback(jobID)); err != nil {
		return err
	}
	return e.persistInstanceUnsafe(indexName, instance)
}

// DeleteAllDocumentsAsync clears every document from the named index in
// the background.
func (e *Engine) DeleteAllDocumentsAsync(indexName string) (string, error) {
	e.mu.RLock()
	instance, exists := e.indexes[indexName]
	e.mu.RUnlock()
	if !exists {
		return "", internalErrors.NewIndexNotFoundError(indexName)
	}

	jobID := e.jobManager.CreateJob(model.JobTypeDeleteAllDocs, indexName, nil)
	err := e.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := instance.DeleteAllDocuments(); err != nil {
			return err
		}
		return e.persistInstanceUnsafe(indexName, instance)
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// DeleteDocumentAsync removes a single document from the named index in
// the background.
func (e *Engine) DeleteDocumentAsync(indexName, externalID string) (string, error) {
	e.mu.RLock()
	instance, exists := e.indexes[indexName]
	e.mu.RUnlock()
	if !exists {
		return "", internalErrors.NewIndexNotFoundError(indexName)
	}

	jobID := e.jobManager.CreateJob(model.JobTypeDeleteDocument, indexName, map[string]string{"document_id": externalID})
	err := e.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := instance.DeleteDocument(externalID); err != nil {
			return internalErrors.NewDocumentNotFoundError(externalID, indexName)
		}
		return e.persistInstanceUnsafe(indexName, instance)
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// RemapFieldsAsync rebuilds the named index's field registry from
// scratch in the background, compacting field ids left fragmented by
// repeated partial updates.
func (e *Engine) RemapFieldsAsync(indexName string) (string, error) {
	e.mu.RLock()
	instance, exists := e.indexes[indexName]
	e.mu.RUnlock()
	if !exists {
		return "", internalErrors.NewIndexNotFoundError(indexName)
	}

	jobID := e.jobManager.CreateJob(model.JobTypeRemapFields, indexName, nil)
	err := e.jobManager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := instance.RemapFields(); err != nil {
			return fmt.Errorf("remapping index '%s': %w", indexName, err)
		}
		return e.persistInstanceUnsafe(indexName, instance)
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

var _ services.IndexManagerWithAsyncIngestion = (*Engine)(nil)
