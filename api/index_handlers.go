package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/docingest/config"
	"github.com/gcbaptista/docingest/internal/engine"
	internalErrors "github.com/gcbaptista/docingest/internal/errors"
	"github.com/gcbaptista/docingest/internal/extsort"
	"github.com/gcbaptista/docingest/internal/transform"
)

// CreateIndexHandler handles the request to create a new index.
// Request Body: config.IndexSettings
func (api *API) CreateIndexHandler(c *gin.Context) {
	var settings config.IndexSettings

	if result := ValidateJSONBinding(c, &settings); result.HasErrors() {
		SendValidationError(c, result)
		return
	}
	if result := ValidateIndexSettings(&settings); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	var jobID string
	var err error
	if concreteEngine, ok := api.engine.(*engine.Engine); ok {
		jobID, err = concreteEngine.CreateIndexAsync(settings)
	} else {
		err = api.engine.CreateIndex(settings)
	}

	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexAlreadyExists) {
			SendIndexExistsError(c, settings.Name)
			return
		}
		SendIndexingError(c, "create index", err)
		return
	}

	if jobID != "" {
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "accepted",
			"message": "Index creation started for '" + settings.Name + "'",
			"job_id":  jobID,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Index '" + settings.Name + "' created successfully"})
}

// ListIndexesHandler lists all available indexes.
func (api *API) ListIndexesHandler(c *gin.Context) {
	names := api.engine.ListIndexes()
	c.JSON(http.StatusOK, gin.H{"indexes": names, "count": len(names)})
}

// GetIndexHandler retrieves details about a specific index (its settings).
func (api *API) GetIndexHandler(c *gin.Context) {
	indexName := c.Param("indexName")
	indexAccessor, err := api.engine.GetIndex(indexName)
	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, indexName)
			return
		}
		SendInternalError(c, "get index", err)
		return
	}
	c.JSON(http.StatusOK, indexAccessor.Settings())
}

// DeleteIndexHandler handles deleting an index.
func (api *API) DeleteIndexHandler(c *gin.Context) {
	indexName := c.Param("indexName")

	var jobID string
	var err error
	if concreteEngine, ok := api.engine.(*engine.Engine); ok {
		jobID, err = concreteEngine.DeleteIndexAsync(indexName)
	} else {
		err = api.engine.DeleteIndex(indexName)
	}

	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, indexName)
			return
		}
		SendIndexingError(c, "delete index", err)
		return
	}

	if jobID != "" {
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "accepted",
			"message": "Index deletion started for '" + indexName + "'",
			"job_id":  jobID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Index '" + indexName + "' deleted successfully"})
}

// RenameIndexRequest defines the structure for renaming an index.
type RenameIndexRequest struct {
	NewName string `json:"new_name" binding:"required"`
}

// RenameIndexHandler handles requests to rename an index.
func (api *API) RenameIndexHandler(c *gin.Context) {
	oldName := c.Param("indexName")

	var req RenameIndexRequest
	if result := ValidateJSONBinding(c, &req); result.HasErrors() {
		SendValidationError(c, result)
		return
	}
	if result := ValidateRenameRequest(oldName, req.NewName); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	var jobID string
	var err error
	if concreteEngine, ok := api.engine.(*engine.Engine); ok {
		jobID, err = concreteEngine.RenameIndexAsync(oldName, req.NewName)
	} else {
		err = api.engine.RenameIndex(oldName, req.NewName)
	}

	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, oldName)
			return
		}
		if errors.Is(err, internalErrors.ErrIndexAlreadyExists) {
			SendIndexExistsError(c, req.NewName)
			return
		}
		if errors.Is(err, internalErrors.ErrSameName) {
			SendSameNameError(c, req.NewName)
			return
		}
		SendIndexingError(c, "rename index", err)
		return
	}

	if jobID != "" {
		c.JSON(http.StatusAccepted, gin.H{
			"status":   "accepted",
			"message":  fmt.Sprintf("Index rename started: '%s' -> '%s'", oldName, req.NewName),
			"job_id":   jobID,
			"old_name": oldName,
			"new_name": req.NewName,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Index renamed successfully",
		"old_name": oldName,
		"new_name": req.NewName,
	})
}

// RemapFieldsHandler handles requests to rebuild an index's field
// registry from scratch, compacting field ids.
func (api *API) RemapFieldsHandler(c *gin.Context) {
	indexName := c.Param("indexName")

	concreteEngine, ok := api.engine.(*engine.Engine)
	if !ok {
		SendError(c, http.StatusNotImplemented, ErrorCodeInternalError, "Field remapping not supported by this engine")
		return
	}

	jobID, err := concreteEngine.RemapFieldsAsync(indexName)
	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, indexName)
			return
		}
		SendJobExecutionError(c, "field remap", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": "Field remap started for index '" + indexName + "'",
		"job_id":  jobID,
	})
}

// IndexSettingsUpdate defines the updatable subset of an index's
// ingestion settings. The index name cannot be changed here; use
// RenameIndexHandler instead.
type IndexSettingsUpdate struct {
	PrimaryKey            *string `json:"primary_key,omitempty"`
	AutogenerateDocIDs    *bool   `json:"autogenerate_doc_ids,omitempty"`
	UpdateMethod          *string `json:"update_method,omitempty"`
	ChunkCompressionType  *string `json:"chunk_compression_type,omitempty"`
	ChunkCompressionLevel *int    `json:"chunk_compression_level,omitempty"`
	MaxNbChunks           *int    `json:"max_nb_chunks,omitempty"`
	MaxMemory             *int    `json:"max_memory,omitempty"`
	LogEveryN             *int    `json:"log_every_n,omitempty"`
}

// UpdateIndexSettingsHandler handles requests to update index settings.
func (api *API) UpdateIndexSettingsHandler(c *gin.Context) {
	indexName := c.Param("indexName")

	settings, err := api.engine.GetIndexSettings(indexName)
	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, indexName)
			return
		}
		SendInternalError(c, "get index settings", err)
		return
	}

	var update IndexSettingsUpdate
	if result := ValidateJSONBinding(c, &update); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	updated := false
	if update.PrimaryKey != nil {
		settings.PrimaryKey = *update.PrimaryKey
		updated = true
	}
	if update.AutogenerateDocIDs != nil {
		settings.AutogenerateDocIDs = *update.AutogenerateDocIDs
		updated = true
	}
	if update.UpdateMethod != nil {
		settings.UpdateMethod = transform.UpdateMethod(*update.UpdateMethod)
		updated = true
	}
	if update.ChunkCompressionType != nil {
		settings.ChunkCompressionType = extsort.Codec(*update.ChunkCompressionType)
		updated = true
	}
	if update.ChunkCompressionLevel != nil {
		settings.ChunkCompressionLevel = *update.ChunkCompressionLevel
		updated = true
	}
	if update.MaxNbChunks != nil {
		settings.MaxNbChunks = *update.MaxNbChunks
		updated = true
	}
	if update.MaxMemory != nil {
		settings.MaxMemory = *update.MaxMemory
		updated = true
	}
	if update.LogEveryN != nil {
		settings.LogEveryN = *update.LogEveryN
		updated = true
	}

	if !updated {
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, "No valid updatable fields provided or no changes detected")
		return
	}

	if err := settings.Validate(); err != nil {
		SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	if err := api.engine.UpdateIndexSettings(indexName, settings); err != nil {
		SendInternalError(c, "update index settings", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully for index '" + indexName + "'"})
}

// GetIndexStatsHandler returns statistics for a specific index.
func (api *API) GetIndexStatsHandler(c *gin.Context) {
	indexName := c.Param("indexName")
	indexAccessor, err := api.engine.GetIndex(indexName)
	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, indexName)
			return
		}
		SendInternalError(c, "get index", err)
		return
	}

	settings := indexAccessor.Settings()
	stats := gin.H{
		"name":                 settings.Name,
		"document_count":       indexAccessor.DocumentCount(),
		"primary_key":          settings.PrimaryKey,
		"autogenerate_doc_ids": settings.AutogenerateDocIDs,
		"update_method":        settings.UpdateMethod,
	}

	c.JSON(http.StatusOK, stats)
}
