package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/docingest/internal/engine"
	internalErrors "github.com/gcbaptista/docingest/internal/errors"
	"github.com/gcbaptista/docingest/model"
)

// AddDocumentsHandler handles adding/updating documents in an index.
// The request body is a JSON array of documents. When the underlying
// engine supports async ingestion, the raw body is read into memory and
// handed to a background job undecoded; otherwise it is decoded and
// ingested inline.
func (api *API) AddDocumentsHandler(c *gin.Context) {
	indexName := c.Param("indexName")

	if result := ValidateIndexName(indexName); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	indexAccessor, err := api.engine.GetIndex(indexName)
	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, indexName)
			return
		}
		SendInternalError(c, "get index", err)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, "Failed to read request body: "+err.Error())
		return
	}

	if concreteEngine, ok := api.engine.(*engine.Engine); ok {
		jobID, err := concreteEngine.AddDocumentsAsync(indexName, bytes.NewReader(body))
		if err != nil {
			if errors.Is(err, internalErrors.ErrIndexNotFound) {
				SendIndexNotFoundError(c, indexName)
				return
			}
			SendJobExecutionError(c, "document addition", err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"status":  "accepted",
			"message": fmt.Sprintf("Document addition started for index '%s'", indexName),
			"job_id":  jobID,
		})
		return
	}

	var docs []model.Document
	if err := json.Unmarshal(body, &docs); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if result := ValidateDocumentBatchNotEmpty(len(docs)); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	result, err := indexAccessor.AddDocuments(docs, nil)
	if err != nil {
		SendIndexingError(c, "add documents", err)
		return
	}
	if err := api.engine.PersistIndexData(indexName); err != nil {
		SendInternalError(c, "persist index", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteAllDocumentsHandler handles the request to delete all documents from an index.
func (api *API) DeleteAllDocumentsHandler(c *gin.Context) {
	indexName := c.Param("indexName")

	if result := ValidateIndexName(indexName); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	indexAccessor, err := api.engine.GetIndex(indexName)
	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, indexName)
			return
		}
		SendInternalError(c, "get index", err)
		return
	}

	if concreteEngine, ok := api.engine.(*engine.Engine); ok {
		jobID, err := concreteEngine.DeleteAllDocumentsAsync(indexName)
		if err != nil {
			SendJobExecutionError(c, "document deletion", err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"status":  "accepted",
			"message": fmt.Sprintf("Document deletion started for index '%s'", indexName),
			"job_id":  jobID,
		})
		return
	}

	if err := indexAccessor.DeleteAllDocuments(); err != nil {
		SendIndexingError(c, "delete all documents", err)
		return
	}
	if err := api.engine.PersistIndexData(indexName); err != nil {
		SendInternalError(c, "persist index", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All documents deleted from index '" + indexName + "'"})
}

// GetDocumentsHandler is unimplemented: the document table is keyed for
// point lookups by external id and does not support ordered enumeration.
func (api *API) GetDocumentsHandler(c *gin.Context) {
	SendError(c, http.StatusNotImplemented, ErrorCodeInternalError, "Listing documents is not supported; fetch by document id instead")
}

// GetDocumentHandler retrieves a specific document by its external id.
func (api *API) GetDocumentHandler(c *gin.Context) {
	indexName := c.Param("indexName")
	documentID := c.Param("documentId")

	if result := ValidateIndexName(indexName); result.HasErrors() {
		SendValidationError(c, result)
		return
	}
	if result := ValidateDocumentID(documentID); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	indexAccessor, err := api.engine.GetIndex(indexName)
	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, indexName)
			return
		}
		SendInternalError(c, "get index", err)
		return
	}

	document, found, err := indexAccessor.GetDocument(documentID)
	if err != nil {
		SendInternalError(c, "get document", err)
		return
	}
	if !found {
		SendDocumentNotFoundError(c, documentID, indexName)
		return
	}

	c.JSON(http.StatusOK, document)
}

// DeleteDocumentHandler deletes a specific document by its external id.
func (api *API) DeleteDocumentHandler(c *gin.Context) {
	indexName := c.Param("indexName")
	documentID := c.Param("documentId")

	if result := ValidateIndexName(indexName); result.HasErrors() {
		SendValidationError(c, result)
		return
	}
	if result := ValidateDocumentID(documentID); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	indexAccessor, err := api.engine.GetIndex(indexName)
	if err != nil {
		if errors.Is(err, internalErrors.ErrIndexNotFound) {
			SendIndexNotFoundError(c, indexName)
			return
		}
		SendInternalError(c, "get index", err)
		return
	}

	if concreteEngine, ok := api.engine.(*engine.Engine); ok {
		jobID, err := concreteEngine.DeleteDocumentAsync(indexName, documentID)
		if err != nil {
			if errors.Is(err, internalErrors.ErrDocumentNotFound) {
				SendDocumentNotFoundError(c, documentID, indexName)
				return
			}
			SendJobExecutionError(c, "document deletion", err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"status":      "accepted",
			"message":     fmt.Sprintf("Document deletion started for document '%s' in index '%s'", documentID, indexName),
			"job_id":      jobID,
			"document_id": documentID,
		})
		return
	}

	if err := indexAccessor.DeleteDocument(documentID); err != nil {
		if errors.Is(err, internalErrors.ErrDocumentNotFound) {
			SendDocumentNotFoundError(c, documentID, indexName)
			return
		}
		SendIndexingError(c, "delete document", err)
		return
	}
	if err := api.engine.PersistIndexData(indexName); err != nil {
		SendInternalError(c, "persist index", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document '" + documentID + "' deleted from index '" + indexName + "'"})
}
