package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/docingest/services"
)

// API holds dependencies for API handlers, primarily the ingestion
// engine.
type API struct {
	engine services.IndexManager
}

// NewAPI creates a new API handler structure.
func NewAPI(engine services.IndexManager) *API {
	return &API{engine: engine}
}

// maxRequestBodySize bounds the size of a single ingestion request,
// independent of how a given index chunks its own external sort.
const maxRequestBodySize = 512 << 20 // 512 MiB

// SetupRoutes defines all the API routes for the ingestion engine.
func SetupRoutes(router *gin.Engine, engine services.IndexManager) {
	apiHandler := NewAPI(engine)

	router.Use(CORSMiddleware())
	router.Use(RequestSizeLimitMiddleware(maxRequestBodySize))

	router.GET("/health", apiHandler.HealthCheckHandler)

	indexRoutes := router.Group("/indexes")
	{
		indexRoutes.POST("", apiHandler.CreateIndexHandler)
		indexRoutes.GET("", apiHandler.ListIndexesHandler)
		indexRoutes.GET("/:indexName", apiHandler.GetIndexHandler)
		indexRoutes.DELETE("/:indexName", apiHandler.DeleteIndexHandler)
		indexRoutes.PATCH("/:indexName/settings", apiHandler.UpdateIndexSettingsHandler)
		indexRoutes.POST("/:indexName/rename", apiHandler.RenameIndexHandler)
		indexRoutes.POST("/:indexName/remap-fields", apiHandler.RemapFieldsHandler)
		indexRoutes.GET("/:indexName/stats", apiHandler.GetIndexStatsHandler)
		indexRoutes.GET("/:indexName/jobs", apiHandler.ListJobsHandler)

		docRoutes := indexRoutes.Group("/:indexName/documents")
		{
			docRoutes.PUT("", apiHandler.AddDocumentsHandler)
			docRoutes.GET("", apiHandler.GetDocumentsHandler)
			docRoutes.DELETE("", apiHandler.DeleteAllDocumentsHandler)
			docRoutes.GET("/:documentId", apiHandler.GetDocumentHandler)
			docRoutes.DELETE("/:documentId", apiHandler.DeleteDocumentHandler)
		}
	}

	jobRoutes := router.Group("/jobs")
	{
		jobRoutes.GET("/metrics", apiHandler.GetJobMetricsHandler)
		jobRoutes.GET("/:jobId", apiHandler.GetJobHandler)
	}
}

// HealthCheckHandler provides a simple health check endpoint.
func (api *API) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "docingest",
		"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
	})
}
