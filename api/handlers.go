package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-doc-stats/internal/metrics"
	"github.com/gcbaptista/go-doc-stats/services"
)

// Options configures the HTTP layer.
type Options struct {
	Version           string
	AllowedExtensions []string // lowercase, with the leading dot; empty accepts any
	MaxBodyBytes      int64    // 0 disables the limit
	Metrics           *metrics.Metrics
	MetricsEnabled    bool // expose the Prometheus scrape endpoint at /metrics
}

// API holds dependencies for API handlers, primarily the statistics engine.
type API struct {
	engine  services.Engine
	options Options
}

// NewAPI creates a new API handler structure.
func NewAPI(engine services.Engine, options Options) *API {
	if options.Metrics == nil {
		options.Metrics = metrics.New()
	}
	return &API{engine: engine, options: options}
}

// NewRouter builds a gin engine with the standard middleware chain and every route.
func NewRouter(engine services.Engine, options Options) *gin.Engine {
	apiHandler := NewAPI(engine, options)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		LoggingMiddleware(),
		CORSMiddleware(),
		MetricsMiddleware(apiHandler.options.Metrics),
		RequestSizeLimitMiddleware(options.MaxBodyBytes),
	)
	apiHandler.SetupRoutes(router)
	return router
}

// SetupRoutes defines all the API routes of the service.
func (api *API) SetupRoutes(router *gin.Engine) {
	router.GET("/health", api.HealthCheckHandler)
	router.GET("/status", api.HealthCheckHandler)
	router.GET("/version", api.VersionHandler)
	if api.options.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(api.options.Metrics.Handler()))
	}

	apiRoutes := router.Group("/api")
	{
		apiRoutes.GET("/metrics", api.ProcessingMetricsHandler) // Processing time summary

		collectionRoutes := apiRoutes.Group("/collections")
		{
			collectionRoutes.POST("", api.CreateCollectionHandler)                                  // Create a collection
			collectionRoutes.GET("", api.ListCollectionsHandler)                                    // List collections, optionally per owner
			collectionRoutes.GET("/:collectionId", api.GetCollectionHandler)                        // Collection details and member IDs
			collectionRoutes.DELETE("/:collectionId", api.DeleteCollectionHandler)                  // Delete a collection and its documents
			collectionRoutes.GET("/:collectionId/statistics", api.CollectionStatisticsHandler)      // Aggregate term statistics
			collectionRoutes.POST("/:collectionId/recalculate", api.RecalculateHandler)             // Force a recalculation pass
			collectionRoutes.POST("/:collectionId/documents", api.UploadDocumentHandler)            // Upload into the collection
			collectionRoutes.PUT("/:collectionId/documents/:documentId", api.AttachDocumentHandler) // Attach an existing document
			collectionRoutes.DELETE("/:collectionId/documents/:documentId", api.DetachDocumentHandler)
		}

		docRoutes := apiRoutes.Group("/documents")
		{
			docRoutes.POST("", api.UploadDocumentHandler) // Upload a standalone document
			docRoutes.GET("/:documentId", api.GetDocumentHandler)
			docRoutes.DELETE("/:documentId", api.DeleteDocumentHandler)
			docRoutes.GET("/:documentId/statistics", api.DocumentStatisticsHandler) // Terms ranked by IDF
			docRoutes.GET("/:documentId/huffman", api.EncodeDocumentHandler)        // Huffman encoding of the content
		}

		apiRoutes.POST("/huffman/decode", api.DecodeHandler)
	}
}

// HealthCheckHandler reports that the service is up.
func (api *API) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// VersionHandler reports the running version.
func (api *API) VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": api.options.Version})
}

// ProcessingMetricsHandler returns the document processing time summary.
func (api *API) ProcessingMetricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.engine.ProcessingMetrics())
}
