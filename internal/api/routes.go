package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes wires all routes onto the engine.
func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/ready", handler.ReadinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", handler.Status)

		indices := v1.Group("/indices")
		indices.POST("/init", handler.InitIndices)
		indices.GET("/:doc_type", handler.ListGenerations)
		indices.POST("/:doc_type/migrate", handler.Migrate)
		indices.POST("/:doc_type/reindex", handler.Reindex)
		indices.POST("/:doc_type/analysis", handler.UpdateAnalysis)
		indices.POST("/:doc_type/synonyms/reload", handler.ReloadSynonyms)
		indices.POST("/:doc_type/remove-field-value", handler.RemoveFromField)
		indices.DELETE("/:doc_type/:index_name", handler.RetireIndex)

		v1.GET("/documents/:doc_type/:id", handler.GetDocument)

		search := v1.Group("/search")
		search.GET("", handler.Search)
		search.POST("", handler.Search)
	}
}
