package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/handlers"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/services"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/middleware"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/db"
)

func New(svc *services.IngestService, maxBatchRecords int) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestTrace())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "mongo": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// v1 routes
	api := r.Group("/api/v1")
	{
		api.POST("/logs/batch", handlers.BatchIngestHandler(svc, maxBatchRecords))
		api.POST("/logs", handlers.SingleIngestHandler(svc))
	}

	return r
}
