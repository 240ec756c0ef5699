package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/middleware"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/handlers"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/services"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/db"
)

func New(svc *services.QueryService, logs handlers.LogSearcher, calls handlers.ModelCallReader, cfg config.QueryConfig) *gin.Engine {
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
		api.POST("/query", handlers.QueryHandler(svc))
		api.GET("/logs/search", handlers.SearchHandler(logs, cfg.DefaultSearchSize, cfg.MaxSearchSize))
		api.GET("/logs/stats", handlers.LogStatsHandler(logs))
		api.GET("/sessions/:id/stats", handlers.SessionStatsHandler(svc))
		api.GET("/model-calls", handlers.ModelCallsHandler(calls))
	}

	return r
}
