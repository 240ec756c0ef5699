package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/ratelimit"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/router"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/services"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/synthesizer"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/db"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/embedder"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/llmclient"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/repositories"
)

// @title           Log Analytics RAG — Query API
// @version         1.0
// @description     Question answering over ingested logs: vector retrieval plus grounded synthesis
// @BasePath        /api/v1
func main() {
	config.InitApp()
	cfg := config.GetConfig()
	logger.Init(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		logger.Log.Errorf("invalid configuration: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MongoDB 초기화
	if err := db.Init(ctx); err != nil {
		logger.Log.Errorf("failed to initialize MongoDB: %v", err)
		os.Exit(1)
	}

	// 임베딩/합성 클라이언트
	embedClient, genClient, err := llmclient.New(ctx, cfg.LLM)
	if err != nil {
		logger.Log.Errorf("failed to create llm client: %v", err)
		os.Exit(1)
	}

	var cache *embedder.Cache
	if cfg.Pipeline.EnableCaching {
		cache = embedder.NewCache(cfg.Pipeline.Cache.Capacity, cfg.Pipeline.Cache.TTL())
	}
	embedSvc := embedder.NewService(embedClient, cfg.LLM.EmbeddingDimension, cache)

	vectorRepo := repositories.NewVectorDocumentRepository(db.Database())
	callRepo := repositories.NewModelCallLogRepository(db.Database())

	// 세션 레이트 리밋: 멀티 레플리카면 Redis 슬라이딩 윈도, 아니면
	// 프로세스 로컬 윈도. Redis 장애 시에는 로컬로 폴백한다.
	var limiter ratelimit.Limiter
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Log.Warnf("redis unreachable, sliding windows start on the local fallback: %v", err)
		}
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.Query.MaxRequestsPerHour, time.Hour)
	} else {
		limiter = ratelimit.NewLocalLimiter(cfg.Query.MaxRequestsPerHour, time.Hour)
	}

	sessions := services.NewSessionService(cfg.Query)
	retrieval := services.NewRetrievalService(vectorRepo, cfg.Query.DefaultSearchSize, cfg.Query.MaxSearchSize, cfg.Query.MinScore)
	synth := synthesizer.NewService(genClient, cfg.LLM.MaxContextChars)
	querySvc := services.NewQueryService(embedSvc, retrieval, synth, sessions, limiter, callRepo, cfg.Query, cfg.LLM.SynthesisModelID())

	// 질의 API 는 브라우저 앱이 직접 부르므로 CORS 를 라우터 바깥에 씌운다.
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}).Handler(router.New(querySvc, vectorRepo, callRepo, cfg.Query))

	srv := &http.Server{
		Addr:    cfg.Server.QueryAddr,
		Handler: corsHandler,
	}

	// Graceful shutdown 설정
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.InfoWithFields("query API listening", logger.Fields{"addr": cfg.Server.QueryAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Errorf("http server error: %v", err)
		}
	}()

	<-sigChan
	logger.Log.Info("received shutdown signal, shutting down query service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("http server shutdown: %v", err)
	}

	cancel()
	wg.Wait()

	logger.Log.Info("query service stopped")
}
