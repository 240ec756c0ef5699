package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/pipeline"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/router"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/services"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/eventbus"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/db"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/embedder"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/events"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/llmclient"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/repositories"
)

// @title           Log Analytics RAG — Ingestion API
// @version         1.0
// @description     Batch log ingestion into the vector index with budget-gated embedding
// @BasePath        /api/v1
func main() {
	config.InitApp()
	cfg := config.GetConfig()
	logger.Init(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		logger.Log.Errorf("invalid configuration: %v", err)
		os.Exit(1)
	}
	if cfg.Pipeline.LambdaMemorySize > 0 {
		// 외부 함수 런타임을 크기 조정하던 값이라 받기만 하고 쓰지 않는다.
		logger.Log.Infof("lambda_memory_size=%d is accepted for compatibility and ignored", cfg.Pipeline.LambdaMemorySize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MongoDB 초기화
	if err := db.Init(ctx); err != nil {
		logger.Log.Errorf("failed to initialize MongoDB: %v", err)
		os.Exit(1)
	}

	// 임베딩 클라이언트 및 파이프라인 초기화
	embedClient, _, err := llmclient.New(ctx, cfg.LLM)
	if err != nil {
		logger.Log.Errorf("failed to create llm client: %v", err)
		os.Exit(1)
	}

	var cache *embedder.Cache
	if cfg.Pipeline.EnableCaching {
		cache = embedder.NewCache(cfg.Pipeline.Cache.Capacity, cfg.Pipeline.Cache.TTL())
	}
	embedSvc := embedder.NewService(embedClient, cfg.LLM.EmbeddingDimension, cache)
	store := repositories.NewVectorDocumentRepository(db.Database())
	pipe := pipeline.New(cfg.Pipeline, embedSvc, store)

	// EventBus 초기화 및 토픽 보장
	brokers := eventbus.GetBrokers()
	if err := eventbus.EnsureTopics(brokers, eventbus.TopicDeferredRecords, cfg.Kafka.BasePartitions); err != nil {
		logger.Log.Errorf("failed to ensure eventbus topics: %v", err)
	}

	bus, err := eventbus.NewKafkaEventBus(brokers)
	if err != nil {
		logger.Log.Errorf("failed to create event bus: %v", err)
		os.Exit(1)
	}
	defer bus.Close()

	ingestSvc := services.NewIngestService(pipe, bus)

	// Graceful shutdown 설정
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	// 연기 레코드 재전달 컨슈머
	groupID := eventbus.GetGroupID()
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := eventbus.SubscribeJSON(ctx, bus, groupID, eventbus.TopicDeferredRecords,
			func(ctx context.Context, ev events.DeferredRecordsEvent, meta eventbus.Event) error {
				return ingestSvc.ReingestDeferred(ctx, ev)
			})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.Errorf("eventbus subscribe error: %v", err)
		}
	}()

	// HTTP 서버
	srv := &http.Server{
		Addr:    cfg.Server.IngestAddr,
		Handler: router.New(ingestSvc, cfg.Pipeline.MaxBatchRecords),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.InfoWithFields("ingest API listening", logger.Fields{"addr": cfg.Server.IngestAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Errorf("http server error: %v", err)
		}
	}()

	// 종료 신호 대기
	<-sigChan
	logger.Log.Info("received shutdown signal, shutting down ingest service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("http server shutdown: %v", err)
	}

	cancel()
	wg.Wait()

	logger.Log.Info("ingest service stopped")
}
