// Package pipeline runs one batch of log records through normalization,
// budget-gated embedding, and the bulk vector-index write. Each Run is
// one execution: it gets its own token budget and deadline, and reports
// a per-record outcome so nothing is silently dropped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/budget"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/embedder"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/events"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/repositories"
)

// ErrSaturated 는 동시 실행 슬롯이 모두 사용 중이라는 뜻이다. 호출자는
// Retry-After 와 함께 배치를 거절해야 한다.
var ErrSaturated = errors.New("pipeline: all execution slots busy")

// DocumentStore 는 파이프라인이 기대하는 벡터 인덱스 쓰기 계약이다.
// *repositories.VectorDocumentRepository 가 이를 구현한다.
type DocumentStore interface {
	BulkUpsert(ctx context.Context, docs []models.VectorDocument) (repositories.BulkUpsertResult, error)
}

// DeferredRecord 는 이번 실행에서 처리하지 못해 다음 실행으로 넘길 레코드다.
type DeferredRecord struct {
	Record models.LogRecord `json:"record"`
	Reason string           `json:"reason"`
}

// FailedRecord 는 이번 실행에서 복구 불가능하게 실패한 레코드다. 원본
// 레코드를 그대로 실어 DLQ 점검 시 재현에 필요한 정보가 빠지지 않게 한다.
type FailedRecord struct {
	Record models.LogRecord `json:"record"`
	Reason string           `json:"reason"`
}

// Result 는 한 실행의 레코드별 결과와 비용 집계다.
type Result struct {
	ExecutionID string           `json:"execution_id"`
	Written     []string         `json:"written"` // 인덱스에 기록된 request_id
	Deferred    []DeferredRecord `json:"deferred"`
	Failed      []FailedRecord   `json:"failed"`
	CacheHits   int              `json:"cache_hits"`
	Metrics     budget.Metrics   `json:"metrics"`
	Elapsed     time.Duration    `json:"-"`
}

// Pipeline 은 실행들을 받아 워커 풀로 처리하는 컨트롤러다. 동시 실행
// 수는 queue_depth 로 제한되며 넘치면 즉시 ErrSaturated 로 거절한다.
type Pipeline struct {
	cfg      config.PipelineConfig
	embedder *embedder.Service
	store    DocumentStore
	sem      chan struct{}
}

func New(cfg config.PipelineConfig, svc *embedder.Service, store DocumentStore) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		embedder: svc,
		store:    store,
		sem:      make(chan struct{}, cfg.QueueDepth),
	}
}

// workerCountFor scales concurrency with batch size: roughly one worker
// per batch_size records, at least 2, capped by worker_count.
func (p *Pipeline) workerCountFor(n int) int {
	w := n / p.cfg.BatchSize
	if w < 2 {
		w = 2
	}
	if w > p.cfg.WorkerCount {
		w = p.cfg.WorkerCount
	}
	return w
}

// Run processes one batch under a fresh token budget and the configured
// execution deadline. Records the deadline cuts off are returned as
// deferred, never dropped. A dimension mismatch from the embedding
// model aborts the whole execution: that is a configuration problem and
// writing anything would corrupt the index.
func (p *Pipeline) Run(ctx context.Context, records []models.LogRecord) (*Result, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	default:
		saturationRejections.Inc()
		return nil, ErrSaturated
	}

	start := time.Now()
	execID := uuid.NewString()
	tracker := budget.NewTracker(p.cfg.MaxTokensPerExecution, p.cfg.EnableCostTracking)

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.ExecutionTimeout())
	defer cancel()

	jobs := make(chan models.LogRecord)
	outcomes := make(chan Outcome, len(records))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCountFor(len(records)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				outcomes <- p.processRecord(runCtx, rec, tracker)
			}
		}()
	}

	submitted := 0
feed:
	for _, rec := range records {
		select {
		case jobs <- rec:
			submitted++
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	res := &Result{ExecutionID: execID}
	var embedded []Outcome
	var dimErr *embedder.DimensionError
	for oc := range outcomes {
		if errors.As(oc.Err, &dimErr) {
			logger.ErrorWithFields("embedding dimension mismatch, aborting execution", logger.Fields{
				"execution_id": execID,
				"error":        dimErr.Error(),
			})
			return nil, fmt.Errorf("execution %s aborted: %w", execID, dimErr)
		}
		switch oc.Status {
		case StatusEmbedded:
			embedded = append(embedded, oc)
			if oc.CacheHit {
				res.CacheHits++
				cacheEvents.WithLabelValues("hit").Inc()
			} else {
				cacheEvents.WithLabelValues("miss").Inc()
			}
		case StatusDeferred:
			res.Deferred = append(res.Deferred, DeferredRecord{Record: oc.Record, Reason: oc.DeferredReason()})
		case StatusFailed:
			res.Failed = append(res.Failed, FailedRecord{Record: oc.Record, Reason: oc.FailureReason()})
		}
	}

	// 마감 때문에 워커에 들어가지도 못한 레코드들.
	for _, rec := range records[submitted:] {
		res.Deferred = append(res.Deferred, DeferredRecord{Record: rec, Reason: events.ReasonDeadlineExceeded})
	}

	if len(embedded) > 0 {
		// 마감이 지났어도 이미 비용을 치른 벡터는 짧은 유예 안에 기록한다.
		writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer writeCancel()

		docs := make([]models.VectorDocument, 0, len(embedded))
		for _, oc := range embedded {
			docs = append(docs, oc.Document)
		}
		wres, err := p.store.BulkUpsert(writeCtx, docs)
		if err != nil {
			return nil, fmt.Errorf("execution %s: vector index write: %w", execID, err)
		}
		for _, oc := range embedded {
			if reason, failed := wres.Failed[oc.Document.RequestID]; failed {
				res.Failed = append(res.Failed, FailedRecord{Record: oc.Record, Reason: "index_write_failed: " + reason})
				continue
			}
			res.Written = append(res.Written, oc.Document.RequestID)
		}
	}

	res.Metrics = tracker.Snapshot()
	res.Elapsed = time.Since(start)

	recordsTotal.WithLabelValues("written").Add(float64(len(res.Written)))
	recordsTotal.WithLabelValues("deferred").Add(float64(len(res.Deferred)))
	recordsTotal.WithLabelValues("failed").Add(float64(len(res.Failed)))
	tokensConsumed.Add(float64(res.Metrics.TokensProcessed))
	executionDuration.Observe(res.Elapsed.Seconds())

	successRate := 0.0
	if len(records) > 0 {
		successRate = float64(len(res.Written)) / float64(len(records))
	}
	logger.InfoWithFields("execution completed", logger.Fields{
		"execution_id":         execID,
		"records":              len(records),
		"written":              len(res.Written),
		"deferred":             len(res.Deferred),
		"failed":               len(res.Failed),
		"success_rate":         successRate,
		"cache_hits":           res.CacheHits,
		"tokens_processed":     res.Metrics.TokensProcessed,
		"embeddings_generated": res.Metrics.EmbeddingsGenerated,
		"api_calls":            res.Metrics.APICalls,
		"failed_requests":      res.Metrics.FailedRequests,
		"estimated_cost_usd":   res.Metrics.EstimatedCostUSD(),
		"duration_ms":          res.Elapsed.Milliseconds(),
	})
	return res, nil
}
