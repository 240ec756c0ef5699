package dto

import (
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// 레코드별 처리 상태. deferred 는 유실이 아니라 Kafka 를 통한 재전달 대상이다.
const (
	StatusAccepted = "accepted"
	StatusDeferred = "deferred"
	StatusRejected = "rejected"
)

// BatchIngestRequest는 배치 수집 요청 형식이다.
type BatchIngestRequest struct {
	Records []models.LogRecord `json:"records" binding:"required"`
}

// RecordResult는 배치 내 한 레코드의 처리 결과이다.
// Error에는 rejected 의 실패 사유 또는 deferred 의 연기 사유가 실린다.
type RecordResult struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status" example:"accepted"`
	Error     string `json:"error,omitempty" example:"budget_exhausted"`
}

// BatchIngestSummary는 상태별 레코드 수 집계이다.
type BatchIngestSummary struct {
	Accepted int `json:"accepted"`
	Deferred int `json:"deferred"`
	Rejected int `json:"rejected"`
}

// ExecutionMetrics는 한 배치 실행의 비용/캐시 집계이다.
type ExecutionMetrics struct {
	TokensProcessed     int     `json:"total_tokens_processed"`
	EmbeddingsGenerated int     `json:"total_embeddings_generated"`
	APICalls            int     `json:"total_api_calls"`
	FailedRequests      int     `json:"failed_requests"`
	CacheHits           int     `json:"cache_hits"`
	EstimatedCostUSD    float64 `json:"estimated_cost_usd"`
	DurationMS          int64   `json:"duration_ms"`
}

// BatchIngestResponse는 배치 수집 응답 형식이다.
type BatchIngestResponse struct {
	ExecutionID string             `json:"execution_id"`
	Results     []RecordResult     `json:"results"`
	Summary     BatchIngestSummary `json:"summary"`
	Metrics     ExecutionMetrics   `json:"metrics"`
}

// ErrorResponseDTO는 공통 에러 응답 형식을 통일하기 위한 DTO이다.
type ErrorResponseDTO struct {
	Error string `json:"error" example:"ingest_saturated"`
}
