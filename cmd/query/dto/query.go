package dto

import (
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// QueryRequest는 질의 요청 형식이다. session_id 를 생략하면 서버가
// UUID 를 발급해 응답에 돌려준다.
type QueryRequest struct {
	SessionID string `json:"session_id" example:"3f1c8f4e-6f0a-4d9c-9a2b-6e9e1c2d3f4a"`
	Question  string `json:"question" binding:"required" example:"why are checkout requests failing?"`
	TopK      int    `json:"top_k" example:"10"`
}

// UsageDTO는 이번 응답을 만드는 데 든 토큰과 비용 추정치이다.
// 캐시 적중 응답은 모델 호출이 없으므로 비용이 0이다.
type UsageDTO struct {
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// QueryResponse는 질의 응답 형식이다. sources 에는 프롬프트에 실제로
// 들어간 로그의 request_id 가 담긴다.
type QueryResponse struct {
	SessionID string   `json:"session_id"`
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	FromCache bool     `json:"from_cache"`
	Retrieved int      `json:"retrieved"`
	Usage     UsageDTO `json:"usage"`
}

// SearchResponse는 키워드 검색 응답 형식이다. 히트의 임베딩 벡터는
// 응답에서 제거된다.
type SearchResponse struct {
	Hits  []models.VectorDocument `json:"hits"`
	Total int                     `json:"total"`
}

// SessionStatsResponse는 세션 현황 응답 형식이다.
type SessionStatsResponse struct {
	SessionID         string `json:"session_id"`
	RequestsInWindow  int    `json:"requests_in_window"`
	RemainingRequests int    `json:"remaining_requests"`
	TokensUsed        int64  `json:"tokens_used"`
	TokenBudget       int    `json:"token_budget"`
	CacheEntries      int    `json:"cache_entries"`
}

// LogStatsResponse는 서비스별 적재 문서 수 집계이다.
type LogStatsResponse struct {
	Services map[string]int64 `json:"services"`
	Total    int64            `json:"total"`
}

// ModelCallsResponse는 모델 호출 감사 레코드 목록이다.
type ModelCallsResponse struct {
	Calls []models.ModelCallLog `json:"calls"`
	Count int                   `json:"count"`
}

// ErrorResponseDTO는 공통 에러 응답 형식을 통일하기 위한 DTO이다.
type ErrorResponseDTO struct {
	Error   string `json:"error" example:"rate_limit_exceeded"`
	Message string `json:"message,omitempty" example:"session exceeded 100 requests per rolling hour"`
}
