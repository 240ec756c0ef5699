package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/dto"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/services"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// Asker 는 질의 오케스트레이터의 핸들러 쪽 관심사다.
type Asker interface {
	Ask(ctx context.Context, sessionID, question string, topK int) (services.AskResult, error)
	Stats(ctx context.Context, sessionID string) services.SessionStats
}

// LogSearcher 는 키워드 검색/집계 저장소다.
type LogSearcher interface {
	SearchByKeyword(ctx context.Context, query, service, level string, limit int) ([]models.VectorDocument, error)
	CountByService(ctx context.Context) (map[string]int64, error)
}

// ModelCallReader 는 모델 호출 감사 레코드 조회다.
type ModelCallReader interface {
	FindRecent(ctx context.Context, callType string, limit int64) ([]models.ModelCallLog, error)
}

// QueryHandler godoc
// @Summary      Ask a question about the ingested logs
// @Description  Embeds the question, retrieves similar log records and synthesizes an answer grounded in them. Answers are cached per session for a short TTL.
// @Tags         query
// @Accept       json
// @Param        query  body  dto.QueryRequest  true  "Question (session_id optional)"
// @Produce      json
// @Success      200  {object}  dto.QueryResponse
// @Failure      400  {object}  dto.ErrorResponseDTO
// @Failure      429  {object}  dto.ErrorResponseDTO
// @Failure      502  {object}  dto.ErrorResponseDTO
// @Failure      503  {object}  dto.ErrorResponseDTO
// @Failure      504  {object}  dto.ErrorResponseDTO
// @Router       /query [post]
func QueryHandler(svc Asker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_request"})
			return
		}

		res, err := svc.Ask(c.Request.Context(), req.SessionID, req.Question, req.TopK)
		if err != nil {
			queryErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.QueryResponse{
			SessionID: res.SessionID,
			Answer:    res.Answer.Text,
			Sources:   res.Answer.Sources,
			FromCache: res.FromCache,
			Retrieved: res.Retrieved,
			Usage: dto.UsageDTO{
				InputTokens:      res.Answer.Usage.InputTokens,
				OutputTokens:     res.Answer.Usage.OutputTokens,
				TotalTokens:      res.Answer.Usage.TotalTokens,
				EstimatedCostUSD: res.CostUSD,
			},
		})
	}
}

// queryErrorResponse 는 오케스트레이터의 분류를 HTTP 로 옮긴다. 레이트
// 리밋과 인덱스 장애는 사용자에게 서로 다른 조치를 요구하므로 코드와
// 메시지를 그대로 내려보낸다.
func queryErrorResponse(c *gin.Context, err error) {
	var qe *services.QueryError
	if errors.As(err, &qe) {
		if qe.Status == http.StatusTooManyRequests {
			c.Header("Retry-After", "60")
		}
		c.JSON(qe.Status, gin.H{"error": qe.Code, "message": qe.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

// SearchHandler godoc
// @Summary      Keyword search over ingested log records
// @Description  Text search over the message field, newest first. Embedding vectors are stripped from hits.
// @Tags         logs
// @Param        q        query  string  true   "Keyword query"
// @Param        size     query  int     false  "Max hits"
// @Param        service  query  string  false  "Filter by service"
// @Param        level    query  string  false  "Filter by level"
// @Produce      json
// @Success      200  {object}  dto.SearchResponse
// @Failure      400  {object}  dto.ErrorResponseDTO
// @Failure      503  {object}  dto.ErrorResponseDTO
// @Router       /logs/search [get]
func SearchHandler(repo LogSearcher, defaultSize, maxSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := strings.TrimSpace(c.Query("q"))
		if q == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_query"})
			return
		}
		size := defaultSize
		if raw := c.Query("size"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				size = n
			}
		}
		if size > maxSize {
			size = maxSize
		}

		hits, err := repo.SearchByKeyword(c.Request.Context(), q, c.Query("service"), c.Query("level"), size)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search_unavailable"})
			return
		}
		for i := range hits {
			hits[i].LogEmbedding = nil
		}
		if hits == nil {
			hits = []models.VectorDocument{}
		}
		c.JSON(http.StatusOK, dto.SearchResponse{Hits: hits, Total: len(hits)})
	}
}

// SessionStatsHandler godoc
// @Summary      Session usage statistics
// @Description  Requests consumed in the current rolling window, token usage against the session budget and cached answer count.
// @Tags         sessions
// @Param        id  path  string  true  "Session id"
// @Produce      json
// @Success      200  {object}  dto.SessionStatsResponse
// @Router       /sessions/{id}/stats [get]
func SessionStatsHandler(svc Asker) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		st := svc.Stats(c.Request.Context(), id)
		c.JSON(http.StatusOK, dto.SessionStatsResponse{
			SessionID:         id,
			RequestsInWindow:  st.RequestsInWindow,
			RemainingRequests: st.RemainingRequests,
			TokensUsed:        st.TokensUsed,
			TokenBudget:       st.TokenBudget,
			CacheEntries:      st.CacheEntries,
		})
	}
}

// LogStatsHandler godoc
// @Summary      Ingested document counts by service
// @Tags         logs
// @Produce      json
// @Success      200  {object}  dto.LogStatsResponse
// @Failure      503  {object}  dto.ErrorResponseDTO
// @Router       /logs/stats [get]
func LogStatsHandler(repo LogSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := repo.CountByService(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stats_unavailable"})
			return
		}
		var total int64
		for _, n := range counts {
			total += n
		}
		c.JSON(http.StatusOK, dto.LogStatsResponse{Services: counts, Total: total})
	}
}

// ModelCallsHandler godoc
// @Summary      Recent model call audit records
// @Description  Upstream embedding/synthesis calls with token usage, duration and prompt snippets.
// @Tags         audit
// @Param        call_type  query  string  false  "embedding or synthesis"
// @Param        limit      query  int     false  "Max records"
// @Produce      json
// @Success      200  {object}  dto.ModelCallsResponse
// @Failure      503  {object}  dto.ErrorResponseDTO
// @Router       /model-calls [get]
func ModelCallsHandler(repo ModelCallReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		if limit > 500 {
			limit = 500
		}

		calls, err := repo.FindRecent(c.Request.Context(), c.Query("call_type"), int64(limit))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit_unavailable"})
			return
		}
		if calls == nil {
			calls = []models.ModelCallLog{}
		}
		c.JSON(http.StatusOK, dto.ModelCallsResponse{Calls: calls, Count: len(calls)})
	}
}
