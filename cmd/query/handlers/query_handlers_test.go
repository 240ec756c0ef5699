package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/dto"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/services"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

type fakeAsker struct {
	res          services.AskResult
	err          error
	st           services.SessionStats
	gotSessionID string
	gotQuestion  string
	gotTopK      int
}

func (f *fakeAsker) Ask(_ context.Context, sessionID, question string, topK int) (services.AskResult, error) {
	f.gotSessionID, f.gotQuestion, f.gotTopK = sessionID, question, topK
	return f.res, f.err
}

func (f *fakeAsker) Stats(_ context.Context, _ string) services.SessionStats { return f.st }

type fakeLogRepo struct {
	hits      []models.VectorDocument
	counts    map[string]int64
	err       error
	lastQuery string
	lastLimit int
}

func (f *fakeLogRepo) SearchByKeyword(_ context.Context, query, _, _ string, limit int) ([]models.VectorDocument, error) {
	f.lastQuery, f.lastLimit = query, limit
	return f.hits, f.err
}

func (f *fakeLogRepo) CountByService(_ context.Context) (map[string]int64, error) {
	return f.counts, f.err
}

type fakeCallRepo struct {
	calls        []models.ModelCallLog
	err          error
	lastCallType string
	lastLimit    int64
}

func (f *fakeCallRepo) FindRecent(_ context.Context, callType string, limit int64) ([]models.ModelCallLog, error) {
	f.lastCallType, f.lastLimit = callType, limit
	return f.calls, f.err
}

func serve(register func(*gin.Engine), method, target, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	register(r)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestQueryHandlerReturnsAnswer(t *testing.T) {
	asker := &fakeAsker{res: services.AskResult{
		SessionID: "sess-1",
		Answer: models.Answer{
			Text:    "The payment service timed out.",
			Sources: []string{"req-1", "req-2"},
			Usage:   models.TokenUsage{InputTokens: 50, OutputTokens: 10, TotalTokens: 60},
		},
		Retrieved: 2,
		CostUSD:   6.7e-6,
	}}

	w := serve(func(r *gin.Engine) {
		r.POST("/query", QueryHandler(asker))
	}, http.MethodPost, "/query", `{"session_id":"sess-1","question":"why did payment fail?","top_k":3}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "The payment service timed out.", resp.Answer)
	assert.Equal(t, []string{"req-1", "req-2"}, resp.Sources)
	assert.False(t, resp.FromCache)
	assert.Equal(t, 2, resp.Retrieved)
	assert.Equal(t, int64(60), resp.Usage.TotalTokens)
	assert.InDelta(t, 6.7e-6, resp.Usage.EstimatedCostUSD, 1e-12)

	assert.Equal(t, "sess-1", asker.gotSessionID)
	assert.Equal(t, "why did payment fail?", asker.gotQuestion)
	assert.Equal(t, 3, asker.gotTopK)
}

func TestQueryHandlerRejectsMalformedBody(t *testing.T) {
	for name, body := range map[string]string{
		"truncated json":   `{"question":`,
		"missing question": `{"session_id":"sess-1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := serve(func(r *gin.Engine) {
				r.POST("/query", QueryHandler(&fakeAsker{}))
			}, http.MethodPost, "/query", body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "malformed_request")
		})
	}
}

func TestQueryHandlerMapsOrchestratorErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"rate limited", &services.QueryError{Status: 429, Code: "rate_limit_exceeded", Message: "window resets at noon"}, 429, "rate_limit_exceeded"},
		{"token budget", &services.QueryError{Status: 429, Code: "session_token_budget_exceeded", Message: "budget spent"}, 429, "session_token_budget_exceeded"},
		{"retrieval down", &services.QueryError{Status: 503, Code: "retrieval_unavailable", Message: "index unreachable"}, 503, "retrieval_unavailable"},
		{"synthesis failed", &services.QueryError{Status: 502, Code: "synthesis_failed", Message: "model error"}, 502, "synthesis_failed"},
		{"timeout", &services.QueryError{Status: 504, Code: "query_timeout", Message: "deadline"}, 504, "query_timeout"},
		{"unclassified", errors.New("boom"), 500, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(func(r *gin.Engine) {
				r.POST("/query", QueryHandler(&fakeAsker{err: tc.err}))
			}, http.MethodPost, "/query", `{"question":"q?"}`)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tc.wantCode)
			if tc.wantStatus == http.StatusTooManyRequests {
				assert.Equal(t, "60", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestSearchHandlerStripsEmbeddings(t *testing.T) {
	repo := &fakeLogRepo{hits: []models.VectorDocument{
		{RequestID: "req-1", Service: "payment", Message: "timeout", LogEmbedding: []float32{1, 2, 3}},
	}}

	w := serve(func(r *gin.Engine) {
		r.GET("/logs/search", SearchHandler(repo, 10, 50))
	}, http.MethodGet, "/logs/search?q=timeout", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "log_embedding")
	var resp dto.SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "req-1", resp.Hits[0].RequestID)
	assert.Equal(t, "timeout", repo.lastQuery)
	assert.Equal(t, 10, repo.lastLimit)
}

func TestSearchHandlerValidatesAndClamps(t *testing.T) {
	repo := &fakeLogRepo{}

	w := serve(func(r *gin.Engine) {
		r.GET("/logs/search", SearchHandler(repo, 10, 50))
	}, http.MethodGet, "/logs/search?q=", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(func(r *gin.Engine) {
		r.GET("/logs/search", SearchHandler(repo, 10, 50))
	}, http.MethodGet, "/logs/search?q=x&size=9999", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, repo.lastLimit)
}

func TestSessionStatsHandlerEchoesPathID(t *testing.T) {
	asker := &fakeAsker{st: services.SessionStats{
		RequestsInWindow:  2,
		RemainingRequests: 98,
		TokensUsed:        134,
		TokenBudget:       100000,
		CacheEntries:      2,
	}}

	w := serve(func(r *gin.Engine) {
		r.GET("/sessions/:id/stats", SessionStatsHandler(asker))
	}, http.MethodGet, "/sessions/sess-42/stats", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.SessionStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess-42", resp.SessionID)
	assert.Equal(t, 2, resp.RequestsInWindow)
	assert.Equal(t, 98, resp.RemainingRequests)
	assert.Equal(t, int64(134), resp.TokensUsed)
}

func TestLogStatsHandlerTotalsServices(t *testing.T) {
	repo := &fakeLogRepo{counts: map[string]int64{"payment": 3, "checkout": 2}}

	w := serve(func(r *gin.Engine) {
		r.GET("/logs/stats", LogStatsHandler(repo))
	}, http.MethodGet, "/logs/stats", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.LogStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.Total)
	assert.Equal(t, int64(3), resp.Services["payment"])
}

func TestModelCallsHandlerCapsLimit(t *testing.T) {
	repo := &fakeCallRepo{}

	w := serve(func(r *gin.Engine) {
		r.GET("/model-calls", ModelCallsHandler(repo))
	}, http.MethodGet, "/model-calls?call_type=synthesis&limit=9999", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "synthesis", repo.lastCallType)
	assert.Equal(t, int64(500), repo.lastLimit)

	var resp dto.ModelCallsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Calls)
	assert.Zero(t, resp.Count)
}
