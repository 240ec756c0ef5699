package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/dto"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/pipeline"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/services"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/eventbus"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/embedder"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/llmclient"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/repositories"
)

type fakeEmbedClient struct{ dim int }

func (f *fakeEmbedClient) Embed(ctx context.Context, text string) (llmclient.Embedding, error) {
	return llmclient.Embedding{Vector: make([]float32, f.dim), InputTokens: 5}, nil
}

func (f *fakeEmbedClient) ModelID() string { return "test-embed-model" }

type fakeStore struct{}

func (fakeStore) BulkUpsert(ctx context.Context, docs []models.VectorDocument) (repositories.BulkUpsertResult, error) {
	return repositories.BulkUpsertResult{Upserted: len(docs), Failed: map[string]string{}}, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, topic string, event eventbus.Event) error {
	return nil
}

func newIngestService() *services.IngestService {
	cfg := config.PipelineConfig{
		MaxTextLength:           8000,
		BatchSize:               10,
		WorkerCount:             2,
		QueueDepth:              2,
		EnableCaching:           true,
		EnableCostTracking:      true,
		MaxTokensPerExecution:   100000,
		ExecutionTimeoutSeconds: 30,
	}
	svc := embedder.NewService(&fakeEmbedClient{dim: 4}, 4, embedder.NewCache(16, time.Minute))
	return services.NewIngestService(pipeline.New(cfg, svc, fakeStore{}), noopPublisher{})
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

func TestBatchIngestHandlerAcceptsRecords(t *testing.T) {
	svc := newIngestService()

	body := `{"records": [
		{"service": "checkout", "level": "ERROR", "message": "payment gateway timeout"},
		{"request_id": "req-keep", "service": "auth", "level": "INFO", "message": "login ok"}
	]}`
	w := serve(func(r *gin.Engine) {
		r.POST("/api/v1/logs/batch", BatchIngestHandler(svc, 500))
	}, http.MethodPost, "/api/v1/logs/batch", body)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.BatchIngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ExecutionID)
	assert.Equal(t, 2, resp.Summary.Accepted)
	require.Len(t, resp.Results, 2)
	assert.NotEmpty(t, resp.Results[0].RequestID)
	assert.Equal(t, "req-keep", resp.Results[1].RequestID)
	assert.Equal(t, dto.StatusAccepted, resp.Results[1].Status)
}

func TestBatchIngestHandlerRejectsMalformedBody(t *testing.T) {
	svc := newIngestService()
	register := func(r *gin.Engine) {
		r.POST("/api/v1/logs/batch", BatchIngestHandler(svc, 500))
	}

	for name, body := range map[string]string{
		"truncated json":  `{"records": [`,
		"missing records": `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := serve(register, http.MethodPost, "/api/v1/logs/batch", body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "malformed_request")
		})
	}
}

func TestBatchIngestHandlerLimitsBatchSize(t *testing.T) {
	svc := newIngestService()

	body := `{"records": [
		{"message": "a"}, {"message": "b"}, {"message": "c"}
	]}`
	w := serve(func(r *gin.Engine) {
		r.POST("/api/v1/logs/batch", BatchIngestHandler(svc, 2))
	}, http.MethodPost, "/api/v1/logs/batch", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "batch_too_large")
}

func TestSingleIngestHandlerReturnsRecordStatus(t *testing.T) {
	svc := newIngestService()

	w := serve(func(r *gin.Engine) {
		r.POST("/api/v1/logs", SingleIngestHandler(svc))
	}, http.MethodPost, "/api/v1/logs", `{"request_id": "req-one", "service": "auth", "level": "ERROR", "message": "boom"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var res dto.RecordResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "req-one", res.RequestID)
	assert.Equal(t, dto.StatusAccepted, res.Status)
}
