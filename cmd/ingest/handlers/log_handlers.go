package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/dto"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/pipeline"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/services"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/embedder"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// BatchIngestHandler godoc
// @Summary      Ingest a batch of log records
// @Description  Embed log records and upsert them into the vector index. Per-record status: accepted, deferred (redelivered via Kafka) or rejected.
// @Tags         logs
// @Accept       json
// @Param        batch  body  dto.BatchIngestRequest  true  "Log records (request_id optional)"
// @Produce      json
// @Success      200  {object}  dto.BatchIngestResponse
// @Failure      400  {object}  dto.ErrorResponseDTO
// @Failure      413  {object}  dto.ErrorResponseDTO
// @Failure      500  {object}  dto.ErrorResponseDTO
// @Failure      503  {object}  dto.ErrorResponseDTO
// @Router       /logs/batch [post]
func BatchIngestHandler(svc *services.IngestService, maxBatchRecords int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.BatchIngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			// binding:"required" 가 빈 배열도 걸러낸다.
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_request"})
			return
		}
		if maxBatchRecords > 0 && len(req.Records) > maxBatchRecords {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":             "batch_too_large",
				"max_batch_records": maxBatchRecords,
			})
			return
		}

		resp, err := svc.IngestBatch(c.Request.Context(), req.Records)
		if err != nil {
			ingestErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// SingleIngestHandler godoc
// @Summary      Ingest one log record
// @Description  Convenience wrapper around batch ingestion for a single record
// @Tags         logs
// @Accept       json
// @Param        record  body  models.LogRecord  true  "Log record"
// @Produce      json
// @Success      200  {object}  dto.RecordResult
// @Failure      400  {object}  dto.ErrorResponseDTO
// @Failure      500  {object}  dto.ErrorResponseDTO
// @Failure      503  {object}  dto.ErrorResponseDTO
// @Router       /logs [post]
func SingleIngestHandler(svc *services.IngestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rec models.LogRecord
		if err := c.ShouldBindJSON(&rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_request"})
			return
		}

		resp, err := svc.IngestBatch(c.Request.Context(), []models.LogRecord{rec})
		if err != nil {
			ingestErrorResponse(c, err)
			return
		}
		c.JSON(http.StatusOK, resp.Results[0])
	}
}

// ingestErrorResponse 는 실행 단위 오류를 HTTP 응답으로 옮긴다. 포화와
// 인덱스 쓰기 실패는 잠시 후 재시도 대상이고, 차원 불일치는 재시도가
// 아니라 설정을 고쳐야 하는 오류라서 상태 코드를 구분한다.
func ingestErrorResponse(c *gin.Context, err error) {
	var dimErr *embedder.DimensionError
	switch {
	case errors.Is(err, pipeline.ErrSaturated):
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingest_saturated"})
	case errors.As(err, &dimErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "configuration_error", "detail": dimErr.Error()})
	default:
		c.Header("Retry-After", "10")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "index_write_failed"})
	}
}
