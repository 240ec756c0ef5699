package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/trace"
)

// 완료 로그에 남기는 본문 스니펫 길이 상한. 배치 인제스트 본문은 수 MB
// 까지 갈 수 있으므로 앞부분만 남깁니다.
const maxBodyLog = 1024

// RequestTrace 는 모든 inbound 요청에 Request ID 와 Span ID 를 보장하고,
// 이를 컨텍스트와 응답 헤더에 실은 뒤 완료 로그 한 줄을 남깁니다.
// inbound 로그는 span_id=0 이고, 요청 처리 중의 외부 호출(모델 API 등)이
// 1,2,3,... 을 차지합니다.
func RequestTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		requestID := req.Header.Get(trace.HeaderRequestID)
		if requestID == "" {
			requestID = trace.GenerateID()
		}

		ctxWithTrace := trace.WithRequestAndSpan(req.Context(), requestID, 0)
		c.Request = req.WithContext(ctxWithTrace)
		req = c.Request

		// 요청/응답 헤더 양쪽에 실어 호출자가 같은 ID 로 추적을 이어가게 합니다.
		currentSpan := trace.CurrentSpanID(ctxWithTrace)
		c.Request.Header.Set(trace.HeaderRequestID, requestID)
		c.Request.Header.Set(trace.HeaderSpanID, currentSpan)
		c.Writer.Header().Set(trace.HeaderRequestID, requestID)
		c.Writer.Header().Set(trace.HeaderSpanID, currentSpan)

		queryParams := copyQueryParams(req)
		bodySnippet := captureBodySnippet(c)

		c.Next()

		fields := logger.Fields{
			"method":       req.Method,
			"path":         req.URL.Path,
			"query_params": queryParams,
			"status":       c.Writer.Status(),
			"duration":     time.Since(start).String(),
			"request_id":   requestID,
			"span_id":      trace.CurrentSpanID(c.Request.Context()),
		}
		if bodySnippet != "" {
			fields["body"] = bodySnippet
		}
		logger.InfoWithFields("completed request", fields)
	}
}

// copyQueryParams 는 멀티 값 쿼리도 보존하도록 map[string][]string 으로
// 복사합니다.
func copyQueryParams(req *http.Request) map[string][]string {
	params := map[string][]string{}
	for key, values := range req.URL.Query() {
		if len(values) > 0 {
			params[key] = values
		}
	}
	return params
}

// captureBodySnippet 은 본문이 있는 메서드에 한해 앞 maxBodyLog 바이트를
// 읽고, gin 핸들러가 다시 읽을 수 있도록 Body 를 복원합니다.
func captureBodySnippet(c *gin.Context) string {
	req := c.Request
	if req.Body == nil || req.ContentLength == 0 {
		return ""
	}
	switch req.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return ""
	}

	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if len(bodyBytes) > maxBodyLog {
		return string(bodyBytes[:maxBodyLog])
	}
	return string(bodyBytes)
}
