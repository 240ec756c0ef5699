// Package httpclient 는 내부 도구가 서비스 API 를 부를 때 쓰는 공통
// 클라이언트입니다. 모든 outbound 호출에 추적 헤더를 싣고 완료 로그를
// 남깁니다.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/trace"
)

// 로그에 남기는 요청 본문 스니펫 길이 상한.
const maxBodyLog = 1024

// Config 는 HTTP 클라이언트 공통 설정입니다.
type Config struct {
	Timeout time.Duration
}

// New 는 주어진 설정으로 추적/로깅 래퍼가 붙은 http.Client 를 생성합니다.
// Timeout 이 0 이면 10초를 씁니다.
func New(cfg Config) *http.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &loggingRoundTripper{inner: http.DefaultTransport},
	}
}

// NewDefault 는 기본 설정(Timeout 10초)의 http.Client 를 생성합니다.
func NewDefault() *http.Client {
	return New(Config{})
}

// loggingRoundTripper 는 outbound 호출마다 추적 헤더를 채우고 결과를
// 로그로 남깁니다.
type loggingRoundTripper struct {
	inner http.RoundTripper
}

func (l *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	requestID, spanID := trace.NextSpanID(req.Context())
	req.Header.Set(trace.HeaderRequestID, requestID)
	req.Header.Set(trace.HeaderSpanID, spanID)

	bodySnippet := snippetAndRestore(req)

	resp, err := l.inner.RoundTrip(req)

	fields := logger.Fields{
		"method":     req.Method,
		"url":        req.URL.String(),
		"duration":   time.Since(start).String(),
		"request_id": requestID,
		"span_id":    spanID,
	}
	if q := req.URL.RawQuery; q != "" {
		fields["query"] = q
	}
	if bodySnippet != "" {
		fields["body"] = bodySnippet
	}

	if err != nil {
		fields["error"] = err.Error()
		logger.ErrorWithFields("httpclient request failed", fields)
		return nil, err
	}

	fields["status"] = resp.StatusCode
	logger.DebugWithFields("httpclient request success", fields)
	return resp, nil
}

// snippetAndRestore 는 본문 앞부분을 로그용으로 떼어내고, 실제 전송을
// 위해 Body 를 복원합니다.
func snippetAndRestore(req *http.Request) string {
	if req.Body == nil {
		return ""
	}
	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		return ""
	}
	req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if len(bodyBytes) > maxBodyLog {
		return string(bodyBytes[:maxBodyLog])
	}
	return string(bodyBytes)
}

// BaseClient 는 baseURL 과 클라이언트를 묶어 상대 경로 기반의 요청
// 생성을 도와줍니다.
type BaseClient struct {
	HTTPClient *http.Client
	BaseURL    string
}

// NewBaseClient 는 주어진 http.Client 를 쓰는 BaseClient 를 생성합니다.
// httpClient 가 nil 이면 기본 클라이언트를 씁니다.
func NewBaseClient(httpClient *http.Client, baseURL string) *BaseClient {
	if httpClient == nil {
		httpClient = NewDefault()
	}
	return &BaseClient{
		HTTPClient: httpClient,
		BaseURL:    baseURL,
	}
}

// NewRequest 는 baseURL 과 상대 경로, 쿼리, 바디로 요청을 생성합니다.
// relPath 에 쿼리 문자열이 들어오면 path.Join 이 "?" 이후를 손상시키므로
// 쿼리는 반드시 query 인자로 받습니다.
func (c *BaseClient) NewRequest(ctx context.Context, method, relPath string, query url.Values, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.Contains(relPath, "?") {
		return nil, fmt.Errorf("httpclient: relPath must not contain query string (use query parameter instead): %s", relPath)
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	if relPath != "" {
		base.Path = path.Join(base.Path, relPath)
	}
	if query != nil {
		base.RawQuery = query.Encode()
	}
	return http.NewRequestWithContext(ctx, method, base.String(), body)
}

// Do 는 내부 HTTP 클라이언트로 요청을 실행합니다.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	return c.HTTPClient.Do(req)
}
