package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/budget"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/trace"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/ratelimit"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/synthesizer"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/embedder"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/llmclient"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/normalize"
)

const snippetLen = 200

// QueryError 는 실패한 질의의 HTTP 매핑을 담는다. 레이트 리밋과 인덱스
// 장애는 사용자에게 구분되는 메시지로 내려가야 한다.
type QueryError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ModelCallRecorder 는 모델 호출 감사 저장소다.
type ModelCallRecorder interface {
	Insert(ctx context.Context, log models.ModelCallLog) (*mongo.InsertOneResult, error)
}

// AskResult 는 질의 한 건의 응답 재료다.
type AskResult struct {
	SessionID string
	Answer    models.Answer
	FromCache bool
	Retrieved int
	CostUSD   float64
}

// QueryService 는 질문 한 건의 전체 흐름을 조율한다.
type QueryService struct {
	embed      *embedder.Service
	retrieval  *RetrievalService
	synth      *synthesizer.Service
	sessions   *SessionService
	limiter    ratelimit.Limiter
	callLogs   ModelCallRecorder
	cfg        config.QueryConfig
	synthModel string
}

func NewQueryService(
	embed *embedder.Service,
	retrieval *RetrievalService,
	synth *synthesizer.Service,
	sessions *SessionService,
	limiter ratelimit.Limiter,
	callLogs ModelCallRecorder,
	cfg config.QueryConfig,
	synthModel string,
) *QueryService {
	return &QueryService{
		embed:      embed,
		retrieval:  retrieval,
		synth:      synth,
		sessions:   sessions,
		limiter:    limiter,
		callLogs:   callLogs,
		cfg:        cfg,
		synthModel: synthModel,
	}
}

// Ask 는 질문 한 건을 처리한다. 순서: 세션 답변 캐시 → 레이트 리밋 →
// 세션 토큰 예산 → 질문 임베딩 → 유사 로그 검색 → 답변 생성 → 비용
// 기록 → 캐시 적재. 캐시 적중은 레이트 리밋 앞에서 끝나므로 창의 요청
// 수를 소비하지 않는다.
func (s *QueryService) Ask(ctx context.Context, sessionID, question string, topK int) (AskResult, error) {
	start := time.Now()

	q := normalize.Question(question)
	if q == "" {
		queriesTotal.WithLabelValues("invalid").Inc()
		return AskResult{}, &QueryError{Status: http.StatusBadRequest, Code: "invalid_question", Message: "question is empty"}
	}
	if n := utf8.RuneCountInString(q); n > s.cfg.MaxQueryLength {
		queriesTotal.WithLabelValues("invalid").Inc()
		return AskResult{}, &QueryError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_question",
			Message: fmt.Sprintf("question is %d characters, limit is %d", n, s.cfg.MaxQueryLength),
		}
	}

	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	sess := s.sessions.GetOrCreate(sessionID)

	if ans, ok := sess.CachedAnswer(q); ok {
		queriesTotal.WithLabelValues("cache_hit").Inc()
		return AskResult{SessionID: sessionID, Answer: ans, FromCache: true, Retrieved: len(ans.Sources)}, nil
	}

	if d := s.limiter.Allow(ctx, sessionID); !d.Allowed {
		queriesTotal.WithLabelValues("rate_limited").Inc()
		return AskResult{}, &QueryError{
			Status: http.StatusTooManyRequests,
			Code:   "rate_limit_exceeded",
			Message: fmt.Sprintf("session exceeded %d requests per rolling hour, window resets at %s",
				s.cfg.MaxRequestsPerHour, d.ResetAt.UTC().Format(time.RFC3339)),
		}
	}

	if used := sess.TokensUsed(); used >= int64(s.cfg.MaxTokensPerSession) {
		queriesTotal.WithLabelValues("token_budget").Inc()
		return AskResult{}, &QueryError{
			Status:  http.StatusTooManyRequests,
			Code:    "session_token_budget_exceeded",
			Message: fmt.Sprintf("session consumed %d of its %d token budget, start a new session", used, s.cfg.MaxTokensPerSession),
		}
	}

	emb, qerr := s.embedQuestion(ctx, q)
	if qerr != nil {
		queriesTotal.WithLabelValues(qerr.Code).Inc()
		return AskResult{}, qerr
	}

	docs, err := s.retrieval.Search(ctx, emb.Vector, topK)
	if err != nil {
		if ctx.Err() != nil {
			queriesTotal.WithLabelValues("query_timeout").Inc()
			return AskResult{}, &QueryError{Status: http.StatusGatewayTimeout, Code: "query_timeout", Message: "vector search timed out, retry shortly", Err: err}
		}
		queriesTotal.WithLabelValues("retrieval_unavailable").Inc()
		logger.ErrorWithFields("vector search failed", logger.Fields{
			"session_id": sessionID,
			"request_id": trace.RequestIDFromContext(ctx),
			"error":      err.Error(),
		})
		return AskResult{}, &QueryError{Status: http.StatusServiceUnavailable, Code: "retrieval_unavailable", Message: "the vector index is unreachable, ingestion is unaffected", Err: err}
	}

	ans, qerr := s.synthesize(ctx, q, docs)
	if qerr != nil {
		queriesTotal.WithLabelValues(qerr.Code).Inc()
		return AskResult{}, qerr
	}

	totalTokens := int64(emb.Tokens) + ans.Usage.TotalTokens
	sess.AddTokens(totalTokens)
	cost := budget.Metrics{TokensProcessed: int(totalTokens)}.EstimatedCostUSD()

	sess.StoreAnswer(q, ans)

	queriesTotal.WithLabelValues("answered").Inc()
	queryDuration.Observe(time.Since(start).Seconds())
	logger.InfoWithFields("question answered", logger.Fields{
		"session_id":  sessionID,
		"request_id":  trace.RequestIDFromContext(ctx),
		"retrieved":   len(docs),
		"tokens":      totalTokens,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return AskResult{SessionID: sessionID, Answer: ans, Retrieved: len(docs), CostUSD: cost}, nil
}

func (s *QueryService) embedQuestion(ctx context.Context, q string) (embedder.Result, *QueryError) {
	start := time.Now()
	res, err := s.embed.Embed(ctx, q, nil)
	if err != nil {
		var le *llmclient.Error
		if errors.As(err, &le) && le.Kind == llmclient.KindTimeout {
			return embedder.Result{}, &QueryError{Status: http.StatusGatewayTimeout, Code: "query_timeout", Message: "embedding the question timed out, retry shortly", Err: err}
		}
		return embedder.Result{}, &QueryError{Status: http.StatusServiceUnavailable, Code: "retrieval_unavailable", Message: "question embedding failed, the index was not queried", Err: err}
	}
	if !res.CacheHit {
		s.recordCall(ctx, models.ModelCallLog{
			CallType:     models.CallTypeEmbedding,
			ModelName:    s.embed.ModelID(),
			InputTokens:  int64(res.Tokens),
			TotalTokens:  int64(res.Tokens),
			DurationMs:   time.Since(start).Milliseconds(),
			InputSnippet: normalize.Truncate(q, snippetLen),
			RequestedAt:  start,
			CompletedAt:  time.Now(),
		})
	}
	return res, nil
}

func (s *QueryService) synthesize(ctx context.Context, q string, docs []models.ScoredDocument) (models.Answer, *QueryError) {
	start := time.Now()
	ans, err := s.synth.Synthesize(ctx, q, docs)
	if err != nil {
		var le *llmclient.Error
		if errors.As(err, &le) && le.Kind == llmclient.KindTimeout {
			return models.Answer{}, &QueryError{Status: http.StatusGatewayTimeout, Code: "query_timeout", Message: "answer synthesis timed out, retry shortly", Err: err}
		}
		return models.Answer{}, &QueryError{Status: http.StatusBadGateway, Code: "synthesis_failed", Message: "the synthesis model could not produce an answer", Err: err}
	}
	// 검색 결과가 비면 모델 호출 없이 거절 문장이 돌아오므로 감사
	// 레코드도 없다.
	if len(docs) > 0 {
		s.recordCall(ctx, models.ModelCallLog{
			CallType:      models.CallTypeSynthesis,
			ModelName:     s.synthModel,
			InputTokens:   ans.Usage.InputTokens,
			OutputTokens:  ans.Usage.OutputTokens,
			TotalTokens:   ans.Usage.TotalTokens,
			DurationMs:    time.Since(start).Milliseconds(),
			InputSnippet:  normalize.Truncate(q, snippetLen),
			OutputSnippet: normalize.Truncate(ans.Text, snippetLen),
			RequestedAt:   start,
			CompletedAt:   time.Now(),
		})
	}
	return ans, nil
}

// recordCall 은 모델 호출 감사 레코드를 남긴다. 감사 실패가 질의까지
// 실패시키지는 않는다.
func (s *QueryService) recordCall(ctx context.Context, log models.ModelCallLog) {
	if s.callLogs == nil {
		return
	}
	if log.TraceRequestID == "" {
		log.TraceRequestID = trace.RequestIDFromContext(ctx)
	}
	if _, err := s.callLogs.Insert(ctx, log); err != nil {
		logger.WarnWithFields("model call audit insert failed", logger.Fields{
			"call_type": log.CallType,
			"error":     err.Error(),
		})
	}
}

// SessionStats 는 세션 현황 응답 재료다.
type SessionStats struct {
	RequestsInWindow  int
	RemainingRequests int
	TokensUsed        int64
	TokenBudget       int
	CacheEntries      int
}

// Stats 는 알 수 없는 세션에도 0 값 통계를 돌려준다. 레지스트리는
// 레플리카 로컬이고 리밋 창은 Redis 일 수 있어 둘의 존재가 항상
// 일치하지는 않는다.
func (s *QueryService) Stats(ctx context.Context, sessionID string) SessionStats {
	st := SessionStats{TokenBudget: s.cfg.MaxTokensPerSession}
	st.RequestsInWindow = s.limiter.Occupancy(ctx, sessionID)
	if st.RemainingRequests = s.cfg.MaxRequestsPerHour - st.RequestsInWindow; st.RemainingRequests < 0 {
		st.RemainingRequests = 0
	}
	if sess, ok := s.sessions.Peek(sessionID); ok {
		st.TokensUsed = sess.TokensUsed()
		st.CacheEntries = sess.CacheEntries()
	}
	return st
}
