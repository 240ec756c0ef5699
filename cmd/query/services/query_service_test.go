package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/ratelimit"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/query/synthesizer"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/embedder"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/llmclient"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

type fakeEmbedClient struct {
	mu    sync.Mutex
	calls int
	dim   int
	err   error
}

func (f *fakeEmbedClient) Embed(_ context.Context, _ string) (llmclient.Embedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return llmclient.Embedding{}, f.err
	}
	return llmclient.Embedding{Vector: make([]float32, f.dim), InputTokens: 7}, nil
}

func (f *fakeEmbedClient) ModelID() string { return "titan-test" }

type fakeSearcher struct {
	mu           sync.Mutex
	calls        int
	lastK        int
	lastMinScore float64
	docs         []models.ScoredDocument
	err          error
}

func (f *fakeSearcher) SearchByVector(_ context.Context, _ []float32, k int, minScore float64) ([]models.ScoredDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastK = k
	f.lastMinScore = minScore
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, _, _ string) (llmclient.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return llmclient.Completion{}, f.err
	}
	return llmclient.Completion{
		Text:  f.text,
		Usage: models.TokenUsage{InputTokens: 50, OutputTokens: 10, TotalTokens: 60},
	}, nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	logs []models.ModelCallLog
}

func (f *fakeRecorder) Insert(_ context.Context, log models.ModelCallLog) (*mongo.InsertOneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return &mongo.InsertOneResult{}, nil
}

func (f *fakeRecorder) byType(callType string) []models.ModelCallLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ModelCallLog
	for _, l := range f.logs {
		if l.CallType == callType {
			out = append(out, l)
		}
	}
	return out
}

func testQueryConfig() config.QueryConfig {
	return config.QueryConfig{
		DefaultSearchSize:   10,
		MaxSearchSize:       50,
		MaxQueryLength:      500,
		MaxTokensPerSession: 100000,
		MaxRequestsPerHour:  100,
		QueryCache:          config.CacheConfig{Capacity: 16, TTLSeconds: 60},
		MaxSessions:         8,
		SessionIdleSeconds:  3600,
	}
}

type queryFixture struct {
	svc      *QueryService
	embed    *fakeEmbedClient
	searcher *fakeSearcher
	gen      *fakeGenerator
	recorder *fakeRecorder
	sessions *SessionService
	limiter  ratelimit.Limiter
	cfg      config.QueryConfig
}

func newQueryFixture(mutate func(*config.QueryConfig)) *queryFixture {
	cfg := testQueryConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	f := &queryFixture{
		embed: &fakeEmbedClient{dim: 4},
		searcher: &fakeSearcher{docs: []models.ScoredDocument{
			{Document: models.VectorDocument{RequestID: "req-1", Service: "payment", Level: "ERROR", Message: "upstream timeout", Timestamp: time.Now()}, Score: 0.91},
			{Document: models.VectorDocument{RequestID: "req-2", Service: "payment", Level: "WARN", Message: "retrying capture", Timestamp: time.Now()}, Score: 0.74},
		}},
		gen:      &fakeGenerator{text: "The payment service timed out talking to its upstream."},
		recorder: &fakeRecorder{},
		cfg:      cfg,
	}
	f.sessions = NewSessionService(cfg)
	f.limiter = ratelimit.NewLocalLimiter(cfg.MaxRequestsPerHour, time.Hour)
	embSvc := embedder.NewService(f.embed, f.embed.dim, embedder.NewCache(32, time.Minute))
	ret := NewRetrievalService(f.searcher, cfg.DefaultSearchSize, cfg.MaxSearchSize, cfg.MinScore)
	syn := synthesizer.NewService(f.gen, 24000)
	f.svc = NewQueryService(embSvc, ret, syn, f.sessions, f.limiter, f.recorder, cfg, "claude-test")
	return f
}

func asQueryError(t *testing.T, err error) *QueryError {
	t.Helper()
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	return qe
}

func TestAskAnswersFromRetrievedLogs(t *testing.T) {
	f := newQueryFixture(nil)

	res, err := f.svc.Ask(context.Background(), "sess-1", "why did payment fail?", 5)

	require.NoError(t, err)
	assert.Equal(t, "sess-1", res.SessionID)
	assert.False(t, res.FromCache)
	assert.Equal(t, 2, res.Retrieved)
	assert.Equal(t, "The payment service timed out talking to its upstream.", res.Answer.Text)
	assert.Equal(t, []string{"req-1", "req-2"}, res.Answer.Sources)
	// 7 임베딩 토큰 + 60 합성 토큰
	assert.InDelta(t, 6.7e-6, res.CostUSD, 1e-12)

	sess, ok := f.sessions.Peek("sess-1")
	require.True(t, ok)
	assert.Equal(t, int64(67), sess.TokensUsed())

	embLogs := f.recorder.byType(models.CallTypeEmbedding)
	require.Len(t, embLogs, 1)
	assert.Equal(t, "titan-test", embLogs[0].ModelName)
	assert.Equal(t, int64(7), embLogs[0].TotalTokens)

	synLogs := f.recorder.byType(models.CallTypeSynthesis)
	require.Len(t, synLogs, 1)
	assert.Equal(t, "claude-test", synLogs[0].ModelName)
	assert.Equal(t, int64(60), synLogs[0].TotalTokens)
	assert.Contains(t, synLogs[0].OutputSnippet, "payment service timed out")
}

func TestAskGeneratesSessionIDWhenMissing(t *testing.T) {
	f := newQueryFixture(nil)

	res, err := f.svc.Ask(context.Background(), "", "why did payment fail?", 0)

	require.NoError(t, err)
	_, parseErr := uuid.Parse(res.SessionID)
	assert.NoError(t, parseErr)
}

func TestAskCachedAnswerShortCircuits(t *testing.T) {
	f := newQueryFixture(nil)
	ctx := context.Background()

	first, err := f.svc.Ask(ctx, "sess-1", "why did payment fail?", 5)
	require.NoError(t, err)

	// 공백만 다른 같은 질문도 같은 캐시 키로 정규화된다.
	second, err := f.svc.Ask(ctx, "sess-1", "  why   did payment fail? ", 5)
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.Answer.Text, second.Answer.Text)
	assert.Zero(t, second.CostUSD)
	assert.Equal(t, 1, f.embed.calls)
	assert.Equal(t, 1, f.searcher.calls)
	assert.Equal(t, 1, f.gen.calls)
	// 캐시 적중은 레이트 리밋 창을 소비하지 않는다.
	assert.Equal(t, 1, f.limiter.Occupancy(ctx, "sess-1"))
}

func TestAskOverRequestLimitIsRejected(t *testing.T) {
	f := newQueryFixture(func(c *config.QueryConfig) { c.MaxRequestsPerHour = 1 })
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, "sess-1", "first question?", 0)
	require.NoError(t, err)

	_, err = f.svc.Ask(ctx, "sess-1", "second question?", 0)
	qe := asQueryError(t, err)
	assert.Equal(t, 429, qe.Status)
	assert.Equal(t, "rate_limit_exceeded", qe.Code)
	assert.Contains(t, qe.Message, "requests per rolling hour")
}

func TestAskOverTokenBudgetIsRejected(t *testing.T) {
	f := newQueryFixture(func(c *config.QueryConfig) { c.MaxTokensPerSession = 50 })
	ctx := context.Background()

	// 첫 질의는 67토큰을 기록해 예산을 넘긴다.
	_, err := f.svc.Ask(ctx, "sess-1", "first question?", 0)
	require.NoError(t, err)

	_, err = f.svc.Ask(ctx, "sess-1", "second question?", 0)
	qe := asQueryError(t, err)
	assert.Equal(t, 429, qe.Status)
	assert.Equal(t, "session_token_budget_exceeded", qe.Code)
	assert.Contains(t, qe.Message, "token budget")
}

func TestAskRejectsInvalidQuestions(t *testing.T) {
	f := newQueryFixture(nil)
	ctx := context.Background()

	for name, q := range map[string]string{
		"empty":      "",
		"whitespace": "   \t  ",
		"oversized":  strings.Repeat("q", 501),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Ask(ctx, "sess-1", q, 0)
			qe := asQueryError(t, err)
			assert.Equal(t, 400, qe.Status)
			assert.Equal(t, "invalid_question", qe.Code)
		})
	}
	assert.Equal(t, 0, f.embed.calls)
}

func TestAskEmbedTimeoutMapsToQueryTimeout(t *testing.T) {
	f := newQueryFixture(nil)
	f.embed.err = &llmclient.Error{Kind: llmclient.KindTimeout, Op: "bedrock.embed", Err: context.DeadlineExceeded}

	_, err := f.svc.Ask(context.Background(), "sess-1", "slow question?", 0)

	qe := asQueryError(t, err)
	assert.Equal(t, 504, qe.Status)
	assert.Equal(t, "query_timeout", qe.Code)
}

func TestAskEmbedFailureMapsToRetrievalUnavailable(t *testing.T) {
	f := newQueryFixture(nil)
	f.embed.err = &llmclient.Error{Kind: llmclient.KindUpstream, Op: "bedrock.embed", Err: errors.New("500")}

	_, err := f.svc.Ask(context.Background(), "sess-1", "question?", 0)

	qe := asQueryError(t, err)
	assert.Equal(t, 503, qe.Status)
	assert.Equal(t, "retrieval_unavailable", qe.Code)
	assert.Equal(t, 0, f.searcher.calls)
}

func TestAskSearchFailureMapsToRetrievalUnavailable(t *testing.T) {
	f := newQueryFixture(nil)
	f.searcher.err = errors.New("connection reset")

	_, err := f.svc.Ask(context.Background(), "sess-1", "question?", 0)

	qe := asQueryError(t, err)
	assert.Equal(t, 503, qe.Status)
	assert.Equal(t, "retrieval_unavailable", qe.Code)
	assert.True(t, errors.Is(err, ErrRetrievalUnavailable))
	assert.Equal(t, 0, f.gen.calls)
}

func TestAskSynthesisFailureMapsToBadGateway(t *testing.T) {
	f := newQueryFixture(nil)
	f.gen.err = &llmclient.Error{Kind: llmclient.KindUpstream, Op: "bedrock.generate", Err: errors.New("500")}

	_, err := f.svc.Ask(context.Background(), "sess-1", "question?", 0)

	qe := asQueryError(t, err)
	assert.Equal(t, 502, qe.Status)
	assert.Equal(t, "synthesis_failed", qe.Code)
}

func TestAskSynthesisTimeoutMapsToQueryTimeout(t *testing.T) {
	f := newQueryFixture(nil)
	f.gen.err = &llmclient.Error{Kind: llmclient.KindTimeout, Op: "bedrock.generate", Err: context.DeadlineExceeded}

	_, err := f.svc.Ask(context.Background(), "sess-1", "question?", 0)

	qe := asQueryError(t, err)
	assert.Equal(t, 504, qe.Status)
	assert.Equal(t, "query_timeout", qe.Code)
}

func TestAskEmptyRetrievalRefusesWithoutSynthesis(t *testing.T) {
	f := newQueryFixture(nil)
	f.searcher.docs = nil
	ctx := context.Background()

	res, err := f.svc.Ask(ctx, "sess-1", "unknown territory?", 0)

	require.NoError(t, err)
	assert.Equal(t, synthesizer.Refusal, res.Answer.Text)
	assert.Equal(t, 0, res.Retrieved)
	assert.Equal(t, 0, f.gen.calls)
	assert.Empty(t, f.recorder.byType(models.CallTypeSynthesis))

	// 거절 답변도 캐시된다.
	second, err := f.svc.Ask(ctx, "sess-1", "unknown territory?", 0)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, f.searcher.calls)
}

func TestAskClampsTopK(t *testing.T) {
	f := newQueryFixture(nil)
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, "sess-1", "first?", 0)
	require.NoError(t, err)
	assert.Equal(t, 10, f.searcher.lastK)

	_, err = f.svc.Ask(ctx, "sess-1", "second?", 500)
	require.NoError(t, err)
	assert.Equal(t, 50, f.searcher.lastK)
}

func TestStatsReportsSessionUsage(t *testing.T) {
	f := newQueryFixture(nil)
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, "sess-1", "first question?", 0)
	require.NoError(t, err)
	_, err = f.svc.Ask(ctx, "sess-1", "second question?", 0)
	require.NoError(t, err)

	st := f.svc.Stats(ctx, "sess-1")
	assert.Equal(t, 2, st.RequestsInWindow)
	assert.Equal(t, 98, st.RemainingRequests)
	assert.Equal(t, int64(134), st.TokensUsed)
	assert.Equal(t, 100000, st.TokenBudget)
	assert.Equal(t, 2, st.CacheEntries)

	unknown := f.svc.Stats(ctx, "sess-never-seen")
	assert.Equal(t, 0, unknown.RequestsInWindow)
	assert.Equal(t, 100, unknown.RemainingRequests)
	assert.Zero(t, unknown.TokensUsed)
	assert.Zero(t, unknown.CacheEntries)
}
