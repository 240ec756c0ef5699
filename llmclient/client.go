// Package llmclient wraps the external model APIs (embedding + answer
// synthesis) behind small interfaces with a shared error taxonomy and
// retry discipline. Callers never see provider SDK errors directly;
// every failure is classified into a Kind that decides retryability.
package llmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// Kind classifies a model API failure.
type Kind int

const (
	// KindInvalidInput: 요청 자체가 잘못된 경우. 재시도해도 동일하게
	// 실패하므로 절대 재시도하지 않고 즉시 반환한다.
	KindInvalidInput Kind = iota + 1
	// KindRateLimited: 스로틀링. 백오프 후 재시도한다.
	KindRateLimited
	// KindTimeout: 설정된 타임아웃 초과. 백오프 후 재시도한다.
	KindTimeout
	// KindUpstream: 제공자 측 장애(5xx 등). 한정된 횟수만 재시도한다.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindUpstream:
		return "upstream_error"
	}
	return "unknown"
}

// Error is a classified model API failure.
type Error struct {
	Kind Kind
	Op   string // e.g. "bedrock.embed"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a classified error, or 0 for anything else.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// Embedding is the result of one embedding call.
type Embedding struct {
	Vector      []float32
	InputTokens int
}

// Embedder turns one normalized text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
	ModelID() string
}

// Completion is the result of one synthesis call.
type Completion struct {
	Text         string
	ModelVersion string
	Usage        models.TokenUsage
}

// Generator produces a completion from a system instruction and a user
// prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (Completion, error)
}

// New builds the provider-specific client pair from config. Both roles
// are served by one client per provider.
func New(ctx context.Context, cfg config.LLMConfig) (Embedder, Generator, error) {
	switch cfg.Provider {
	case "bedrock":
		c, err := NewBedrockClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case "google":
		c, err := NewGoogleClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
