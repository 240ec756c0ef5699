// Package embedder sits between the pipeline and the raw model client:
// cache lookup first, then budget reservation, then the upstream call,
// then dimension enforcement and cache fill. Callers hand in normalized,
// truncated text; this package never rewrites it.
package embedder

import (
	"context"
	"fmt"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/budget"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/llmclient"
)

// DimensionError 는 업스트림이 설정과 다른 차원의 벡터를 반환했다는
// 뜻이다. 잘못된 차원으로 인덱스를 오염시키면 안 되므로 보정 없이
// 치명적 설정 오류로 올린다.
type DimensionError struct {
	Want, Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedder: model returned %d-dimension vector, index expects %d (fix embedding_dimension or model id)", e.Got, e.Want)
}

// Result is the outcome of one embedding request.
type Result struct {
	Vector   []float32
	Tokens   int  // tokens charged against the budget; 0 on cache hit
	CacheHit bool // true when no API call was made
}

// Service embeds texts for one model with optional caching and budget
// accounting. One Service is shared by all pipeline workers; concurrent
// requests for the same key collapse into a single upstream call.
type Service struct {
	client    llmclient.Embedder
	cache     *Cache // nil disables caching
	dimension int
	group     singleflight.Group
}

func NewService(client llmclient.Embedder, dimension int, cache *Cache) *Service {
	return &Service{client: client, cache: cache, dimension: dimension}
}

// ModelID returns the model the vectors are produced by, for stamping
// stored documents.
func (s *Service) ModelID() string { return s.client.ModelID() }

// Embed returns the vector for text. Cache hits cost nothing; misses
// reserve an estimate against tracker before the call and settle with
// the actual usage after. tracker may be nil (query side) to skip
// budget accounting entirely.
//
// Token estimation uses the rune count of the text: Titan counts
// roughly one token per word piece, so rune count over-estimates and
// the reservation errs on the safe side.
func (s *Service) Embed(ctx context.Context, text string, tracker *budget.Tracker) (Result, error) {
	key := CacheKey(s.client.ModelID(), text)
	if s.cache != nil {
		if vec, ok := s.cache.Get(key); ok {
			return Result{Vector: vec, CacheHit: true}, nil
		}
	}

	// 같은 키의 동시 요청은 한 번만 업스트림에 나간다. 배치 안의 중복
	// 레코드가 워커를 나눠 타도 호출 수는 텍스트당 1이다.
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		reservation, err := tracker.Reserve(utf8.RuneCountInString(text))
		if err != nil {
			return nil, err
		}

		emb, err := s.client.Embed(ctx, text)
		if err != nil {
			reservation.Settle(0, false)
			return nil, err
		}
		reservation.Settle(emb.InputTokens, true)

		if len(emb.Vector) != s.dimension {
			return nil, &DimensionError{Want: s.dimension, Got: len(emb.Vector)}
		}
		if s.cache != nil {
			s.cache.Add(key, emb.Vector)
		}
		return emb, nil
	})
	if err != nil {
		return Result{}, err
	}

	emb := v.(llmclient.Embedding)
	return Result{Vector: emb.Vector, Tokens: emb.InputTokens}, nil
}
