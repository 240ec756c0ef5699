package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// ErrRetrievalUnavailable 은 벡터 인덱스 장애를 뜻한다. 빈 검색 결과와
// 구분되는 실패여야 하므로 절대 빈 컨텍스트로 뭉개지 않는다.
var ErrRetrievalUnavailable = errors.New("vector index unavailable")

// Searcher 는 벡터 유사도 검색 저장소다.
type Searcher interface {
	SearchByVector(ctx context.Context, vector []float32, k int, minScore float64) ([]models.ScoredDocument, error)
}

// RetrievalService 는 top-K 상한과 점수 임계값을 소유한다. ANN 알고리즘
// 파라미터는 인덱스 쪽 관심사다.
type RetrievalService struct {
	repo        Searcher
	defaultSize int
	maxSize     int
	minScore    float64
}

func NewRetrievalService(repo Searcher, defaultSize, maxSize int, minScore float64) *RetrievalService {
	return &RetrievalService{repo: repo, defaultSize: defaultSize, maxSize: maxSize, minScore: minScore}
}

// Search 는 topK 를 설정 범위로 보정해 유사 로그를 찾는다.
func (s *RetrievalService) Search(ctx context.Context, vector []float32, topK int) ([]models.ScoredDocument, error) {
	if topK <= 0 {
		topK = s.defaultSize
	}
	if topK > s.maxSize {
		topK = s.maxSize
	}
	docs, err := s.repo.SearchByVector(ctx, vector, topK, s.minScore)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	return docs, nil
}
