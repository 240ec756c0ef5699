package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

func TestSearchClampsTopK(t *testing.T) {
	cases := []struct {
		name string
		topK int
		want int
	}{
		{"zero uses default", 0, 10},
		{"negative uses default", -3, 10},
		{"in range passes through", 7, 7},
		{"over max is capped", 999, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeSearcher{docs: []models.ScoredDocument{}}
			svc := NewRetrievalService(repo, 10, 50, 0.4)

			_, err := svc.Search(context.Background(), []float32{1, 2}, tc.topK)

			require.NoError(t, err)
			assert.Equal(t, tc.want, repo.lastK)
			assert.Equal(t, 0.4, repo.lastMinScore)
		})
	}
}

func TestSearchFailureIsNeverAnEmptyContext(t *testing.T) {
	repo := &fakeSearcher{err: errors.New("no reachable servers")}
	svc := NewRetrievalService(repo, 10, 50, 0)

	docs, err := svc.Search(context.Background(), []float32{1}, 5)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetrievalUnavailable))
	assert.Contains(t, err.Error(), "no reachable servers")
	assert.Nil(t, docs)
}
