// Package synthesizer 는 검색된 로그 항목으로 프롬프트를 구성하고
// 생성 모델에 근거 기반 답변을 요청한다. 로그에 없는 내용은
// 답변하지 않도록 시스템 지시문으로 강제한다.
package synthesizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/llmclient"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// Refusal is the exact sentence the model is told to emit when the
// logs do not contain the answer. It is also returned directly when
// there is nothing to ground an answer on.
const Refusal = "I cannot answer the question based on the provided logs."

const systemInstruction = "You are an expert AIOps assistant. Your task is to answer questions " +
	"about application behavior based only on the provided log entries. Do not use any prior " +
	"knowledge. If the answer cannot be found in the logs, you must state '" + Refusal + "'"

type Service struct {
	gen             llmclient.Generator
	maxContextChars int
}

func NewService(gen llmclient.Generator, maxContextChars int) *Service {
	return &Service{gen: gen, maxContextChars: maxContextChars}
}

// Synthesize 는 검색 결과를 점수 내림차순으로 직렬화해 컨텍스트 한도에
// 맞을 때까지 낮은 점수부터 버리고, 남은 항목으로 답변을 생성한다.
// Sources 에는 프롬프트에 실제로 포함된 request_id 만 담긴다.
func (s *Service) Synthesize(ctx context.Context, question string, docs []models.ScoredDocument) (models.Answer, error) {
	kept, entries := s.boundContext(docs)
	if len(kept) == 0 {
		return models.Answer{
			Text:        Refusal,
			Sources:     []string{},
			GeneratedAt: time.Now().UTC(),
		}, nil
	}

	res, err := s.gen.Generate(ctx, systemInstruction, buildUserPrompt(question, entries))
	if err != nil {
		return models.Answer{}, fmt.Errorf("synthesizer: generate: %w", err)
	}

	sources := make([]string, 0, len(kept))
	for _, d := range kept {
		sources = append(sources, d.Document.RequestID)
	}
	return models.Answer{
		Text:        strings.TrimSpace(res.Text),
		Sources:     sources,
		GeneratedAt: time.Now().UTC(),
		Usage:       res.Usage,
	}, nil
}

// boundContext 는 점수 내림차순으로 정렬한 뒤 직렬화 길이가
// maxContextChars 를 넘지 않는 최장 접두사를 고른다.
func (s *Service) boundContext(docs []models.ScoredDocument) ([]models.ScoredDocument, []string) {
	if len(docs) == 0 {
		return nil, nil
	}
	sorted := make([]models.ScoredDocument, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	kept := make([]models.ScoredDocument, 0, len(sorted))
	entries := make([]string, 0, len(sorted))
	total := 0
	for _, d := range sorted {
		line := formatEntry(d.Document)
		add := utf8.RuneCountInString(line)
		if len(entries) > 0 {
			add++ // 개행 구분자
		}
		if s.maxContextChars > 0 && total+add > s.maxContextChars {
			break
		}
		total += add
		kept = append(kept, d)
		entries = append(entries, line)
	}
	return kept, entries
}

func formatEntry(d models.VectorDocument) string {
	var b strings.Builder
	b.WriteString(d.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(" service=")
	b.WriteString(d.Service)
	b.WriteString(" level=")
	b.WriteString(d.Level)
	b.WriteString(" request_id=")
	b.WriteString(d.RequestID)
	if d.UserID != "" {
		b.WriteString(" user_id=")
		b.WriteString(d.UserID)
	}
	b.WriteByte(' ')
	b.WriteString(d.Message)
	return b.String()
}

func buildUserPrompt(question string, entries []string) string {
	var b strings.Builder
	b.WriteString("Here are the relevant log entries retrieved:\n<logs>\n")
	for _, e := range entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	b.WriteString("</logs>\n\nBased on the logs above, please answer the following question:\n<question>\n")
	b.WriteString(question)
	b.WriteString("\n</question>")
	return b.String()
}
