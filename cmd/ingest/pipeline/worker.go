package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/budget"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/events"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/llmclient"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/normalize"
)

// RecordStatus 는 한 레코드의 최종 처리 결과다.
type RecordStatus string

const (
	StatusEmbedded RecordStatus = "embedded" // 벡터 생성 완료, 인덱스에 기록 대상
	StatusDeferred RecordStatus = "deferred" // 예산/마감으로 이번 실행에서 밀림, 유실 아님
	StatusFailed   RecordStatus = "failed"   // 재시도 불가 또는 재시도 소진
)

var errEmptyText = errors.New("record text empty after normalization")

// Outcome pairs one input record with what happened to it. Outcomes are
// keyed by request_id; their order carries no meaning because records
// finish on whichever worker got them.
type Outcome struct {
	Record   models.LogRecord
	Status   RecordStatus
	Document models.VectorDocument // StatusEmbedded 일 때만 유효
	CacheHit bool
	Err      error
}

// DeferredReason 은 deferred 레코드가 밀려난 사유 문자열을 반환한다.
func (o Outcome) DeferredReason() string {
	if errors.Is(o.Err, budget.ErrBudgetExceeded) {
		return events.ReasonBudgetExhausted
	}
	return events.ReasonDeadlineExceeded
}

// FailureReason 은 실패 레코드의 사유 문자열을 반환한다.
func (o Outcome) FailureReason() string {
	if errors.Is(o.Err, errEmptyText) {
		return "empty_text"
	}
	if kind := llmclient.KindOf(o.Err); kind != 0 {
		return kind.String()
	}
	return "internal_error"
}

// processRecord embeds one record: normalize, cache/budget-gated
// embedding, document assembly. Budget exhaustion and an expired
// execution deadline defer the record instead of failing it.
func (p *Pipeline) processRecord(ctx context.Context, rec models.LogRecord, tracker *budget.Tracker) Outcome {
	text := normalize.RecordText(rec, p.cfg.MaxTextLength)
	if text == "" {
		return Outcome{Record: rec, Status: StatusFailed, Err: errEmptyText}
	}

	res, err := p.embedder.Embed(ctx, text, tracker)
	if err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			return Outcome{Record: rec, Status: StatusDeferred, Err: err}
		}
		if ctx.Err() != nil && llmclient.KindOf(err) != llmclient.KindInvalidInput {
			// 마감이 지나서 실패한 것이므로 다음 실행에서 다시 시도한다.
			return Outcome{Record: rec, Status: StatusDeferred, Err: ctx.Err()}
		}
		return Outcome{Record: rec, Status: StatusFailed, Err: err}
	}

	doc := models.VectorDocument{
		RequestID:          rec.RequestID,
		Service:            rec.Service,
		UserID:             rec.UserID,
		Level:              rec.Level,
		Message:            rec.Message,
		Attrs:              rec.Attrs,
		Timestamp:          rec.Timestamp,
		LogEmbedding:       res.Vector,
		EmbeddingModel:     p.embedder.ModelID(),
		EmbeddingTimestamp: time.Now().Unix(),
	}
	return Outcome{Record: rec, Status: StatusEmbedded, Document: doc, CacheHit: res.CacheHit}
}
