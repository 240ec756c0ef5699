package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/dto"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/pipeline"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/eventbus"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/events"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// EventPublisher 는 IngestService 가 필요로 하는 이벤트버스 계약의 부분집합이다.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event eventbus.Event) error
}

// IngestService 는 수집 API 와 Kafka 재전달 컨슈머가 공유하는 배치 처리
// 서비스다. 레코드 경계 보정(request_id/timestamp 채움), 파이프라인 실행,
// 연기 레코드의 재전달 발행을 담당한다.
type IngestService struct {
	pipe *pipeline.Pipeline
	bus  EventPublisher
}

func NewIngestService(pipe *pipeline.Pipeline, bus EventPublisher) *IngestService {
	return &IngestService{pipe: pipe, bus: bus}
}

// IngestBatch 는 한 배치를 파이프라인으로 흘리고 레코드별 결과를 돌려준다.
// 연기된 레코드는 재전달 토픽에 발행되지만, 발행 실패가 요청 자체를
// 실패시키지는 않는다. 응답에 deferred 로 표시되므로 호출자가 다시 보낼 수 있다.
func (s *IngestService) IngestBatch(ctx context.Context, records []models.LogRecord) (*dto.BatchIngestResponse, error) {
	fillBoundaryDefaults(records)

	res, err := s.pipe.Run(ctx, records)
	if err != nil {
		return nil, err
	}

	if err := s.publishDeferred(ctx, res); err != nil {
		logger.ErrorWithFields("deferred records publish failed, caller must resend", logger.Fields{
			"execution_id": res.ExecutionID,
			"deferred":     len(res.Deferred),
			"error":        err.Error(),
		})
	}
	s.publishFailed(ctx, res)
	return buildBatchResponse(records, res), nil
}

// ReingestDeferred 는 Kafka 로 재전달된 레코드 묶음을 일반 배치와 동일하게
// 다시 흘린다. 오류를 반환하면 이벤트버스 재시도 사다리가 다음 일정을 잡고,
// 파이프라인의 멱등성(upsert + 캐시) 덕분에 중복 실행은 안전하다.
func (s *IngestService) ReingestDeferred(ctx context.Context, ev events.DeferredRecordsEvent) error {
	if len(ev.Records) == 0 {
		return nil
	}

	res, err := s.pipe.Run(ctx, ev.Records)
	if err != nil {
		return err
	}

	logger.InfoWithFields("deferred records reingested", logger.Fields{
		"origin_execution_id": ev.ExecutionID,
		"execution_id":        res.ExecutionID,
		"reason":              ev.Reason,
		"records":             len(ev.Records),
		"written":             len(res.Written),
		"deferred":            len(res.Deferred),
		"failed":              len(res.Failed),
	})

	// 재전달 경로에는 rejected 를 받아줄 호출자가 없으므로 영구 실패는
	// 여기서 DLQ 에 남기는 것이 유일한 기록이다.
	s.publishFailed(ctx, res)

	// 컨슈머 경로에서는 발행 실패가 곧 유실이므로 오류를 올려 재시도시킨다.
	return s.publishDeferred(ctx, res)
}

// publishDeferred 는 연기된 레코드를 사유별 묶음으로 재전달 토픽에 발행한다.
func (s *IngestService) publishDeferred(ctx context.Context, res *pipeline.Result) error {
	if len(res.Deferred) == 0 {
		return nil
	}

	byReason := map[string][]models.LogRecord{}
	for _, d := range res.Deferred {
		byReason[d.Reason] = append(byReason[d.Reason], d.Record)
	}

	for reason, recs := range byReason {
		e := events.DeferredRecordsEvent{
			BaseEvent: events.BaseEvent{
				ID:        uuid.New().String(),
				Type:      events.RecordsDeferred,
				Timestamp: time.Now(),
				Source:    "ingest",
				Version:   "1.0",
			},
			ExecutionID: res.ExecutionID,
			Reason:      reason,
			Records:     recs,
		}

		evt, err := eventbus.NewJSONEvent("", e, 0)
		if err != nil {
			return fmt.Errorf("failed to build deferred event: %w", err)
		}
		if err := s.bus.Publish(ctx, eventbus.TopicDeferredRecords.Base(), evt); err != nil {
			return fmt.Errorf("failed to publish deferred event: %w", err)
		}

		logger.InfoWithFields("deferred records published for redelivery", logger.Fields{
			"execution_id": res.ExecutionID,
			"reason":       reason,
			"records":      len(recs),
		})
	}
	return nil
}

// publishFailed 는 영구 실패한 레코드를 사유와 함께 DLQ 에 남긴다. 실패는
// 이미 응답과 로그로 보고된 뒤라 DLQ 발행은 점검용 사본이다. 발행이
// 실패해도 흐름을 막지 않고 로그만 남긴다.
func (s *IngestService) publishFailed(ctx context.Context, res *pipeline.Result) {
	if len(res.Failed) == 0 {
		return
	}

	recs := make([]events.FailedRecord, 0, len(res.Failed))
	for _, f := range res.Failed {
		recs = append(recs, events.FailedRecord{Record: f.Record, Reason: f.Reason})
	}
	e := events.FailedRecordsEvent{
		BaseEvent: events.BaseEvent{
			ID:        uuid.New().String(),
			Type:      events.RecordsFailed,
			Timestamp: time.Now(),
			Source:    "ingest",
			Version:   "1.0",
		},
		ExecutionID: res.ExecutionID,
		Records:     recs,
	}

	evt, err := eventbus.NewJSONEvent("", e, 0)
	if err == nil {
		err = s.bus.Publish(ctx, eventbus.TopicDeferredRecords.DLQ(), evt)
	}
	if err != nil {
		logger.ErrorWithFields("failed records DLQ publish failed", logger.Fields{
			"execution_id": res.ExecutionID,
			"failed":       len(res.Failed),
			"error":        err.Error(),
		})
		return
	}

	logger.InfoWithFields("permanently failed records parked in dlq", logger.Fields{
		"execution_id": res.ExecutionID,
		"failed":       len(res.Failed),
	})
}

// fillBoundaryDefaults 는 수집 경계에서 비어 있는 request_id 와 timestamp 를
// 채운다. request_id 는 멱등성 키라서 이후 단계는 항상 값이 있다고 가정한다.
func fillBoundaryDefaults(records []models.LogRecord) {
	now := time.Now()
	for i := range records {
		if records[i].RequestID == "" {
			records[i].RequestID = uuid.New().String()
		}
		if records[i].Timestamp.IsZero() {
			records[i].Timestamp = now
		}
	}
}

// buildBatchResponse 는 파이프라인 결과를 입력 순서대로의 레코드별 상태로
// 펼친다. 같은 request_id 가 중복 제출된 경우 한 레코드의 최종 상태가 그
// id 의 모든 행에 적용된다.
func buildBatchResponse(records []models.LogRecord, res *pipeline.Result) *dto.BatchIngestResponse {
	byID := make(map[string]dto.RecordResult, len(records))
	for _, id := range res.Written {
		byID[id] = dto.RecordResult{RequestID: id, Status: dto.StatusAccepted}
	}
	for _, d := range res.Deferred {
		byID[d.Record.RequestID] = dto.RecordResult{RequestID: d.Record.RequestID, Status: dto.StatusDeferred, Error: d.Reason}
	}
	for _, f := range res.Failed {
		byID[f.Record.RequestID] = dto.RecordResult{RequestID: f.Record.RequestID, Status: dto.StatusRejected, Error: f.Reason}
	}

	out := &dto.BatchIngestResponse{
		ExecutionID: res.ExecutionID,
		Results:     make([]dto.RecordResult, 0, len(records)),
	}
	for _, rec := range records {
		r, ok := byID[rec.RequestID]
		if !ok {
			r = dto.RecordResult{RequestID: rec.RequestID, Status: dto.StatusAccepted}
		}
		out.Results = append(out.Results, r)
		switch r.Status {
		case dto.StatusAccepted:
			out.Summary.Accepted++
		case dto.StatusDeferred:
			out.Summary.Deferred++
		case dto.StatusRejected:
			out.Summary.Rejected++
		}
	}
	out.Metrics = dto.ExecutionMetrics{
		TokensProcessed:     res.Metrics.TokensProcessed,
		EmbeddingsGenerated: res.Metrics.EmbeddingsGenerated,
		APICalls:            res.Metrics.APICalls,
		FailedRequests:      res.Metrics.FailedRequests,
		CacheHits:           res.CacheHits,
		EstimatedCostUSD:    res.Metrics.EstimatedCostUSD(),
		DurationMS:          res.Elapsed.Milliseconds(),
	}
	return out
}
