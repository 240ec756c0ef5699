package events

import (
	"time"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// EventType 이벤트 타입 정의
type EventType string

const (
	RecordsDeferred EventType = "records.deferred"
	RecordsFailed   EventType = "records.failed"
)

// 레코드가 이번 실행에서 밀려난 사유.
const (
	ReasonBudgetExhausted  = "budget_exhausted"
	ReasonDeadlineExceeded = "deadline_exceeded"
)

// BaseEvent 모든 이벤트의 기본 구조
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "ingest", "retryworker" 등
	Version   string    `json:"version"`
}

// GetType 이벤트 타입을 반환
func (e BaseEvent) GetType() EventType {
	return e.Type
}

// DeferredRecordsEvent 는 예산 소진이나 실행 마감으로 처리하지 못한
// 레코드 묶음을 다음 실행으로 넘길 때 발행되는 이벤트입니다.
// 레코드는 원본 그대로 실리므로 컨슈머는 일반 배치와 동일하게 처리합니다.
type DeferredRecordsEvent struct {
	BaseEvent
	ExecutionID string             `json:"execution_id"`
	Reason      string             `json:"reason"`
	Records     []models.LogRecord `json:"records"`
}

// FailedRecord 는 복구 불가능하게 실패한 레코드와 그 사유입니다.
type FailedRecord struct {
	Record models.LogRecord `json:"record"`
	Reason string           `json:"reason"`
}

// FailedRecordsEvent 는 영구 실패한 레코드를 DLQ 에 남길 때 발행되는
// 이벤트입니다. 자동 재처리 대상이 아니라 운영자 점검용 기록입니다.
type FailedRecordsEvent struct {
	BaseEvent
	ExecutionID string         `json:"execution_id"`
	Records     []FailedRecord `json:"records"`
}
