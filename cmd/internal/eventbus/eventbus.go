// Package eventbus 는 유예 레코드 이벤트를 Kafka 로 나르는 버스입니다.
// 발행자는 이벤트를 기본 토픽에 넣고, 소비 핸들러가 실패하면 버스가 지연
// 토픽 사다리를 타고 재시도를 예약합니다. 사다리를 모두 소진한 이벤트는
// DLQ 에 쌓입니다.
package eventbus

import (
	"context"
	"encoding/json"
)

// Event 는 Kafka 메시지 본문입니다. Payload 는 토픽별 이벤트 타입(JSON)
// 이고 나머지 필드는 재시도 사다리가 관리하는 메타데이터입니다.
type Event struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Retry     int             `json:"retry"`     // 지금까지 실패한 횟수 (0이면 첫 시도)
	MaxRetry  int             `json:"max_retry"` // DLQ로 보내기 전까지 허용하는 재시도 수
	LastError string          `json:"last_error,omitempty"`
}

// EventHandler 는 소비자 비즈니스 로직의 시그니처입니다. 오류를 반환하면
// 버스가 다음 재시도를 예약합니다.
type EventHandler func(ctx context.Context, event Event) error

// EventBus 는 발행/구독 추상화입니다. 프로덕션 구현은 KafkaEventBus
// 하나이고, 서비스 테스트는 인메모리 구현으로 대체합니다.
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	// Subscribe는 기본 토픽을 구독하여 메인 로직을 실행합니다.
	Subscribe(ctx context.Context, groupID string, topic Topic, handler EventHandler) error
	// StartRetryReinjector는 모든 지연 토픽을 구독하고 기본 토픽으로 이벤트를 재발행합니다.
	StartRetryReinjector(ctx context.Context, groupID string, topic Topic) error
	Close()
}
