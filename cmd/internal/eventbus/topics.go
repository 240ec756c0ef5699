package eventbus

import (
	"errors"
	"fmt"
	"time"
)

// RetryDelays 는 재시도 횟수(1-based)별 지연 시간 사다리입니다. 앞쪽 단은
// 일시적인 인덱스 쓰기 실패를, 뒤쪽 단은 모델 쿼터가 회복될 때까지의
// 대기를 겨냥합니다.
var RetryDelays = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	1 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// ErrMaxRetryExceeded 는 재시도 사다리를 모두 소진했음을 알립니다.
var ErrMaxRetryExceeded = errors.New("최대 재시도 횟수 초과")

// Topic 은 기본 토픽 이름과 거기서 파생되는 지연/DLQ 토픽 이름을
// 묶습니다. 파생 이름은 항상 기본 이름에서 계산하므로 버전이 어긋날
// 일이 없습니다.
type Topic struct {
	base string
}

func NewTopic(base string) Topic {
	return Topic{base: base}
}

func (t Topic) Base() string {
	return t.base
}

// DLQ 는 사다리를 소진한 이벤트가 쌓이는 토픽 이름입니다 (예: base.dlq).
func (t Topic) DLQ() string {
	return t.base + ".dlq"
}

// GetRetryTopics 는 사다리의 모든 지연 토픽 이름을 순서대로 반환합니다.
// 이름 형식은 base.retry.<duration> 이고, 재주입기는 이 접미사를 다시
// 파싱해 대기 시간을 알아냅니다.
func (t Topic) GetRetryTopics() []string {
	topics := make([]string, len(RetryDelays))
	for i, delay := range RetryDelays {
		topics[i] = fmt.Sprintf("%s.retry.%s", t.base, delay.String())
	}
	return topics
}

// GetRetryTopic 은 retryCount(1-based)번째 재시도가 들어갈 지연 토픽
// 이름을 반환합니다. 사다리를 벗어나면 ErrMaxRetryExceeded 를 반환합니다.
func (t Topic) GetRetryTopic(retryCount int) (string, error) {
	if retryCount <= 0 || retryCount > len(RetryDelays) {
		return "", ErrMaxRetryExceeded
	}
	return fmt.Sprintf("%s.retry.%s", t.base, RetryDelays[retryCount-1].String()), nil
}

// 기능별 기본 토픽 선언. 토픽 이름이 곧 스키마이므로 한 곳에서만 관리합니다.
var (
	// TopicDeferredRecords 는 예산 소진이나 마감 초과로 이번 실행에서
	// 처리하지 못한 로그 레코드를 다음 실행으로 넘기는 토픽입니다.
	TopicDeferredRecords = NewTopic("lograg.records.deferred")
)

// AllTopics 는 재시도 워커가 지연 토픽을 감시해야 하는 기본 토픽 전체입니다.
var AllTopics = []Topic{
	TopicDeferredRecords,
}
