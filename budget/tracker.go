// Package budget tracks token and call counts for one pipeline
// execution against a hard ceiling. A Tracker is created per batch
// invocation and thrown away with it; it is bookkeeping only and has
// no external dependencies.
package budget

import (
	"errors"
	"sync"
	"time"
)

// ErrBudgetExceeded 는 이번 실행의 토큰 예산이 소진되었음을 알리는 신호다.
// 오류가 아니라 deferral 신호이므로, 호출자는 남은 레코드를 버리지 말고
// deferred 로 분류해야 한다.
var ErrBudgetExceeded = errors.New("budget: max_tokens_per_execution exhausted")

// Metrics 는 실행 단위 비용 카운터의 스냅샷이다. JSON 키는 실행 요약
// 응답에 그대로 실리므로 바꾸면 수집 대시보드가 깨진다.
type Metrics struct {
	TokensProcessed     int `json:"total_tokens_processed"`
	EmbeddingsGenerated int `json:"total_embeddings_generated"`
	APICalls            int `json:"total_api_calls"`
	FailedRequests      int `json:"failed_requests"`
}

// EstimatedCostUSD 는 Titan 임베딩 요금($0.0001 / 1K tokens) 근사치로
// 이번 실행 비용을 추정한다. 리포팅 용도로만 쓴다.
func (m Metrics) EstimatedCostUSD() float64 {
	return float64(m.TokensProcessed) / 1000 * 0.0001
}

// Tracker 는 한 번의 배치 실행에 대한 토큰/호출 예산을 관리한다.
// 모든 임베딩 호출은 호출 전에 Reserve 로 추정 토큰을 예약하고,
// 호출이 끝나면 Settle 로 실제 사용량을 확정한다. 예약과 확인이
// 하나의 뮤텍스 아래에서 일어나므로 동시 워커 둘이 마지막 남은
// 예산을 동시에 통과할 수 없다.
type Tracker struct {
	mu sync.Mutex

	enabled   bool
	maxTokens int

	settled  int // 확정된 토큰 (성공한 호출의 실제 사용량)
	reserved int // 진행 중인 호출이 잡아둔 추정 토큰

	embeddingsGenerated int
	apiCalls            int
	failedRequests      int

	startedAt time.Time
}

// NewTracker 는 maxTokens 한도의 Tracker 를 생성한다. enabled 가 false 면
// (enable_cost_tracking=false) 예산 검사와 카운팅을 모두 생략한다.
func NewTracker(maxTokens int, enabled bool) *Tracker {
	return &Tracker{
		enabled:   enabled,
		maxTokens: maxTokens,
		startedAt: time.Now(),
	}
}

// Reservation 은 Reserve 가 잡아둔 추정 토큰이다. 호출이 끝나면 반드시
// Settle 로 확정하거나 해제해야 한다.
type Reservation struct {
	t        *Tracker
	estimate int
	done     bool
}

// Reserve 는 추정 토큰만큼 예산을 원자적으로 확인하고 예약한다.
// 한도를 넘으면 ErrBudgetExceeded 를 반환하며, 이 경우 호출자는
// 해당 레코드를 deferred 로 처리해야 한다.
func (t *Tracker) Reserve(estimatedTokens int) (*Reservation, error) {
	if t == nil || !t.enabled {
		return &Reservation{t: t, done: true}, nil
	}
	if estimatedTokens < 0 {
		estimatedTokens = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.settled+t.reserved+estimatedTokens > t.maxTokens {
		return nil, ErrBudgetExceeded
	}
	t.reserved += estimatedTokens
	return &Reservation{t: t, estimate: estimatedTokens}, nil
}

// Settle 은 예약을 실제 사용량으로 바꾼다. 실패한 호출은 actualTokens=0
// 으로 정산하여 토큰은 성공한 시도에 대해서만 집계되도록 한다.
func (r *Reservation) Settle(actualTokens int, succeeded bool) {
	if r == nil || r.done {
		return
	}
	r.done = true
	t := r.t
	if t == nil || !t.enabled {
		return
	}
	if actualTokens < 0 {
		actualTokens = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.reserved -= r.estimate
	if t.reserved < 0 {
		t.reserved = 0
	}
	t.apiCalls++
	if succeeded {
		t.settled += actualTokens
		t.embeddingsGenerated++
	} else {
		t.failedRequests++
	}
}

// Release 는 호출이 아예 일어나지 않은 예약을 해제한다.
func (r *Reservation) Release() {
	if r == nil || r.done {
		return
	}
	r.done = true
	t := r.t
	if t == nil || !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reserved -= r.estimate
	if t.reserved < 0 {
		t.reserved = 0
	}
}

// OverBudget 은 확정 사용량이 한도에 도달했는지 반환한다.
func (t *Tracker) OverBudget() bool {
	if t == nil || !t.enabled {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settled+t.reserved >= t.maxTokens
}

// RemainingBudget 은 아직 예약/확정되지 않은 토큰 수를 반환한다.
func (t *Tracker) RemainingBudget() int {
	if t == nil || !t.enabled {
		return int(^uint(0) >> 1)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.maxTokens - t.settled - t.reserved
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Snapshot 은 현재까지의 카운터 사본을 반환한다.
func (t *Tracker) Snapshot() Metrics {
	if t == nil {
		return Metrics{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Metrics{
		TokensProcessed:     t.settled,
		EmbeddingsGenerated: t.embeddingsGenerated,
		APICalls:            t.apiCalls,
		FailedRequests:      t.failedRequests,
	}
}

// Elapsed 는 Tracker 생성 이후 경과 시간을 반환한다.
func (t *Tracker) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.startedAt)
}
