// Package ratelimit enforces the per-session query quota: a sliding
// window of max_requests_per_hour requests. The window is exact (request
// timestamps, not fixed buckets), so a burst at the end of one hour
// cannot be followed by a full burst at the start of the next.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

var nowFn = time.Now

// Decision 은 한 번의 allow 판정 결과다.
type Decision struct {
	Allowed   bool
	Remaining int       // 이번 요청 이후 윈도 내 잔여 허용량
	ResetAt   time.Time // 윈도가 비어 다시 요청할 수 있는 대략적 시각
}

// Limiter 는 세션별 질의 허용 여부를 판정한다. 구현은 인메모리(단일
// 인스턴스)와 Redis(다중 인스턴스 공유) 두 가지다.
type Limiter interface {
	Allow(ctx context.Context, sessionID string) Decision
	Occupancy(ctx context.Context, sessionID string) int
}

// LocalLimiter 는 프로세스 로컬 슬라이딩 윈도 리미터다. 세션별로 요청
// 시각을 보관하고 윈도 밖으로 밀려난 항목을 판정 시점에 정리한다.
type LocalLimiter struct {
	capacity int
	window   time.Duration
	mu       sync.Mutex
	sessions map[string][]time.Time
}

func NewLocalLimiter(capacity int, window time.Duration) *LocalLimiter {
	l := &LocalLimiter{
		capacity: capacity,
		window:   window,
		sessions: make(map[string][]time.Time),
	}
	go l.cleanup()
	return l
}

func (l *LocalLimiter) Allow(ctx context.Context, sessionID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := nowFn()
	stamps := pruneBefore(l.sessions[sessionID], now.Add(-l.window))

	if len(stamps) >= l.capacity {
		l.sessions[sessionID] = stamps
		return Decision{Allowed: false, Remaining: 0, ResetAt: stamps[0].Add(l.window)}
	}

	stamps = append(stamps, now)
	l.sessions[sessionID] = stamps
	return Decision{
		Allowed:   true,
		Remaining: l.capacity - len(stamps),
		ResetAt:   stamps[0].Add(l.window),
	}
}

// Occupancy 는 현재 윈도 안에 든 요청 수를 반환한다. 세션 통계 용도라서
// 새 요청을 기록하지는 않는다.
func (l *LocalLimiter) Occupancy(ctx context.Context, sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := pruneBefore(l.sessions[sessionID], nowFn().Add(-l.window))
	l.sessions[sessionID] = stamps
	return len(stamps)
}

// pruneBefore 는 cutoff 이전의 타임스탬프를 잘라낸다. 입력은 항상
// 시간순이므로 경계 인덱스만 찾으면 된다.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

func (l *LocalLimiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		cutoff := nowFn().Add(-l.window)
		for id, stamps := range l.sessions {
			if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
				delete(l.sessions, id)
			}
		}
		l.mu.Unlock()
	}
}
