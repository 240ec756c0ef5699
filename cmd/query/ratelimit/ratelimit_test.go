package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClock 은 nowFn 을 조작 가능한 시계로 바꾼다.
func stubClock(t *testing.T, start time.Time) *time.Time {
	t.Helper()
	current := start
	orig := nowFn
	nowFn = func() time.Time { return current }
	t.Cleanup(func() { nowFn = orig })
	return &current
}

// 윈도 안에서 한도+1번째 요청은 거부된다.
func TestRequestOverLimitIsDenied(t *testing.T) {
	clock := stubClock(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	l := NewLocalLimiter(5, time.Hour)

	for i := 0; i < 5; i++ {
		d := l.Allow(context.Background(), "sess-1")
		require.True(t, d.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 4-i, d.Remaining)
		*clock = clock.Add(time.Minute)
	}

	d := l.Allow(context.Background(), "sess-1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	// 가장 오래된 요청이 윈도를 벗어나는 시각이 리셋 시각이다.
	wantReset := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	assert.True(t, wantReset.Equal(d.ResetAt), "got %v", d.ResetAt)
}

// 가장 오래된 요청이 윈도 밖으로 밀려나면 자리가 다시 생긴다.
func TestWindowSlides(t *testing.T) {
	clock := stubClock(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	l := NewLocalLimiter(2, time.Hour)

	require.True(t, l.Allow(context.Background(), "sess-1").Allowed)
	*clock = clock.Add(10 * time.Minute)
	require.True(t, l.Allow(context.Background(), "sess-1").Allowed)

	*clock = clock.Add(20 * time.Minute)
	assert.False(t, l.Allow(context.Background(), "sess-1").Allowed)

	// 9:00 요청이 만료되는 10:00 직후
	*clock = time.Date(2025, 3, 14, 10, 0, 1, 0, time.UTC)
	assert.True(t, l.Allow(context.Background(), "sess-1").Allowed)
}

func TestSessionsAreIndependent(t *testing.T) {
	stubClock(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	l := NewLocalLimiter(1, time.Hour)

	require.True(t, l.Allow(context.Background(), "sess-a").Allowed)
	assert.False(t, l.Allow(context.Background(), "sess-a").Allowed)
	assert.True(t, l.Allow(context.Background(), "sess-b").Allowed)
}

// Occupancy 는 조회일 뿐 요청으로 집계되지 않는다.
func TestOccupancyDoesNotConsume(t *testing.T) {
	clock := stubClock(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC))
	l := NewLocalLimiter(10, time.Hour)

	for i := 0; i < 3; i++ {
		l.Allow(context.Background(), "sess-1")
		*clock = clock.Add(time.Minute)
	}

	assert.Equal(t, 3, l.Occupancy(context.Background(), "sess-1"))
	assert.Equal(t, 3, l.Occupancy(context.Background(), "sess-1"))
	assert.Equal(t, 0, l.Occupancy(context.Background(), "sess-other"))
}

func TestPruneBefore(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	stamps := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}

	assert.Len(t, pruneBefore(stamps, base.Add(-time.Second)), 3)
	assert.Len(t, pruneBefore(stamps, base), 2, "cutoff itself is pruned")
	assert.Len(t, pruneBefore(stamps, base.Add(5*time.Minute)), 0)
	assert.Empty(t, pruneBefore(nil, base))
}
