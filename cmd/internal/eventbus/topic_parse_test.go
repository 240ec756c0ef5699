package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// GetRetryTopics가 만든 이름을 ParseRetryDelayFromTopicName이 그대로
// 되돌릴 수 있어야 재주입 지연이 동작한다.
func TestRetryTopicNamesRoundTrip(t *testing.T) {
	topic := NewTopic("lograg.records.deferred")

	names := topic.GetRetryTopics()
	assert.Len(t, names, len(RetryDelays))

	for i, name := range names {
		delay, ok := ParseRetryDelayFromTopicName(name)
		assert.True(t, ok, "parse failed for %s", name)
		assert.Equal(t, RetryDelays[i], delay)
	}
}

func TestParseRetryDelayFromTopicName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Duration
		ok   bool
	}{
		{"seconds", "lograg.records.deferred.retry.10s", 10 * time.Second, true},
		{"minutes", "lograg.records.deferred.retry.1m0s", time.Minute, true},
		{"no retry segment", "lograg.records.deferred", 0, false},
		{"dlq", "lograg.records.deferred.dlq", 0, false},
		{"garbage suffix", "lograg.records.deferred.retry.abc", 0, false},
		{"empty suffix", "lograg.records.deferred.retry.", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseRetryDelayFromTopicName(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetRetryTopicBounds(t *testing.T) {
	topic := NewTopic("lograg.records.deferred")

	_, err := topic.GetRetryTopic(0)
	assert.ErrorIs(t, err, ErrMaxRetryExceeded)

	_, err = topic.GetRetryTopic(len(RetryDelays) + 1)
	assert.ErrorIs(t, err, ErrMaxRetryExceeded)

	name, err := topic.GetRetryTopic(1)
	assert.NoError(t, err)
	assert.Equal(t, "lograg.records.deferred.retry.10s", name)
}
