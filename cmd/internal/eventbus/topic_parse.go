package eventbus

import (
	"strings"
	"time"
)

// ParseRetryDelayFromTopicName는 토픽 이름의 ".retry." 이후 문자열을
// time.Duration으로 파싱하여 해당 토픽의 재주입 지연 시간을 반환합니다.
// 예: "lograg.records.deferred.retry.1m0s" -> 1m0s
// 반환: (delay, ok)
func ParseRetryDelayFromTopicName(name string) (time.Duration, bool) {
	idx := strings.LastIndex(name, ".retry.")
	if idx == -1 || idx+7 >= len(name) {
		return 0, false
	}
	durStr := name[idx+7:]
	d, err := time.ParseDuration(durStr)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
