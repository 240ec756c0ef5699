package eventbus

import (
	"os"
	"strconv"
	"strings"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
)

// 브로커 주소와 그룹 ID 는 배포 환경변수로만 받습니다. 값이 없으면
// 연결할 곳이 없는 프로세스이므로 기동 자체를 막습니다.

// GetBrokers returns Kafka bootstrap servers from env KAFKA_BOOTSTRAP_SERVERS
func GetBrokers() string {
	v := os.Getenv("KAFKA_BOOTSTRAP_SERVERS")
	if v == "" {
		panic("KAFKA_BOOTSTRAP_SERVERS environment variable is required")
	}
	return v
}

// GetGroupID returns consumer group id from env KAFKA_GROUP_ID
func GetGroupID() string {
	v := os.Getenv("KAFKA_GROUP_ID")
	if v == "" {
		panic("KAFKA_GROUP_ID environment variable is required")
	}
	return v
}

// kafkaMessageMaxBytes 는 KAFKA_MESSAGE_MAX_BYTES 값을 읽습니다. 유예
// 레코드 이벤트는 배치 단위로 묶이므로 기본 1MB 를 넘길 수 있는 배포에서
// 상향합니다. 0 을 반환하면 라이브러리 기본값을 씁니다.
func kafkaMessageMaxBytes() int {
	raw := strings.TrimSpace(os.Getenv("KAFKA_MESSAGE_MAX_BYTES"))
	if raw == "" {
		return 0
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Log.Warnf("KAFKA_MESSAGE_MAX_BYTES 환경변수 파싱 실패: %v. 기본값 사용.", err)
		return 0
	}
	if value < 1 {
		logger.Log.Warnf("KAFKA_MESSAGE_MAX_BYTES 환경변수 값이 1 미만입니다. 기본값 사용.")
		return 0
	}
	return value
}

// kafkaMaxPollIntervalMs 는 KAFKA_MAX_POLL_INTERVAL_MS 값을 읽습니다.
// 재주입 컨슈머는 지연 대기 때문에 poll 간격이 길어질 수 있어 필요하면
// 상향합니다. 0 을 반환하면 라이브러리 기본값을 씁니다.
func kafkaMaxPollIntervalMs() int {
	raw := strings.TrimSpace(os.Getenv("KAFKA_MAX_POLL_INTERVAL_MS"))
	if raw == "" {
		return 0
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Log.Warnf("KAFKA_MAX_POLL_INTERVAL_MS 환경변수 파싱 실패: %v. 기본값 사용.", err)
		return 0
	}
	if value <= 0 {
		logger.Log.Warnf("KAFKA_MAX_POLL_INTERVAL_MS 환경변수 값이 0 이하입니다. 기본값 사용.")
		return 0
	}
	return value
}
