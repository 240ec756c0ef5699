package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// EnsureTopics 는 topic 의 기본 토픽과 모든 지연 토픽, DLQ 토픽을
// 생성합니다. 이미 존재하는 토픽은 성공으로 간주하므로 여러 프로세스가
// 기동 시에 동시에 불러도 안전합니다.
func EnsureTopics(brokers string, topic Topic, basePartitions int) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("AdminClient 생성 실패: %w", err)
	}
	defer admin.Close()

	specs := topicSpecs(topic, basePartitions)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return fmt.Errorf("토픽 생성 요청 실패: %w", err)
	}

	for _, r := range results {
		code := r.Error.Code()
		if code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("토픽 %s 생성 실패: %v", r.Topic, r.Error)
		}
	}

	return nil
}

// topicSpecs 는 생성할 토픽 사양 목록을 구성합니다. 지연 토픽은 기본
// 토픽과 같은 파티션 수를 쓰고, DLQ 는 수동 점검 대상이라 1 파티션이면
// 충분합니다.
func topicSpecs(topic Topic, basePartitions int) []kafka.TopicSpecification {
	specs := make([]kafka.TopicSpecification, 0, 2+len(RetryDelays))

	specs = append(specs, kafka.TopicSpecification{
		Topic:             topic.Base(),
		NumPartitions:     basePartitions,
		ReplicationFactor: 1,
	})
	specs = append(specs, kafka.TopicSpecification{
		Topic:             topic.DLQ(),
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	for _, retryTopic := range topic.GetRetryTopics() {
		specs = append(specs, kafka.TopicSpecification{
			Topic:             retryTopic,
			NumPartitions:     basePartitions,
			ReplicationFactor: 1,
		})
	}
	return specs
}
