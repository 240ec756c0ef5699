package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
)

// KafkaEventBus 는 confluent-kafka-go 기반 EventBus 구현체입니다. 유예
// 레코드 이벤트의 발행과 소비, 재시도 사다리 운용을 모두 맡습니다.
type KafkaEventBus struct {
	Producer *kafka.Producer
	Brokers  string
}

// NewKafkaEventBus 는 Producer 와 전달 보고서 수신 고루틴을 초기화합니다.
func NewKafkaEventBus(brokers string) (*KafkaEventBus, error) {
	producerCfg := &kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
		"retries":           5, // 일시적 브로커 오류는 Producer 수준에서 최대 5회 재시도합니다.
	}
	if maxBytes := kafkaMessageMaxBytes(); maxBytes > 0 {
		(*producerCfg)["message.max.bytes"] = maxBytes
	}

	p, err := kafka.NewProducer(producerCfg)
	if err != nil {
		return nil, fmt.Errorf("kafka Producer 생성 실패: %w", err)
	}

	// Publish 가 개별 전달 채널로 확인하지 못한 보고서(예: 재시도 한도
	// 초과 후의 지연 실패)는 이 고루틴이 받아 기록합니다.
	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					logger.Log.Errorf("메시지 전달 실패 %v: %v", ev.TopicPartition, ev.TopicPartition.Error)
				}
			case kafka.Error:
				logger.Log.Errorf("Kafka 오류: %v", ev)
			}
		}
	}()

	return &KafkaEventBus{
		Producer: p,
		Brokers:  brokers,
	}, nil
}

// Close 는 남은 메시지를 최대 5초 동안 플러시한 뒤 Producer 를 닫습니다.
func (k *KafkaEventBus) Close() {
	if k.Producer == nil {
		return
	}
	if remaining := k.Producer.Flush(5000); remaining > 0 {
		logger.Log.Warnf("플러시 후에도 %d개의 메시지가 남아 있습니다.", remaining)
	}
	k.Producer.Close()
	logger.Log.Info("Kafka Producer 종료.")
}

// Publish 는 이벤트를 topic 으로 발행하고 브로커 ack 까지 기다립니다.
func (k *KafkaEventBus) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("이벤트 마샬링 실패: %w", err)
	}

	// ctx 취소로 먼저 리턴해도 전달 보고서는 뒤늦게 도착할 수 있으므로
	// 채널을 닫지 않습니다. 버퍼가 1이라 보고서 송신이 막히지도 않습니다.
	deliveryChan := make(chan kafka.Event, 1)

	err = k.Producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          data,
		Key:            []byte(event.ID),
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("메시지 발행 실패: %w", err)
	}

	select {
	case ev := <-deliveryChan:
		m := ev.(*kafka.Message)
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("메시지 전달 실패: %w", m.TopicPartition.Error)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// newConsumer 는 수동 커밋 컨슈머를 만듭니다. 재시도 사다리는 재시도/DLQ
// 발행이 성공한 뒤에만 오프셋을 커밋해야 하므로 auto commit 을 쓰지
// 않습니다.
func (k *KafkaEventBus) newConsumer(groupID string) (*kafka.Consumer, error) {
	cfg := &kafka.ConfigMap{
		"bootstrap.servers":             k.Brokers,
		"group.id":                      groupID,
		"auto.offset.reset":             "earliest",
		"enable.auto.commit":            false,
		"partition.assignment.strategy": "range",
	}
	if maxPoll := kafkaMaxPollIntervalMs(); maxPoll > 0 {
		(*cfg)["max.poll.interval.ms"] = maxPoll
	}
	return kafka.NewConsumer(cfg)
}

// Subscribe 는 기본 토픽을 구독하고 handler 를 실행합니다. handler 가
// 실패하면 다음 지연 토픽(사다리 끝이면 DLQ)으로 이벤트를 넘긴 뒤에야
// 오프셋을 커밋합니다. 넘기기에 실패하면 커밋하지 않아 같은 메시지를
// 다시 읽습니다.
func (k *KafkaEventBus) Subscribe(ctx context.Context, groupID string, topic Topic, handler EventHandler) error {
	c, err := k.newConsumer(groupID)
	if err != nil {
		return fmt.Errorf("kafka Consumer 생성 실패: %w", err)
	}
	defer c.Close()

	if err := c.SubscribeTopics([]string{topic.Base()}, nil); err != nil {
		return fmt.Errorf("토픽 구독 실패 %s: %w", topic.Base(), err)
	}

	logger.Log.Infof("메인 컨슈머 (%s) 시작됨. 구독 토픽: %s", groupID, topic.Base())

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("메인 컨슈머 종료 중.")
			return ctx.Err()
		default:
			msg, err := c.ReadMessage(100 * time.Millisecond)
			if err != nil {
				if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
					continue // 타임아웃은 정상적인 상황입니다.
				}
				continue
			}

			evt, ok := decodeEvent(c, msg)
			if !ok {
				continue
			}

			if evt.Retry > 0 {
				logger.Log.Infof("이벤트 %s 처리 시작 (재시도 %d/%d)", evt.ID, evt.Retry, evt.MaxRetry)
			} else {
				logger.Log.Debugf("이벤트 %s 처리 시작", evt.ID)
			}

			if err := handler(ctx, evt); err != nil {
				if !k.scheduleRetry(ctx, topic, evt, err) {
					continue // 발행 실패: 커밋하지 않고 같은 메시지를 다시 처리합니다.
				}
			}

			// 성공 또는 재시도/DLQ 발행 성공 시에만 오프셋을 커밋합니다.
			if _, err := c.CommitMessage(msg); err != nil {
				logger.Log.Errorf("오프셋 커밋 오류: %v", err)
			}
		}
	}
}

// decodeEvent 는 메시지 본문을 Event 로 해석합니다. 깨진 페이로드는
// 몇 번을 다시 읽어도 똑같이 깨져 있으므로 커밋하고 건너뜁니다.
func decodeEvent(c *kafka.Consumer, msg *kafka.Message) (Event, bool) {
	var evt Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		logger.Log.Errorf("토픽 %s의 이벤트 페이로드 오류: %v. 메시지를 건너뛰고 커밋합니다.", *msg.TopicPartition.Topic, err)
		c.CommitMessage(msg)
		return Event{}, false
	}

	// 범위 밖 MaxRetry 는 사다리 길이에 맞춥니다.
	if evt.MaxRetry <= 0 || evt.MaxRetry > len(RetryDelays) {
		evt.MaxRetry = len(RetryDelays)
	}
	return evt, true
}

// scheduleRetry 는 실패한 이벤트를 다음 지연 토픽 또는 DLQ 로 넘깁니다.
// 반환값은 넘기기 성공 여부이며, 성공해야만 원본 오프셋을 커밋할 수
// 있습니다.
func (k *KafkaEventBus) scheduleRetry(ctx context.Context, topic Topic, evt Event, cause error) bool {
	evt.LastError = cause.Error()
	next := evt.Retry + 1

	nextTopic, err := topic.GetRetryTopic(next)
	switch {
	case err == ErrMaxRetryExceeded:
		logger.Log.Errorf("이벤트 %s의 최대 재시도 횟수 초과. DLQ %s로 전송. 최종 오류: %s", evt.ID, topic.DLQ(), evt.LastError)
		if pubErr := k.Publish(ctx, topic.DLQ(), evt); pubErr != nil {
			logger.Log.Errorf("DLQ %s 발행 실패: %v. 오프셋 커밋 안함.", topic.DLQ(), pubErr)
			return false
		}
	case err != nil:
		logger.Log.Errorf("재시도 토픽 결정 중 예상치 못한 오류 발생: %v. 오프셋 커밋 안함.", err)
		return false
	default:
		evt.Retry = next
		logger.Log.Warnf("이벤트 %s 처리 실패. 재시도 %d/%d를 토픽 %s에 예약.",
			evt.ID, evt.Retry, evt.MaxRetry, nextTopic)
		if pubErr := k.Publish(ctx, nextTopic, evt); pubErr != nil {
			logger.Log.Errorf("재시도 이벤트 토픽 %s 발행 실패: %v. 오프셋 커밋 안함.", nextTopic, pubErr)
			return false
		}
	}
	return true
}

// StartRetryReinjector 는 모든 지연 토픽을 구독하고, 메시지가 토픽
// 이름에 박힌 지연 시간만큼 묵은 뒤에 기본 토픽으로 재발행합니다.
// 지연 기준이 브로커 타임스탬프라서 컨슈머가 재시작해도 대기 시간이
// 처음부터 다시 시작되지 않습니다.
func (k *KafkaEventBus) StartRetryReinjector(ctx context.Context, groupID string, topic Topic) error {
	c, err := k.newConsumer(groupID)
	if err != nil {
		return fmt.Errorf("kafka 재시도 재주입기 생성 실패: %w", err)
	}
	defer c.Close()

	retryTopics := topic.GetRetryTopics()
	if err := c.SubscribeTopics(retryTopics, nil); err != nil {
		return fmt.Errorf("재시도 토픽 구독 실패 %v: %w", retryTopics, err)
	}

	logger.Log.Infof("재시도 재주입 컨슈머 (%s) 시작됨. 구독 토픽: %s", groupID, strings.Join(retryTopics, ", "))

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("재시도 재주입 컨슈머 종료 중.")
			return ctx.Err()
		default:
			msg, err := c.ReadMessage(100 * time.Millisecond)
			if err != nil {
				if kerr, ok := err.(kafka.Error); ok {
					if kerr.Code() == kafka.ErrTimedOut {
						continue
					}
					if kerr.IsFatal() {
						return fmt.Errorf("재시도 재주입 컨슈머 치명적 오류: %w", err)
					}
				}
				logger.Log.Errorf("재시도 재주입 컨슈머 ReadMessage 오류: %v", err)
				time.Sleep(500 * time.Millisecond)
				continue
			}

			topicName := *msg.TopicPartition.Topic
			delay, ok := ParseRetryDelayFromTopicName(topicName)
			if !ok {
				logger.Log.Errorf("재시도 토픽 이름 파싱 실패: %s. 메시지를 건너뛰고 커밋합니다.", topicName)
				c.CommitMessage(msg)
				continue
			}

			if wait := time.Until(msg.Timestamp.Add(delay)); wait > 0 {
				waitAndReseek(c, msg, wait)
				continue
			}

			var evt Event
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				logger.Log.Errorf("재시도 토픽 %s의 이벤트 페이로드 오류: %v. 메시지를 건너뛰고 커밋합니다.", topicName, err)
				c.CommitMessage(msg)
				continue
			}

			logger.Log.Infof("이벤트 %s를 %s에서 %s로 재주입. (재시도: %d)",
				evt.ID, topicName, topic.Base(), evt.Retry)

			if err := k.Publish(ctx, topic.Base(), evt); err != nil {
				logger.Log.Errorf("이벤트 %s 재주입 실패: %v. 오프셋 커밋 안함.", evt.ID, err)
				continue // 재발행 실패 시 메시지를 다시 처리합니다.
			}

			if _, err := c.CommitMessage(msg); err != nil {
				logger.Log.Errorf("재주입 후 커밋 오류: %v", err)
			}
		}
	}
}

// waitAndReseek 는 아직 준비되지 않은 메시지를 잠시 뒤에 다시 읽도록
// 같은 오프셋으로 되돌립니다. 파티션 안의 오프셋 순서가 곧 준비 순서
// 이므로 이 메시지를 넘어가서 먼저 읽을 것이 없습니다. 대기는
// 50ms~500ms 로 잘라 ctx 취소에 빠르게 반응하게 합니다.
func waitAndReseek(c *kafka.Consumer, msg *kafka.Message, wait time.Duration) {
	sleepDur := wait
	if sleepDur > 500*time.Millisecond {
		sleepDur = 500 * time.Millisecond
	} else if sleepDur < 50*time.Millisecond {
		sleepDur = 50 * time.Millisecond
	}
	time.Sleep(sleepDur)

	if err := c.Seek(kafka.TopicPartition{
		Topic:     msg.TopicPartition.Topic,
		Partition: msg.TopicPartition.Partition,
		Offset:    msg.TopicPartition.Offset,
	}, 1000); err != nil {
		logger.Log.Errorf("재시도 재주입 컨슈머 seek 오류: %v", err)
	}
}
