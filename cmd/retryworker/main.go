package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/eventbus"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
)

// 지연 토픽에 앉아 있는 유예 레코드 이벤트를 대기 시간이 지나면 기본
// 토픽으로 되돌리는 워커. 수집 서비스와 분리되어 있어 수집 재시작이
// 재시도 사다리를 끊지 않는다.
func main() {
	config.InitApp()
	cfg := config.GetConfig()
	logger.Init(cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brokers := eventbus.GetBrokers()
	for _, topic := range eventbus.AllTopics {
		if err := eventbus.EnsureTopics(brokers, topic, cfg.Kafka.BasePartitions); err != nil {
			logger.Log.Errorf("failed to ensure eventbus topics for %s: %v", topic.Base(), err)
		}
	}

	bus, err := eventbus.NewKafkaEventBus(brokers)
	if err != nil {
		logger.Log.Errorf("failed to create event bus: %v", err)
		os.Exit(1)
	}
	defer bus.Close()

	baseGroupID := eventbus.GetGroupID() + "-retry-worker"

	// 기본 토픽마다 재주입기를 하나씩 띄운다. 그룹 ID 를 토픽별로
	// 나눠 한 토픽의 리밸런스가 다른 토픽을 멈추지 않게 한다.
	var wg sync.WaitGroup
	for _, topic := range eventbus.AllTopics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			groupID := baseGroupID + "-" + strings.ReplaceAll(topic.Base(), ".", "-")
			logger.InfoWithFields("retry reinjector started", logger.Fields{
				"group_id": groupID,
				"topic":    topic.Base(),
			})
			err := bus.StartRetryReinjector(ctx, groupID, topic)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.Errorf("retry reinjector for %s stopped: %v", topic.Base(), err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Log.Info("received shutdown signal, shutting down retry worker...")

	cancel()
	wg.Wait()

	logger.Log.Info("retry worker stopped")
}
