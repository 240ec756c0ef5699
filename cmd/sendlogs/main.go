package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/ingest/dto"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/httpclient"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/cmd/internal/logger"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// CSV 로그를 수집 API 로 재생하는 개발용 CLI. 배치 사이에 쉬는 시간을
// 두어 파이프라인 포화 없이 데모 데이터를 채운다.
func main() {
	var (
		file      = flag.String("file", "sample_logs.csv", "CSV file of log records to replay")
		baseURL   = flag.String("url", "http://localhost:8081", "ingest API base URL")
		batchSize = flag.Int("batch", 5, "records per batch")
		delay     = flag.Duration("delay", 2*time.Second, "pause between batches")
	)
	flag.Parse()
	logger.InitFromEnv("LOG_LEVEL")

	records, err := readRecords(*file)
	if err != nil {
		logger.Log.Errorf("failed to read %s: %v", *file, err)
		os.Exit(1)
	}
	logger.Log.Infof("read %d log records from %s", len(records), *file)

	// 인제스트 API 는 배치를 동기로 처리하므로 모델 호출이 느린 날은
	// 응답까지 수십 초가 걸릴 수 있다.
	client := httpclient.NewBaseClient(
		httpclient.New(httpclient.Config{Timeout: 2 * time.Minute}), *baseURL)
	ctx := context.Background()

	var accepted, deferred, rejected, failedBatches int
	for start := 0; start < len(records); start += *batchSize {
		end := start + *batchSize
		if end > len(records) {
			end = len(records)
		}

		resp, err := sendBatch(ctx, client, records[start:end])
		if err != nil {
			failedBatches++
			logger.Log.Errorf("batch %d..%d failed: %v", start, end-1, err)
		} else {
			accepted += resp.Summary.Accepted
			deferred += resp.Summary.Deferred
			rejected += resp.Summary.Rejected
			logger.InfoWithFields("batch sent", logger.Fields{
				"execution_id": resp.ExecutionID,
				"accepted":     resp.Summary.Accepted,
				"deferred":     resp.Summary.Deferred,
				"rejected":     resp.Summary.Rejected,
			})
		}

		if end < len(records) {
			time.Sleep(*delay)
		}
	}

	logger.InfoWithFields("replay finished", logger.Fields{
		"records":        len(records),
		"accepted":       accepted,
		"deferred":       deferred,
		"rejected":       rejected,
		"failed_batches": failedBatches,
	})
	if failedBatches > 0 {
		os.Exit(1)
	}
}

func sendBatch(ctx context.Context, client *httpclient.BaseClient, records []models.LogRecord) (*dto.BatchIngestResponse, error) {
	body, err := json.Marshal(dto.BatchIngestRequest{Records: records})
	if err != nil {
		return nil, err
	}

	req, err := client.NewRequest(ctx, http.MethodPost, "/api/v1/logs/batch", nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("ingest returned %d: %s", res.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out dto.BatchIngestResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
