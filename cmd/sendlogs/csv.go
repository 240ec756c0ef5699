package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

// readRecords 는 헤더 행이 있는 CSV 를 LogRecord 목록으로 읽는다.
// 알려진 컬럼은 필드로, 나머지(duration_ms, status_code 등)는 Attrs 로 들어간다.
func readRecords(path string) ([]models.LogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var records []models.LogRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records)+2, err)
		}
		records = append(records, recordFromRow(header, row))
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s contains no log records", path)
	}
	return records, nil
}

func recordFromRow(header, row []string) models.LogRecord {
	var rec models.LogRecord
	attrs := make(map[string]string)

	for i, col := range header {
		if i >= len(row) {
			break
		}
		val := strings.TrimSpace(row[i])
		if val == "" {
			continue
		}
		switch col {
		case "request_id":
			rec.RequestID = val
		case "service":
			rec.Service = val
		case "level":
			rec.Level = val
		case "message":
			rec.Message = val
		case "user_id":
			rec.UserID = val
		case "timestamp":
			// 파싱 실패 시 제로값으로 두면 수집 API 가 수신 시각을 채운다.
			if ts, err := time.Parse(time.RFC3339, val); err == nil {
				rec.Timestamp = ts
			}
		default:
			attrs[col] = val
		}
	}

	if len(attrs) > 0 {
		rec.Attrs = attrs
	}
	return rec
}
