// Package logger 는 전 서비스가 공유하는 구조화 JSON 로거입니다.
package logger

import (
	"os"
	"strings"

	"github.com/gookit/slog"
	"github.com/gookit/slog/handler"
)

// Logger 는 애플리케이션 전역에서 사용하는 최소 로거 인터페이스입니다.
// 필요 시 다른 구현으로 교체할 수 있도록 인터페이스로 노출합니다.
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Fields 는 구조화 로그를 위한 공통 필드 타입입니다.
type Fields map[string]any

// Log 는 전역 로거 인스턴스입니다. InitFromEnv 가 호출되지 않아도 기본
// info 레벨로 동작합니다.
var Log Logger = NewLogger("info")

// InitFromEnv 는 주어진 환경변수 키에서 로그 레벨을 읽어 전역 로거를
// 초기화합니다. 값이 비어 있으면 info 를 씁니다.
func InitFromEnv(envKey string) {
	level := strings.ToLower(os.Getenv(envKey))
	if level == "" {
		level = "info"
	}
	Log = NewLogger(level)
}

// Init 은 설정 파일에서 읽은 레벨로 전역 로거를 초기화합니다.
func Init(level string) {
	if level == "" {
		level = "info"
	}
	Log = NewLogger(strings.ToLower(level))
}

// NewLogger 는 주어진 레벨로 gookit/slog 기반 로거를 생성합니다. 출력은
// datetime/level/message 세 고정 필드에 호출자가 넘긴 Fields 를 top-level
// 키로 합친 JSON 한 줄입니다. 로그를 수집기로 바로 적재할 수 있도록
// 중첩 없이 평평하게 유지합니다.
func NewLogger(level string) Logger {
	logLevel := slog.LevelByName(level)

	var levels slog.Levels
	for _, lv := range slog.AllLevels {
		if lv <= logLevel {
			levels = append(levels, lv)
		}
	}

	h := handler.NewConsoleHandler(levels)
	formatter := slog.NewJSONFormatter(func(f *slog.JSONFormatter) {
		f.Fields = []string{
			slog.FieldKeyDatetime,
			slog.FieldKeyLevel,
			slog.FieldKeyMessage,
		}
		f.Aliases = slog.StringMap{
			slog.FieldKeyDatetime: "datetime",
			slog.FieldKeyLevel:    "level",
			slog.FieldKeyMessage:  "message",
		}
		f.TimeFormat = "2006-01-02T15:04:05"
	})
	h.SetFormatter(formatter)

	return slog.NewWithHandlers(h)
}

// withServiceName 은 service_name 필드를 SERVICE_NAME 환경변수 기준으로
// 보강합니다. 한 호스트에서 ingest/query 가 같이 돌 때 로그를 가릅니다.
func withServiceName(fields Fields) Fields {
	if fields == nil {
		fields = Fields{}
	}
	if _, ok := fields["service_name"]; !ok {
		if sn := os.Getenv("SERVICE_NAME"); sn != "" {
			fields["service_name"] = sn
		}
	}
	return fields
}

// entry 는 전역 로거가 slog 구현일 때 구조화 필드가 붙은 레코드를
// 반환합니다. 다른 구현이면 nil 을 반환해 호출자가 평문으로 남깁니다.
func entry(fields Fields) *slog.Record {
	lg, ok := Log.(*slog.Logger)
	if !ok {
		return nil
	}
	return lg.WithFields(slog.M(withServiceName(fields)))
}

// InfoWithFields 는 request_id, span_id, service_name 같은 구조화 필드를
// top-level 키로 실은 JSON 로그를 남깁니다.
func InfoWithFields(msg string, fields Fields) {
	if r := entry(fields); r != nil {
		r.Info(msg)
		return
	}
	Log.Info(msg)
}

func DebugWithFields(msg string, fields Fields) {
	if r := entry(fields); r != nil {
		r.Debug(msg)
		return
	}
	Log.Debug(msg)
}

func WarnWithFields(msg string, fields Fields) {
	if r := entry(fields); r != nil {
		r.Warn(msg)
		return
	}
	Log.Warn(msg)
}

func ErrorWithFields(msg string, fields Fields) {
	if r := entry(fields); r != nil {
		r.Error(msg)
		return
	}
	Log.Error(msg)
}
