// Package trace 는 요청 단위 추적 ID 를 컨텍스트로 나릅니다. 미들웨어가
// inbound 요청마다 Request ID 를 보장하고, 같은 요청 안에서 나가는 호출은
// NextSpanID 로 1,2,3,... 스팬 번호를 받아 로그를 한 줄로 꿸 수 있습니다.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"
)

// 전파 헤더 이름. inbound 수신과 outbound 전파가 같은 이름을 씁니다.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderSpanID    = "X-Span-Id"
)

// 컨텍스트 키 타입은 외부에서 직접 만들지 못하게 unexported 로 둡니다.
type ctxKey string

const ctxKeyTrace ctxKey = "trace_info"

// Info 는 한 요청의 추적 상태입니다. RequestID 는 요청 단위로 고유하고,
// spanSeq 는 outbound 호출마다 1씩 증가합니다.
type Info struct {
	RequestID string
	spanSeq   atomic.Int64
}

// GenerateID 는 추적용 랜덤 ID(16바이트 hex)를 생성합니다. rand 가
// 실패해도 추적이 끊기지 않도록 타임스탬프로 대체합니다.
func GenerateID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UTC().Format("20060102T150405.000000000")
	}
	return hex.EncodeToString(b[:])
}

// WithRequestAndSpan 은 Request ID 와 초기 span 값(보통 0)을 담은 새
// 컨텍스트를 반환합니다.
func WithRequestAndSpan(ctx context.Context, requestID string, initialSpan int64) context.Context {
	info := &Info{RequestID: requestID}
	info.spanSeq.Store(initialSpan)
	return context.WithValue(ctx, ctxKeyTrace, info)
}

func infoFromContext(ctx context.Context) *Info {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(ctxKeyTrace).(*Info)
	return v
}

// RequestIDFromContext 는 컨텍스트의 Request ID 를 반환합니다. 추적
// 정보가 없으면 빈 문자열을 반환합니다.
func RequestIDFromContext(ctx context.Context) string {
	info := infoFromContext(ctx)
	if info == nil {
		return ""
	}
	return info.RequestID
}

// CurrentSpanID 는 현재 span 시퀀스 값을 증가시키지 않고 문자열로
// 반환합니다.
func CurrentSpanID(ctx context.Context) string {
	info := infoFromContext(ctx)
	if info == nil {
		return "0"
	}
	val := info.spanSeq.Load()
	if val <= 0 {
		return "0"
	}
	return strconv.FormatInt(val, 10)
}

// NextSpanID 는 spanSeq 를 1 증가시키고 (requestID, spanID)를 반환합니다.
// 추적 정보가 없는 컨텍스트에서는 새 Request ID 를 만들어 반환합니다.
func NextSpanID(ctx context.Context) (string, string) {
	info := infoFromContext(ctx)
	if info == nil {
		return GenerateID(), "1"
	}
	val := info.spanSeq.Add(1)
	if val <= 0 {
		val = 1
	}
	return info.RequestID, strconv.FormatInt(val, 10)
}
