package services

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/config"
	"github.com/kirPoNik/aws-bedrock-log-analytics-rag/models"
)

var nowFn = time.Now

// Session 은 한 대화 세션의 토큰 사용량과 답변 캐시를 담는다.
// 첫 질문에서 생성되고 idle timeout 이 지나면 레지스트리에서 제거된다.
// 같은 세션의 동시 질문이 공유하므로 카운터는 원자적으로 갱신한다.
type Session struct {
	id       string
	tokens   atomic.Int64
	lastSeen atomic.Int64 // unix nanos
	answers  *expirable.LRU[string, models.Answer]
}

func (s *Session) touch() { s.lastSeen.Store(nowFn().UnixNano()) }

// CachedAnswer 는 정규화된 질문에 대한 캐시 답변을 찾는다.
func (s *Session) CachedAnswer(normalized string) (models.Answer, bool) {
	ans, ok := s.answers.Get(questionKey(normalized))
	if ok {
		queryCacheEvents.WithLabelValues("hit").Inc()
	} else {
		queryCacheEvents.WithLabelValues("miss").Inc()
	}
	return ans, ok
}

func (s *Session) StoreAnswer(normalized string, ans models.Answer) {
	s.answers.Add(questionKey(normalized), ans)
}

func (s *Session) AddTokens(n int64) { s.tokens.Add(n) }

func (s *Session) TokensUsed() int64 { return s.tokens.Load() }

func (s *Session) CacheEntries() int { return s.answers.Len() }

// questionKey 는 질문 원문 대신 해시를 캐시 키로 쓴다. 메모리 상한과
// 상수 시간 비교를 위해 원문은 키에 남기지 않는다.
func questionKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// SessionService 는 세션 레지스트리다. 레지스트리 잠금은 맵 접근에만
// 쓰며 모델 API 호출 동안 잡고 있지 않는다.
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      config.QueryConfig
}

func NewSessionService(cfg config.QueryConfig) *SessionService {
	s := &SessionService{sessions: make(map[string]*Session), cfg: cfg}
	if cfg.SessionIdleTimeout() > 0 {
		go s.janitor()
	}
	return s
}

// GetOrCreate 는 세션을 찾거나 만들고 마지막 사용 시각을 갱신한다.
// 레지스트리가 가득 차면 가장 오래 쉰 세션을 밀어낸다.
func (s *SessionService) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.touch()
		return sess
	}
	if s.cfg.MaxSessions > 0 && len(s.sessions) >= s.cfg.MaxSessions {
		s.evictOldestLocked()
	}
	sess := &Session{
		id:      id,
		answers: expirable.NewLRU[string, models.Answer](s.cfg.QueryCache.Capacity, nil, s.cfg.QueryCache.TTL()),
	}
	sess.touch()
	s.sessions[id] = sess
	sessionsActive.Set(float64(len(s.sessions)))
	return sess
}

// Peek 은 세션을 만들거나 갱신하지 않고 조회만 한다.
func (s *SessionService) Peek(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionService) evictOldestLocked() {
	var oldestID string
	var oldest int64
	for id, sess := range s.sessions {
		if seen := sess.lastSeen.Load(); oldestID == "" || seen < oldest {
			oldestID, oldest = id, seen
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

func (s *SessionService) janitor() {
	ticker := time.NewTicker(s.cfg.SessionIdleTimeout())
	defer ticker.Stop()
	for range ticker.C {
		s.sweepIdle()
	}
}

// sweepIdle 은 idle timeout 을 넘긴 세션을 제거한다.
func (s *SessionService) sweepIdle() {
	cutoff := nowFn().Add(-s.cfg.SessionIdleTimeout()).UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.lastSeen.Load() <= cutoff {
			delete(s.sessions, id)
		}
	}
	sessionsActive.Set(float64(len(s.sessions)))
}
