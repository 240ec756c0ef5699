package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const ENV_FILE = ".env"
const CONFIG_FILE = "config.yaml"

type AppConfig struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Query    QueryConfig    `yaml:"query"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	IngestAddr string `yaml:"ingest_addr"`
	QueryAddr  string `yaml:"query_addr"`
}

// MongoConfig 는 벡터 문서 저장소 연결 설정이다.
// URI/DBName 은 환경변수 MONGO_URI / MONGO_DB_NAME 이 있으면 그 값을 우선한다.
type MongoConfig struct {
	URI    string `yaml:"uri"`
	DBName string `yaml:"db"`
}

type KafkaConfig struct {
	BasePartitions int `yaml:"base_partitions"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LLMConfig selects the embedding/synthesis provider and its limits.
// Provider "bedrock" talks to AWS Bedrock Runtime (credentials from the
// standard AWS environment); provider "google" talks to Gemini via
// GEMINI_API_KEY.
type LLMConfig struct {
	Provider                string `yaml:"provider"`
	BedrockRegion           string `yaml:"bedrock_region"`
	BedrockModelID          string `yaml:"bedrock_model_id"`
	BedrockSynthesisModelID string `yaml:"bedrock_synthesis_model_id"`
	GoogleEmbeddingModel    string `yaml:"google_embedding_model"`
	GoogleSynthesisModel    string `yaml:"google_synthesis_model"`
	BedrockTimeoutSeconds   int    `yaml:"bedrock_timeout"`
	BedrockMaxRetries       int    `yaml:"bedrock_max_retries"`
	EmbeddingDimension      int    `yaml:"embedding_dimension"`
	MaxSynthesisTokens      int    `yaml:"max_synthesis_tokens"`
	MaxContextChars         int    `yaml:"max_context_chars"`
}

// Timeout returns the per-call deadline for upstream model requests.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.BedrockTimeoutSeconds) * time.Second
}

// SynthesisModelID returns the generation model of the active provider.
func (c LLMConfig) SynthesisModelID() string {
	if c.Provider == "google" {
		return c.GoogleSynthesisModel
	}
	return c.BedrockSynthesisModelID
}

type CacheConfig struct {
	Capacity   int `yaml:"capacity"`
	TTLSeconds int `yaml:"ttl"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// PipelineConfig 는 수집 파이프라인(배치 임베딩) 동작을 제어한다.
// max_tokens_per_execution 은 한 번의 배치 실행이 소비할 수 있는 토큰 상한이며,
// 초과분은 버리지 않고 deferred 처리한다.
type PipelineConfig struct {
	MaxTextLength           int         `yaml:"max_text_length"`
	BatchSize               int         `yaml:"batch_size"`
	WorkerCount             int         `yaml:"worker_count"`
	QueueDepth              int         `yaml:"queue_depth"`
	EnableCaching           bool        `yaml:"enable_caching"`
	EnableCostTracking      bool        `yaml:"enable_cost_tracking"`
	MaxTokensPerExecution   int         `yaml:"max_tokens_per_execution"`
	ExecutionTimeoutSeconds int         `yaml:"execution_timeout"`
	LambdaMemorySize        int         `yaml:"lambda_memory_size"`
	MaxBatchRecords         int         `yaml:"max_batch_records"`
	Cache                   CacheConfig `yaml:"cache"`
}

func (c PipelineConfig) ExecutionTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeoutSeconds) * time.Second
}

// QueryConfig 는 질의 엔진의 검색/세션 한도를 제어한다.
type QueryConfig struct {
	DefaultSearchSize   int         `yaml:"default_search_size"`
	MaxSearchSize       int         `yaml:"max_search_size"`
	MaxQueryLength      int         `yaml:"max_query_length"`
	MaxTokensPerSession int         `yaml:"max_tokens_per_session"`
	MaxRequestsPerHour  int         `yaml:"max_requests_per_hour"`
	MinScore            float64     `yaml:"min_score"`
	QueryCache          CacheConfig `yaml:"query_cache"`
	MaxSessions         int         `yaml:"max_sessions"`
	SessionIdleSeconds  int         `yaml:"session_idle_timeout"`
}

func (c QueryConfig) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleSeconds) * time.Second
}

var config *AppConfig

// defaultConfig returns the configuration the system runs with when
// config.yaml omits a key.
func defaultConfig() AppConfig {
	return AppConfig{
		Logging: LoggingConfig{Level: "info"},
		Server: ServerConfig{
			IngestAddr: ":8081",
			QueryAddr:  ":8082",
		},
		Mongo: MongoConfig{DBName: "lograg"},
		Kafka: KafkaConfig{BasePartitions: 3},
		LLM: LLMConfig{
			Provider:                "bedrock",
			BedrockRegion:           "us-east-1",
			BedrockModelID:          "amazon.titan-embed-text-v2:0",
			BedrockSynthesisModelID: "anthropic.claude-3-haiku-20240307-v1:0",
			GoogleEmbeddingModel:    "gemini-embedding-001",
			GoogleSynthesisModel:    "gemini-2.0-flash",
			BedrockTimeoutSeconds:   30,
			BedrockMaxRetries:       3,
			EmbeddingDimension:      1024,
			MaxSynthesisTokens:      4096,
			MaxContextChars:         24000,
		},
		Pipeline: PipelineConfig{
			MaxTextLength:           8000,
			BatchSize:               10,
			WorkerCount:             4,
			QueueDepth:              8,
			EnableCaching:           true,
			EnableCostTracking:      true,
			MaxTokensPerExecution:   100000,
			ExecutionTimeoutSeconds: 300,
			MaxBatchRecords:         500,
			Cache:                   CacheConfig{Capacity: 4096, TTLSeconds: 3600},
		},
		Query: QueryConfig{
			DefaultSearchSize:   10,
			MaxSearchSize:       50,
			MaxQueryLength:      500,
			MaxTokensPerSession: 500000,
			MaxRequestsPerHour:  100,
			MinScore:            0,
			QueryCache:          CacheConfig{Capacity: 50, TTLSeconds: 300},
			MaxSessions:         1024,
			SessionIdleSeconds:  3600,
		},
	}
}

func InitApp() {
	// load environment variables
	godotenv.Load(filepath.Join(GetBasePath(), ENV_FILE))

	// load configuration file over the defaults: keys absent from the
	// file keep their default value.
	c := defaultConfig()
	data, err := os.ReadFile(filepath.Join(GetBasePath(), CONFIG_FILE))
	if err != nil {
		panic(err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		panic(err)
	}

	applyEnvOverrides(&c)
	config = &c
}

func GetConfig() AppConfig {
	if config == nil {
		InitApp()
	}

	return *config
}

func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("MONGO_DB_NAME"); v != "" {
		c.Mongo.DBName = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" && c.LLM.BedrockRegion == "" {
		c.LLM.BedrockRegion = v
	}
}

// Validate 는 기동 시점에 설정 모순을 잡아낸다. 여기서 걸리는 오류는
// 재시도 대상이 아니라 설정을 고쳐야 하는 ConfigurationError 다.
func (c AppConfig) Validate() error {
	switch c.LLM.Provider {
	case "bedrock", "google":
	default:
		return fmt.Errorf("config: unknown llm provider %q (want bedrock or google)", c.LLM.Provider)
	}
	if c.LLM.EmbeddingDimension <= 0 {
		return fmt.Errorf("config: embedding_dimension must be positive, got %d", c.LLM.EmbeddingDimension)
	}
	if c.LLM.BedrockTimeoutSeconds <= 0 {
		return fmt.Errorf("config: bedrock_timeout must be positive, got %d", c.LLM.BedrockTimeoutSeconds)
	}
	if c.LLM.BedrockMaxRetries < 0 {
		return fmt.Errorf("config: bedrock_max_retries must not be negative, got %d", c.LLM.BedrockMaxRetries)
	}
	if c.Pipeline.MaxTextLength <= 0 {
		return fmt.Errorf("config: max_text_length must be positive, got %d", c.Pipeline.MaxTextLength)
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("config: batch_size must be at least 1, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.WorkerCount < 2 || c.Pipeline.WorkerCount > 10 {
		return fmt.Errorf("config: worker_count must be between 2 and 10, got %d", c.Pipeline.WorkerCount)
	}
	if c.Pipeline.QueueDepth < 1 {
		return fmt.Errorf("config: queue_depth must be at least 1, got %d", c.Pipeline.QueueDepth)
	}
	if c.Pipeline.MaxTokensPerExecution <= 0 {
		return fmt.Errorf("config: max_tokens_per_execution must be positive, got %d", c.Pipeline.MaxTokensPerExecution)
	}
	if c.Pipeline.ExecutionTimeoutSeconds <= 0 {
		return fmt.Errorf("config: execution_timeout must be positive, got %d", c.Pipeline.ExecutionTimeoutSeconds)
	}
	if c.Query.DefaultSearchSize < 1 || c.Query.MaxSearchSize < c.Query.DefaultSearchSize {
		return fmt.Errorf("config: search sizes invalid (default=%d max=%d)", c.Query.DefaultSearchSize, c.Query.MaxSearchSize)
	}
	if c.Query.MaxQueryLength <= 0 {
		return fmt.Errorf("config: max_query_length must be positive, got %d", c.Query.MaxQueryLength)
	}
	if c.Query.MaxRequestsPerHour < 1 {
		return fmt.Errorf("config: max_requests_per_hour must be at least 1, got %d", c.Query.MaxRequestsPerHour)
	}
	if c.Query.MaxTokensPerSession <= 0 {
		return fmt.Errorf("config: max_tokens_per_session must be positive, got %d", c.Query.MaxTokensPerSession)
	}
	// lambda_memory_size 는 외부 실행 환경의 크기였으므로 값 검증 없이 허용만 한다.
	return nil
}

func GetBasePath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		cfgPath := filepath.Join(dir, CONFIG_FILE)
		if info, err := os.Stat(cfgPath); err == nil && !info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
