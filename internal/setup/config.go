package setup

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AWSRegion       string
	BedrockEndpoint string
	AWSMaxAttempts  int

	// Chat models
	DefaultProvider string
	ClaudeModelID   string
	OpenAIKey       string
	OpenAIModelID   string
	OpenAIBaseURL   string
	OllamaURL       string
	OllamaModel     string

	// Embeddings
	EmbeddingProvider   string
	EmbeddingModelID    string
	EmbeddingDimensions int

	// Search
	SearxngURL      string
	HTTPTimeout     time.Duration
	FocusConfigPath string

	// Redis
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	CachePrefix     string
	CacheTTL        time.Duration

	// Persistence
	ChatStore     string
	ChatPrefix    string
	ChatTTL       time.Duration
	UseDatabase   bool
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBMaxRetries  int
	UploadWorkers int
	ChunkSize     int
	ChunkOverlap  int

	// Queue
	StreamProvider    string
	StreamName        string
	StreamGroup       string
	ConsumerName      string
	ResultStream      string
	WorkerConcurrency int
	ClaimIdle         time.Duration

	APIPort   string
	LogLevel  string
	LogFormat string
}

func LoadConfig() *Config {
	return &Config{
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		BedrockEndpoint: getEnv("BEDROCK_ENDPOINT_URL", ""),
		AWSMaxAttempts:  getEnvInt("AWS_MAX_ATTEMPTS", 3),

		DefaultProvider: getEnv("DEFAULT_LLM_PROVIDER", "bedrock"),
		ClaudeModelID:   getEnv("CLAUDE_MODEL_ID", "anthropic.claude-3-5-sonnet-20240620-v1:0"),
		OpenAIKey:       getEnv("OPEN_AI_KEY", ""),
		OpenAIModelID:   getEnv("OPEN_AI_MODEL_ID", "gpt-4o-mini"),
		OpenAIBaseURL:   getEnv("OPEN_AI_BASE_URL", ""),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:     getEnv("OLLAMA_MODEL", "llama3.1"),

		EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "bedrock"),
		EmbeddingModelID:    getEnv("EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1024),

		SearxngURL:      getEnv("SEARXNG_API_URL", "http://localhost:8080"),
		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 20*time.Second),
		FocusConfigPath: getEnv("FOCUS_CONFIG_PATH", "configs/focus_modes.yaml"),

		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RedisMaxRetries: getEnvInt("REDIS_MAX_RETRIES", 5),
		CachePrefix:     getEnv("CACHE_PREFIX", "perplexica:search:"),
		CacheTTL:        getEnvDuration("CACHE_TTL", time.Hour),

		ChatStore:     getEnv("CHAT_STORE", "redis"),
		ChatPrefix:    getEnv("CHAT_PREFIX", "perplexica:chat:"),
		ChatTTL:       getEnvDuration("CHAT_TTL", 0),
		UseDatabase:   getEnvBool("USE_DATABASE", false),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "perplexica"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		DBMaxRetries:  getEnvInt("DB_MAX_RETRIES", 5),
		UploadWorkers: getEnvInt("UPLOAD_WORKERS", 4),
		ChunkSize:     getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 200),

		StreamProvider:    getEnv("STREAM_PROVIDER", "redis"),
		StreamName:        getEnv("STREAM_NAME", "search-requests"),
		StreamGroup:       getEnv("STREAM_GROUP", "search-workers"),
		ConsumerName:      getEnv("CONSUMER_NAME", hostname()),
		ResultStream:      getEnv("RESULT_STREAM", "search-results"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		ClaimIdle:         getEnvDuration("CLAIM_IDLE", 5*time.Minute),

		APIPort:   getEnv("PERPLEXICA_API_PORT", "3001"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

// NeedsDatabase reports whether Postgres must be connected.
func (c *Config) NeedsDatabase() bool {
	return c.UseDatabase || c.ChatStore == "postgres"
}

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}

	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}

	return value
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "worker-1"
	}
	return name
}
