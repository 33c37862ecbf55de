package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	SQSQueueURL     string

	CacheStore string
	BadgerDir  string
	CacheTTL   time.Duration

	DefaultQuotaPlan string

	HFToken           string
	HFBaseURL         string
	ModelRegistryPath string
	FanoutTimeout     time.Duration
	FanoutConcurrency int

	PrimaryProvider    string
	PrimaryModel       string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	PrimaryTimeout     time.Duration
	PipelineTimeout    time.Duration
	PrimaryCostPer1K   string
	PrimaryMaxTokens   int
	AIEscalationGlobal bool

	RateLimitPerMinute int
	RateLimitBurst     int

	TracesStdout bool
	LogLevel     string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		Env:             env,
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "none")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data/scans"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", "scans"),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		SQSQueueURL:     strings.TrimSpace(getEnv("SCAN_EVENTS_QUEUE_URL", "")),

		CacheStore: normalizeCacheStore(getEnv("CACHE_STORE", "memory")),
		BadgerDir:  getEnv("BADGER_DIR", "./data/cache"),
		CacheTTL:   getDuration("CACHE_TTL_HOURS", time.Hour, 24*time.Hour),

		DefaultQuotaPlan: strings.ToLower(getEnv("DEFAULT_QUOTA_PLAN", "professional")),

		HFToken:           getEnv("HF_API_TOKEN", ""),
		HFBaseURL:         getEnv("HF_BASE_URL", "https://api-inference.huggingface.co/models"),
		ModelRegistryPath: getEnv("MODEL_REGISTRY_PATH", ""),
		FanoutTimeout:     getDuration("FANOUT_TIMEOUT_SECONDS", time.Second, 10*time.Second),
		FanoutConcurrency: getInt("FANOUT_CONCURRENCY", 4),

		PrimaryProvider:    strings.ToLower(getEnv("PRIMARY_PROVIDER", "openai")),
		PrimaryModel:       getEnv("PRIMARY_MODEL", "gpt-4o"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		PrimaryTimeout:     getDuration("PRIMARY_TIMEOUT_SECONDS", time.Second, 15*time.Second),
		PipelineTimeout:    getDuration("PIPELINE_TIMEOUT_SECONDS", time.Second, 60*time.Second),
		PrimaryCostPer1K:   getEnv("PRIMARY_COST_PER_1K_USD", "0.005"),
		PrimaryMaxTokens:   getInt("PRIMARY_MAX_TOKENS", 1500),
		AIEscalationGlobal: getBool("AI_ESCALATION_ENABLED", true),

		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitBurst:     getInt("RATE_LIMIT_BURST", 10),

		TracesStdout: getBool("OTEL_TRACES_STDOUT", false),
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, raw, def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// getDuration reads a positive integer count of unit from key.
func getDuration(key string, unit, def time.Duration) time.Duration {
	n := getInt(key, 0)
	if n == 0 {
		return def
	}
	return time.Duration(n) * unit
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "local":
		return "local"
	default:
		return "none"
	}
}

func normalizeCacheStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "badger":
		return "badger"
	case "postgres", "pg":
		return "postgres"
	default:
		return "memory"
	}
}
