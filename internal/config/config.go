package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the service reads at startup. Values come
// from the environment (optionally a .env file) with a -port flag override.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string

	GitHub     GitHubConfig
	LLM        LLMConfig
	Quota      QuotaConfig
	Fetch      FetchConfig
	Transcript TranscriptConfig

	// AffiliatedOwners lists repository owners that receive the lenient
	// analysis policy. Kept in config so the bias is visible and testable.
	AffiliatedOwners []string

	// AnalyzeTimeout bounds one clone+analysis request end to end.
	AnalyzeTimeout time.Duration

	// StaleAnalyzing is the age after which an "analyzing" record is
	// treated as abandoned and eligible for re-trigger.
	StaleAnalyzing time.Duration
}

type GitHubConfig struct {
	Token     string
	UserAgent string
}

type LLMConfig struct {
	APIKey          string
	Model           string
	MaxOutputTokens int
}

type QuotaConfig struct {
	IPLimit     int
	WalletLimit int
}

type FetchConfig struct {
	MaxArchiveBytes int64
	MaxFileBytes    int64
	MaxTotalLines   int
	MaxTokens       int
	MaxLineChars    int
}

type TranscriptConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8081", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:             *port,
		Env:              env,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		GitHub:           loadGitHubConfig(),
		LLM:              loadLLMConfig(),
		Quota:            loadQuotaConfig(),
		Fetch:            loadFetchConfig(),
		Transcript:       loadTranscriptConfig(env),
		AffiliatedOwners: splitList(firstNonEmpty(os.Getenv("AFFILIATED_OWNERS"), "paritydotcx")),
		AnalyzeTimeout:   envDuration("ANALYZE_TIMEOUT", 2*time.Minute),
		StaleAnalyzing:   envDuration("STALE_ANALYZING", 10*time.Minute),
	}, nil
}

func loadGitHubConfig() GitHubConfig {
	return GitHubConfig{
		Token:     strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
		UserAgent: firstNonEmpty(strings.TrimSpace(os.Getenv("GITHUB_USER_AGENT")), "verepo-analyzer"),
	}
}

func loadLLMConfig() LLMConfig {
	return LLMConfig{
		APIKey:          strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:           firstNonEmpty(strings.TrimSpace(os.Getenv("VEREPO_MODEL")), "gemini-2.5-pro"),
		MaxOutputTokens: envInt("VEREPO_MAX_OUTPUT_TOKENS", 4096),
	}
}

func loadQuotaConfig() QuotaConfig {
	return QuotaConfig{
		IPLimit:     envInt("QUOTA_IP_LIMIT", 5),
		WalletLimit: envInt("QUOTA_WALLET_LIMIT", 3),
	}
}

func loadFetchConfig() FetchConfig {
	return FetchConfig{
		MaxArchiveBytes: envInt64("FETCH_MAX_ARCHIVE_BYTES", 50*1024*1024),
		MaxFileBytes:    envInt64("FETCH_MAX_FILE_BYTES", 100*1024),
		MaxTotalLines:   envInt("FETCH_MAX_TOTAL_LINES", 25000),
		MaxTokens:       envInt("FETCH_MAX_TOKENS", 128000),
		MaxLineChars:    envInt("FETCH_MAX_LINE_CHARS", 500),
	}
}

func loadTranscriptConfig(env string) TranscriptConfig {
	endpoint := strings.TrimSpace(os.Getenv("TRANSCRIPT_S3_ENDPOINT"))
	if endpoint == "" && strings.EqualFold(env, "local") {
		endpoint = strings.TrimSpace(os.Getenv("TRANSCRIPT_MINIO_ENDPOINT"))
	}
	return TranscriptConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("TRANSCRIPT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("TRANSCRIPT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("TRANSCRIPT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("TRANSCRIPT_S3_BUCKET")), "verepo-transcripts"),
		UseSSL:    envBool("TRANSCRIPT_S3_USE_SSL", !strings.EqualFold(env, "local")),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}
