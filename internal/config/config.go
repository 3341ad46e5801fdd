package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Port          string
	AllowedOrigin string
	// TrustProxy honours X-Forwarded-For / X-Real-IP for client addresses.
	TrustProxy bool
	// Logging
	LogLevel string
	LogJSON  bool
	LogFile  string
	// NLU; empty means the embedded lexicon
	LexiconFile string
	// Response generator
	LLMProvider    string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	GeminiAPIKey   string
	GeminiModel    string
	LLMTimeout     time.Duration
	LLMTemperature float32
	LLMMaxTokens   int
	PromptsFile    string
	// Optional client-credentials auth in front of the LLM gateway
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthScopes       []string
	// Turn archive; disabled when DatabaseURL is empty
	DatabaseURL   string
	MigrationsDir string
	// Sessions and rate limiting
	SessionIdleTTL time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from the environment, after loading .env if present.
func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Port:              getEnvDefault("PORT", "8080"),
		AllowedOrigin:     getEnvDefault("ALLOWED_ORIGIN", "*"),
		TrustProxy:        getEnvBoolDefault("TRUST_PROXY", false),
		LogLevel:          getEnvDefault("LOG_LEVEL", "debug"),
		LogJSON:           getEnvBoolDefault("LOG_JSON", false),
		LogFile:           os.Getenv("LOG_FILE"),
		LexiconFile:       os.Getenv("LEXICON_FILE"),
		LLMProvider:       strings.ToLower(getEnvDefault("LLM_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     getEnvDefault("OPENAI_BASE_URL", "http://127.0.0.1:1234/v1"),
		OpenAIModel:       getEnvDefault("OPENAI_MODEL", "qwen/qwen2.5-vl-7b"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnvDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		LLMTimeout:        getEnvDurationDefault("LLM_TIMEOUT", 90*time.Second),
		LLMTemperature:    float32(getEnvFloatDefault("LLM_TEMPERATURE", 0.3)),
		LLMMaxTokens:      getEnvIntDefault("LLM_MAX_TOKENS", 512),
		PromptsFile:       os.Getenv("PROMPTS_FILE"),
		OAuthTokenURL:     os.Getenv("LLM_OAUTH_TOKEN_URL"),
		OAuthClientID:     os.Getenv("LLM_OAUTH_CLIENT_ID"),
		OAuthClientSecret: os.Getenv("LLM_OAUTH_CLIENT_SECRET"),
		OAuthScopes:       getEnvListDefault("LLM_OAUTH_SCOPES", nil),
		DatabaseURL:       os.Getenv("DB_URL"),
		MigrationsDir:     getEnvDefault("MIGRATIONS_DIR", "./migrations"),
		SessionIdleTTL:    getEnvDurationDefault("SESSION_IDLE_TTL", 30*time.Minute),
		RateLimitRPS:      getEnvFloatDefault("RATE_LIMIT_RPS", 5),
		RateLimitBurst:    getEnvIntDefault("RATE_LIMIT_BURST", 10),
	}
	switch cfg.LLMProvider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			logrus.Warn("GEMINI_API_KEY is not set; generator calls will fail until provided")
		}
	default:
		// A local LM Studio server accepts any key.
		if cfg.OpenAIAPIKey == "" {
			logrus.Warn("OPENAI_API_KEY is not set; only keyless OpenAI-compatible servers will work")
		}
	}
	return cfg
}

// OAuthEnabled reports whether the generator should fetch client-credentials tokens.
func (c Config) OAuthEnabled() bool {
	return c.OAuthTokenURL != "" && c.OAuthClientID != ""
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
		logrus.Warnf("ignoring invalid integer %s=%q", key, v)
	}
	return def
}

func getEnvFloatDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
		logrus.Warnf("ignoring invalid number %s=%q", key, v)
	}
	return def
}

// getEnvDurationDefault accepts Go durations ("90s") or bare seconds ("90").
func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	logrus.Warnf("ignoring invalid duration %s=%q", key, v)
	return def
}
