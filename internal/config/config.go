// Package config loads server configuration from the environment, with a
// .env file honored in development.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const defaultSystemPrompt = "You are a friendly customer support assistant for a telecom provider. " +
	"The user and you will engage in a spoken dialog exchanging the transcripts of a natural real-time conversation. " +
	"Keep your responses short, generally two or three sentences for chatty scenarios. " +
	"Use the available tools to look up orders, lab results, product information and account profiles."

// Config is the full server configuration.
type Config struct {
	Port      string
	JWTSecret string
	APIKey    string
	DevMode   bool

	UpstreamURL   string
	UpstreamToken string

	SystemPrompt string
	VoiceID      string

	MaxTokens   int
	TopP        float64
	Temperature float64

	InputSampleRate  int
	OutputSampleRate int

	IdleTimeout        time.Duration
	MaxSessionDuration time.Duration

	MongoURI      string
	MongoDatabase string
	RedisAddr     string

	CustomerDataPath  string
	KnowledgeDataPath string

	StrictToolFailures    bool
	EnableSpeechDetection bool
}

// Load reads the environment, logging every default that kicks in. The
// .env file is optional.
func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	cfg := &Config{
		Port:      getEnv(logger, "PORT", "8080"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		APIKey:    os.Getenv("API_KEY"),
		DevMode:   getBool(logger, "DEV_MODE", false),

		UpstreamURL:   os.Getenv("UPSTREAM_URL"),
		UpstreamToken: os.Getenv("UPSTREAM_TOKEN"),

		SystemPrompt: getEnv(logger, "SYSTEM_PROMPT", defaultSystemPrompt),
		VoiceID:      getEnv(logger, "VOICE_ID", "matthew"),

		MaxTokens:   getInt(logger, "MAX_TOKENS", 1024),
		TopP:        getFloat(logger, "TOP_P", 0.9),
		Temperature: getFloat(logger, "TEMPERATURE", 0.7),

		InputSampleRate:  getInt(logger, "INPUT_SAMPLE_RATE", 16000),
		OutputSampleRate: getInt(logger, "OUTPUT_SAMPLE_RATE", 24000),

		IdleTimeout:        getDuration(logger, "IDLE_TIMEOUT", 5*time.Minute),
		MaxSessionDuration: getDuration(logger, "MAX_SESSION_DURATION", 2*time.Hour),

		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: getEnv(logger, "MONGODB_DATABASE", "sonora"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),

		CustomerDataPath:  getEnv(logger, "CUSTOMER_DATA_PATH", "data/customers.json"),
		KnowledgeDataPath: getEnv(logger, "KNOWLEDGE_DATA_PATH", "data/knowledge.json"),

		StrictToolFailures:    getBool(logger, "STRICT_TOOL_FAILURES", false),
		EnableSpeechDetection: getBool(logger, "ENABLE_SPEECH_DETECTION", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no sensible default.
func (c *Config) Validate() error {
	if c.UpstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if !c.DevMode {
		if c.JWTSecret == "" {
			return errors.New("JWT_SECRET is required unless DEV_MODE is set")
		}
		if c.APIKey == "" {
			return errors.New("API_KEY is required unless DEV_MODE is set")
		}
	}
	return nil
}

func getEnv(logger *zap.Logger, key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	logger.Info("Using default config value",
		zap.String("key", key),
		zap.String("value", fallback))
	return fallback
}

func getBool(logger *zap.Logger, key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("Invalid boolean config value, using default",
			zap.String("key", key),
			zap.String("value", v),
			zap.Bool("default", fallback))
		return fallback
	}
	return b
}

func getInt(logger *zap.Logger, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		logger.Info("Using default config value",
			zap.String("key", key),
			zap.Int("value", fallback))
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("Invalid integer config value, using default",
			zap.String("key", key),
			zap.String("value", v),
			zap.Int("default", fallback))
		return fallback
	}
	return n
}

func getFloat(logger *zap.Logger, key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn("Invalid float config value, using default",
			zap.String("key", key),
			zap.String("value", v),
			zap.Float64("default", fallback))
		return fallback
	}
	return f
}

func getDuration(logger *zap.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn("Invalid duration config value, using default",
			zap.String("key", key),
			zap.String("value", v),
			zap.Duration("default", fallback))
		return fallback
	}
	return d
}
