package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Groq      GroqConfig
	Pipeline  PipelineConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	EpisodesPerHour int
	AudioPerMin     int
}

// GroqConfig holds the Groq API endpoint and model identifiers. The API key
// itself is supplied per request by the caller (BYOK) and never configured
// server-side.
type GroqConfig struct {
	BaseURL       string
	SpeechModel   string
	ChatModel     string
	FallbackModel string
	Language      string
}

type PipelineConfig struct {
	WorkDir            string
	SegmentSeconds     int
	DirectSummaryLimit int // transcript chars before map/reduce kicks in
	ChunkCharLimit     int
	JobTimeoutMinutes  int
	HeartbeatSeconds   int
}

func Load() (*Config, error) {
	readSecret("REDIS_PASSWORD")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("ratelimit.episodes_per_hour", "RATELIMIT_EPISODES_PER_HOUR")
	_ = viper.BindEnv("ratelimit.audio_per_min", "RATELIMIT_AUDIO_PER_MIN")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.speech_model", "GROQ_SPEECH_MODEL")
	_ = viper.BindEnv("groq.chat_model", "GROQ_CHAT_MODEL")
	_ = viper.BindEnv("groq.fallback_model", "GROQ_FALLBACK_MODEL")
	_ = viper.BindEnv("groq.language", "GROQ_LANGUAGE")
	_ = viper.BindEnv("pipeline.work_dir", "PIPELINE_WORK_DIR")
	_ = viper.BindEnv("pipeline.segment_seconds", "PIPELINE_SEGMENT_SECONDS")
	_ = viper.BindEnv("pipeline.direct_summary_limit", "PIPELINE_DIRECT_SUMMARY_LIMIT")
	_ = viper.BindEnv("pipeline.chunk_char_limit", "PIPELINE_CHUNK_CHAR_LIMIT")
	_ = viper.BindEnv("pipeline.job_timeout_minutes", "PIPELINE_JOB_TIMEOUT_MINUTES")
	_ = viper.BindEnv("pipeline.heartbeat_seconds", "PIPELINE_HEARTBEAT_SECONDS")

	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.episodes_per_hour", 10)
	viper.SetDefault("ratelimit.audio_per_min", 20)

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.speech_model", "whisper-large-v3")
	viper.SetDefault("groq.chat_model", "llama-3.3-70b-versatile")
	viper.SetDefault("groq.fallback_model", "llama-3.1-8b-instant")
	viper.SetDefault("groq.language", "zh")

	// Pipeline defaults. Short segments trade a few extra requests for a
	// steady cadence of progress events during transcription.
	viper.SetDefault("pipeline.work_dir", os.TempDir())
	viper.SetDefault("pipeline.segment_seconds", 180)
	viper.SetDefault("pipeline.direct_summary_limit", 15000)
	viper.SetDefault("pipeline.chunk_char_limit", 8000)
	viper.SetDefault("pipeline.job_timeout_minutes", 10)
	viper.SetDefault("pipeline.heartbeat_seconds", 3)

	// Config file is optional
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			EpisodesPerHour: viper.GetInt("ratelimit.episodes_per_hour"),
			AudioPerMin:     viper.GetInt("ratelimit.audio_per_min"),
		},
		Groq: GroqConfig{
			BaseURL:       viper.GetString("groq.base_url"),
			SpeechModel:   viper.GetString("groq.speech_model"),
			ChatModel:     viper.GetString("groq.chat_model"),
			FallbackModel: viper.GetString("groq.fallback_model"),
			Language:      viper.GetString("groq.language"),
		},
		Pipeline: PipelineConfig{
			WorkDir:            viper.GetString("pipeline.work_dir"),
			SegmentSeconds:     viper.GetInt("pipeline.segment_seconds"),
			DirectSummaryLimit: viper.GetInt("pipeline.direct_summary_limit"),
			ChunkCharLimit:     viper.GetInt("pipeline.chunk_char_limit"),
			JobTimeoutMinutes:  viper.GetInt("pipeline.job_timeout_minutes"),
			HeartbeatSeconds:   viper.GetInt("pipeline.heartbeat_seconds"),
		},
	}

	return cfg, nil
}
