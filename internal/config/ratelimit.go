package config

import (
	"time"

	"github.com/deepgram/chorus/pkg/logger"
)

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

func GetRateLimitConfig(key string) RateLimitConfig {
	enabled := parseEnvBool("RATELIMIT_ENABLED", true)

	configs := map[string]RateLimitConfig{
		"send_message": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_SEND_MESSAGE", 30), // 30 submissions per minute
			Window:  time.Minute,
		},
		"create_session": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_CREATE_SESSION", 10),
			Window:  time.Minute,
		},
		"read_transcript": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_READ_TRANSCRIPT", 600), // polling clients
			Window:  time.Minute,
		},
	}

	if config, exists := configs[key]; exists {
		return config
	}

	logger.Warn(logger.CONFIG, "No rate limit config found for key: %s", key)
	return RateLimitConfig{Enabled: false}
}
