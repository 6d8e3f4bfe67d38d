package config

import (
	"time"

	"github.com/deepgram/chorus/pkg/logger"
)

func GetRedisURL() string {
	logger.Debug(logger.CONFIG, "Attempting to retrieve Redis URL from environment")
	value := GetEnvOrDefault("REDIS_URL", "")
	if value == "" {
		logger.Info(logger.CONFIG, "Redis URL not set - snapshots will be kept in memory only")
	} else {
		logger.Info(logger.CONFIG, "Redis URL successfully loaded")
	}
	return value
}

func GetRedisPassword() string {
	return GetEnvOrDefault("REDIS_PASSWORD", "")
}

func GetRedisDB() int {
	return parseEnvInt("REDIS_DB", 0)
}

// GetSnapshotTTL returns how long a written-through snapshot is kept in Redis
func GetSnapshotTTL() time.Duration {
	return parseEnvDuration("SNAPSHOT_TTL", 24*time.Hour)
}
