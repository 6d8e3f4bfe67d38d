package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/deepgram/chorus/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by GetJSON for missing keys.
var ErrNotFound = errors.New("redis: key not found")

type Service struct {
	client *redis.Client
}

var (
	redisService *Service
	redisMu      sync.RWMutex
)

func GetService() *Service {
	redisMu.RLock()
	defer redisMu.RUnlock()
	return redisService
}

// NewService connects to the configured Redis. It returns nil when Redis is not
// configured or not reachable, and callers fall back to in-memory storage.
func NewService(ctx context.Context) *Service {
	url := config.GetRedisURL()

	if url == "" {
		log.Warn().Str("ns", "REDIS").Msg("Redis URL not configured - service will be unavailable")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: config.GetRedisPassword(),
		DB:       config.GetRedisDB(),
	})

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().
			Err(err).
			Str("ns", "REDIS").
			Str("addr", url).
			Msg("Failed to establish Redis connection")
		_ = client.Close()
		return nil
	}

	s := NewServiceWithClient(client)

	redisMu.Lock()
	redisService = s
	redisMu.Unlock()

	return s
}

// NewServiceWithClient wraps an existing client.
func NewServiceWithClient(client *redis.Client) *Service {
	return &Service{client: client}
}

// Set stores a value in Redis with an optional expiration
func (s *Service) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := s.client.Set(ctx, key, value, expiration).Err(); err != nil {
		log.Error().
			Err(err).
			Str("ns", "REDIS").
			Str("key", key).
			Dur("expiration", expiration).
			Msg("Redis SET operation failed")
		return err
	}
	return nil
}

// Get retrieves a value from Redis
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Error().
			Err(err).
			Str("ns", "REDIS").
			Str("key", key).
			Msg("Redis GET operation failed")
		return "", err
	}
	return val, err
}

// SetJSON marshals value and stores it under key
func (s *Service) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, data, expiration)
}

// GetJSON loads key into dest. Missing keys yield ErrNotFound.
func (s *Service) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := s.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Delete removes a key from Redis
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks if Redis is accessible
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}
