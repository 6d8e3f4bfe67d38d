package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/deepgram/chorus/internal/config"
	"github.com/deepgram/chorus/internal/domain/transcript"
	"github.com/deepgram/chorus/internal/infrastructure/redis"
	"github.com/deepgram/chorus/pkg/logger"
)

const keyPrefix = "Snapshot:"

// ErrNotFound is returned when no snapshot is stored for a session.
var ErrNotFound = errors.New("snapshot not found")

// Store keeps the last good snapshot of each session.
type Store interface {
	Load(ctx context.Context, sessionID string) (transcript.Session, error)
	Save(ctx context.Context, session transcript.Session) error
	Delete(ctx context.Context, sessionID string) error
}

type RedisStore struct {
	redisService *redis.Service
	ttl          time.Duration
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]transcript.Session
}

type Service struct {
	store Store
	name  string
}

// NewService writes snapshots through to Redis when it is reachable and keeps
// them in process memory otherwise.
func NewService(ctx context.Context, redisService *redis.Service) *Service {
	if redisService != nil {
		if err := redisService.Ping(ctx); err == nil {
			logger.Info(logger.SNAPSHOT, "Using Redis snapshot store")
			return &Service{store: NewRedisStore(redisService, config.GetSnapshotTTL()), name: "redis"}
		} else {
			logger.Warn(logger.SNAPSHOT, "Redis unreachable, falling back to memory: %v", err)
		}
	}

	logger.Info(logger.SNAPSHOT, "Using in-memory snapshot store")
	return &Service{store: NewMemoryStore(), name: "memory"}
}

// NewServiceWithStore is used by tests and callers that bring their own store.
func NewServiceWithStore(store Store, name string) *Service {
	return &Service{store: store, name: name}
}

// Backend names the active store.
func (s *Service) Backend() string {
	return s.name
}

func (s *Service) Load(ctx context.Context, sessionID string) (transcript.Session, error) {
	session, err := s.store.Load(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		logger.Error(logger.SNAPSHOT, "Failed to load snapshot for session %s: %v", sessionID, err)
	}
	return session, err
}

func (s *Service) Save(ctx context.Context, session transcript.Session) error {
	if session.ID == "" {
		return errors.New("snapshot has no session id")
	}
	if err := s.store.Save(ctx, session); err != nil {
		logger.Error(logger.SNAPSHOT, "Failed to save snapshot for session %s: %v", session.ID, err)
		return err
	}
	logger.Debug(logger.SNAPSHOT, "Saved snapshot for session %s (%d messages)", session.ID, len(session.Messages))
	return nil
}

func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}

func NewRedisStore(redisService *redis.Service, ttl time.Duration) *RedisStore {
	return &RedisStore{redisService: redisService, ttl: ttl}
}

// Redis Store implementation
func (rs *RedisStore) Load(ctx context.Context, sessionID string) (transcript.Session, error) {
	var session transcript.Session
	err := rs.redisService.GetJSON(ctx, keyPrefix+sessionID, &session)
	if errors.Is(err, redis.ErrNotFound) {
		return transcript.Session{}, ErrNotFound
	}
	if err != nil {
		return transcript.Session{}, err
	}
	return session, nil
}

func (rs *RedisStore) Save(ctx context.Context, session transcript.Session) error {
	return rs.redisService.SetJSON(ctx, keyPrefix+session.ID, session, rs.ttl)
}

func (rs *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return rs.redisService.Delete(ctx, keyPrefix+sessionID)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]transcript.Session),
	}
}

// Memory Store implementation
func (ms *MemoryStore) Load(ctx context.Context, sessionID string) (transcript.Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	session, exists := ms.sessions[sessionID]
	if !exists {
		return transcript.Session{}, ErrNotFound
	}
	return session, nil
}

func (ms *MemoryStore) Save(ctx context.Context, session transcript.Session) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	// callers may keep appending to their slice
	session.Messages = append([]transcript.ChatMessage(nil), session.Messages...)
	ms.sessions[session.ID] = session
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, sessionID)
	return nil
}
