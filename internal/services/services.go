package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deepgram/chorus/internal/config"
	"github.com/deepgram/chorus/internal/connections"
	"github.com/deepgram/chorus/internal/domain/transcript"
	"github.com/deepgram/chorus/internal/infrastructure/backend"
	"github.com/deepgram/chorus/internal/infrastructure/redis"
	"github.com/deepgram/chorus/internal/infrastructure/websocket"
	"github.com/deepgram/chorus/internal/services/reconcile"
	"github.com/deepgram/chorus/internal/services/snapshot"
	"github.com/rs/zerolog/log"
)

var ErrNoEngine = errors.New("no session attached")

var timeNow = time.Now

// Dialer opens the stream channel for a session.
type Dialer func(ctx context.Context, sessionID string) (transcript.Channel, error)

type Services struct {
	mu sync.RWMutex

	redisService      *redis.Service
	backendService    *backend.Service
	snapshotService   *snapshot.Service
	connectionManager *connections.Manager
	notifications     *reconcile.Ring
	dial              Dialer
	engine            *reconcile.Engine
}

// InitializeServices initializes all required services
func InitializeServices(ctx context.Context) (*Services, error) {
	log.Info().Msg("Initializing core services")

	// Initialize Redis service (optional)
	redisService := redis.NewService(ctx)
	log.Info().Bool("available", redisService != nil).Msg("Initializing Redis service")

	snapshotService := snapshot.NewService(ctx, redisService)
	log.Info().Str("store", snapshotService.Backend()).Msg("Initializing snapshot service")

	backendService := backend.NewService()
	log.Info().Str("url", config.GetBackendURL()).Msg("Initializing backend service")

	connectionManager := connections.NewManager(config.GetStreamTimeouts())
	wsURL := config.GetWebSocketURL()
	if wsURL == "" {
		return nil, fmt.Errorf("failed to initialize stream transport: no stream URL")
	}

	s := New(backendService, snapshotService, connectionManager, func(ctx context.Context, sessionID string) (transcript.Channel, error) {
		conn, err := websocket.Dial(ctx, wsURL, sessionID, connectionManager)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
	s.redisService = redisService

	log.Info().Msg("All services initialized successfully")
	return s, nil
}

// New wires the services around an existing backend client and stream dialer.
func New(backendService *backend.Service, snapshotService *snapshot.Service, connectionManager *connections.Manager, dial Dialer) *Services {
	return &Services{
		backendService:    backendService,
		snapshotService:   snapshotService,
		connectionManager: connectionManager,
		notifications:     reconcile.NewRing(reconcile.DefaultRingSize),
		dial:              dial,
	}
}

// AttachSession starts the engine on sessionID, or switches the running
// engine to it. The session is fetched first; when the backend cannot
// produce it the running engine is left on its current session.
func (s *Services) AttachSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return reconcile.ErrNoSession
	}

	session, err := s.backendService.GetSession(ctx, sessionID)
	if err != nil {
		s.notifications.Report(reconcile.NewNotification(reconcile.KindSessionLoad, sessionID, reconcile.Describe(err), timeNow()))
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	// seeds the engine's view until its own fetch lands
	if err := s.snapshotService.Save(ctx, session); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to cache session snapshot")
	}

	ch, err := s.dial(ctx, sessionID)
	if err != nil {
		s.notifications.Report(reconcile.NewNotification(reconcile.KindChannel, sessionID, "Connection error. Please try again.", timeNow()))
		return fmt.Errorf("failed to open stream for session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		if err := s.engine.SwitchSession(ctx, sessionID, ch); err != nil {
			ch.Close()
			return fmt.Errorf("failed to switch session: %w", err)
		}
		return nil
	}

	engine, err := reconcile.New(reconcile.Options{
		SessionID:   sessionID,
		Channel:     ch,
		Fetcher:     s.backendService,
		Store:       s.snapshotService,
		Reporter:    s.notifications,
		ResyncDelay: config.GetResyncDelay(),
	})
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to create engine: %w", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		engine.Close()
		return fmt.Errorf("failed to start engine: %w", err)
	}

	s.engine = engine
	return nil
}

// SwitchSession attaches to an existing session.
func (s *Services) SwitchSession(ctx context.Context, sessionID string) error {
	return s.AttachSession(ctx, sessionID)
}

// CreateSession asks the backend for a new session and attaches to it.
func (s *Services) CreateSession(ctx context.Context, agents []transcript.AgentCreate) (transcript.Session, error) {
	session, err := s.backendService.CreateSession(ctx, agents)
	if err != nil {
		s.notifications.Report(reconcile.NewNotification(reconcile.KindSessionCreate, "", reconcile.Describe(err), timeNow()))
		return transcript.Session{}, err
	}

	if err := s.AttachSession(ctx, session.ID); err != nil {
		return session, err
	}
	return session, nil
}

// Close shuts the engine down and releases Redis.
func (s *Services) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		s.engine.Close()
		s.engine = nil
	}
	if s.redisService != nil {
		if err := s.redisService.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis connection")
		}
	}
}

// GetEngine returns the running engine, or nil before a session is attached
func (s *Services) GetEngine() *reconcile.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// GetBackendService returns the session backend client
func (s *Services) GetBackendService() *backend.Service {
	return s.backendService
}

// GetSnapshotService returns the snapshot store
func (s *Services) GetSnapshotService() *snapshot.Service {
	return s.snapshotService
}

// GetConnectionManager returns the stream connection manager
func (s *Services) GetConnectionManager() *connections.Manager {
	return s.connectionManager
}

// GetNotifications returns the recent notifications ring
func (s *Services) GetNotifications() *reconcile.Ring {
	return s.notifications
}

// View returns the transcript of the attached session, empty when none is attached.
func (s *Services) View() reconcile.View {
	if engine := s.GetEngine(); engine != nil {
		return engine.View()
	}
	return reconcile.View{Messages: []transcript.ConversationMessage{}}
}

// ResyncPending reports whether the attached session has a snapshot refresh armed.
func (s *Services) ResyncPending() bool {
	if engine := s.GetEngine(); engine != nil {
		return engine.ResyncPending()
	}
	return false
}

// Send submits a user message to the attached session.
func (s *Services) Send(ctx context.Context, content string) error {
	engine := s.GetEngine()
	if engine == nil {
		return fmt.Errorf("%w: %w", transcript.ErrChannelNotOpen, ErrNoEngine)
	}
	return engine.Send(ctx, content)
}

// Recent returns the latest notifications, oldest first.
func (s *Services) Recent() []reconcile.Notification {
	return s.notifications.Recent()
}
