package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deepgram/chorus/internal/config"
	"github.com/deepgram/chorus/internal/domain/transcript"
	"github.com/deepgram/chorus/pkg/httpext"
	"github.com/rs/zerolog/log"
)

// ErrSessionNotFound is returned when the backend has no session with the requested id.
var ErrSessionNotFound = errors.New("session not found")

type Service struct {
	client  *http.Client
	baseURL string
}

type createSessionRequest struct {
	Agents []transcript.AgentCreate `json:"agents"`
}

type postMessageRequest struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func NewService() *Service {
	return NewServiceWithURL(config.GetBackendURL(), config.GetBackendTimeout())
}

func NewServiceWithURL(baseURL string, timeout time.Duration) *Service {
	return &Service{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// GetSession fetches the authoritative snapshot for sessionID.
func (s *Service) GetSession(ctx context.Context, sessionID string) (transcript.Session, error) {
	if sessionID == "" {
		return transcript.Session{}, errors.New("session id is required")
	}

	endpoint := fmt.Sprintf("%s/sessions/%s", s.baseURL, url.PathEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return transcript.Session{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	var session transcript.Session
	if err := s.do(httpReq, &session); err != nil {
		return transcript.Session{}, err
	}

	log.Debug().
		Str("ns", "BACKEND").
		Str("session_id", sessionID).
		Int("messages", len(session.Messages)).
		Msg("Fetched session snapshot")

	return session, nil
}

// CreateSession asks the backend for a new session. An empty agent list lets
// the backend pick its default agents.
func (s *Service) CreateSession(ctx context.Context, agents []transcript.AgentCreate) (transcript.Session, error) {
	if err := transcript.ValidateAgents(agents); err != nil {
		return transcript.Session{}, fmt.Errorf("invalid agents: %w", err)
	}
	if agents == nil {
		agents = []transcript.AgentCreate{}
	}

	jsonData, err := json.Marshal(createSessionRequest{Agents: agents})
	if err != nil {
		return transcript.Session{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sessions", bytes.NewReader(jsonData))
	if err != nil {
		return transcript.Session{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var session transcript.Session
	if err := s.do(httpReq, &session); err != nil {
		return transcript.Session{}, err
	}
	if session.ID == "" {
		return transcript.Session{}, errors.New("backend returned a session without an id")
	}

	log.Info().
		Str("ns", "BACKEND").
		Str("session_id", session.ID).
		Int("agents", len(session.Agents)).
		Msg("Created session")

	return session, nil
}

// PostMessage submits a user message through the REST API instead of the
// stream. Backends that only accept messages on the stream answer with an
// error status, which is returned as a StatusError.
func (s *Service) PostMessage(ctx context.Context, sessionID string, msg transcript.OutboundMessage) (transcript.ChatMessage, error) {
	if sessionID == "" {
		return transcript.ChatMessage{}, errors.New("session id is required")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return transcript.ChatMessage{}, transcript.ErrEmptyContent
	}

	jsonData, err := json.Marshal(postMessageRequest{Role: "user", Content: msg.Content, Timestamp: msg.Timestamp})
	if err != nil {
		return transcript.ChatMessage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/sessions/%s/messages", s.baseURL, url.PathEscape(sessionID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return transcript.ChatMessage{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var stored transcript.ChatMessage
	if err := s.do(httpReq, &stored); err != nil {
		return transcript.ChatMessage{}, err
	}

	log.Info().
		Str("ns", "BACKEND").
		Str("session_id", sessionID).
		Msg("Posted message")

	return stored, nil
}

func (s *Service) do(httpReq *http.Request, dest interface{}) error {
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := httpext.DecodeError(resp)
		log.Error().
			Str("ns", "BACKEND").
			Str("method", httpReq.Method).
			Str("url", httpReq.URL.String()).
			Int("status", resp.StatusCode).
			Str("detail", statusErr.Detail).
			Msg("Backend request failed")

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrSessionNotFound, statusErr)
		}
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
