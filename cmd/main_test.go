package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deepgram/chorus/internal/config"
	"github.com/deepgram/chorus/internal/connections"
	"github.com/deepgram/chorus/internal/domain/transcript"
	"github.com/deepgram/chorus/internal/infrastructure/backend"
	"github.com/deepgram/chorus/internal/services"
	"github.com/deepgram/chorus/internal/services/reconcile"
	"github.com/deepgram/chorus/internal/services/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopChannel struct{}

func (nopChannel) Send(transcript.OutboundMessage) error { return nil }
func (nopChannel) OnEvent(func([]byte))                 {}
func (nopChannel) OnError(func(error))                  {}
func (nopChannel) Close() error                         { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *services.Services) {
	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "s1", "messages": [{"role": "user", "content": "tell me a joke", "timestamp": "2024-05-01T10:00:00"}]}`))
	}))
	t.Cleanup(backendServer.Close)

	svcs := services.New(
		backend.NewServiceWithURL(backendServer.URL, time.Second),
		snapshot.NewServiceWithStore(snapshot.NewMemoryStore(), "memory"),
		connections.NewManager(config.GetStreamTimeouts()),
		func(ctx context.Context, sessionID string) (transcript.Channel, error) { return nopChannel{}, nil },
	)
	t.Cleanup(svcs.Close)

	server := httptest.NewServer(setupRouter(svcs))
	t.Cleanup(server.Close)
	return server, svcs
}

func TestMainServer(t *testing.T) {
	t.Setenv("RATELIMIT_ENABLED", "false")
	server, svcs := newTestServer(t)

	t.Run("health endpoint", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/health")
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != "OK" {
			t.Errorf("Expected body OK, got %q", body)
		}
	})

	t.Run("send before attach", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/v1/messages", "application/json", strings.NewReader(`{"content": "hi"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("attach and read transcript", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/v1/sessions/s1/attach", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		assert.Eventually(t, func() bool { return len(svcs.View().Messages) == 1 }, 2*time.Second, 5*time.Millisecond)

		resp, err = http.Get(server.URL + "/v1/transcript")
		require.NoError(t, err)
		defer resp.Body.Close()

		var view reconcile.View
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
		assert.Equal(t, "s1", view.SessionID)
		require.Len(t, view.Messages, 1)
		assert.Equal(t, "tell me a joke", view.Messages[0].Content)
	})

	t.Run("send after attach", func(t *testing.T) {
		resp, err := http.Post(server.URL+"/v1/messages", "application/json", strings.NewReader(`{"content": "another one"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("status", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/v1/status")
		require.NoError(t, err)
		defer resp.Body.Close()

		var status struct {
			SessionID     string `json:"session_id"`
			SnapshotStore string `json:"snapshot_store"`
			ResyncPending *bool  `json:"resync_pending"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.Equal(t, "s1", status.SessionID)
		assert.Equal(t, "memory", status.SnapshotStore)
		require.NotNil(t, status.ResyncPending)
		assert.False(t, *status.ResyncPending)
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "chorus_http_requests_total")
	})
}

func TestAttachUnknownSession(t *testing.T) {
	t.Setenv("RATELIMIT_ENABLED", "false")
	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail": "Session missing not found"}`))
			return
		}
		w.Write([]byte(`{"id": "s1", "messages": [{"role": "user", "content": "tell me a joke", "timestamp": "2024-05-01T10:00:00"}]}`))
	}))
	t.Cleanup(backendServer.Close)

	svcs := services.New(
		backend.NewServiceWithURL(backendServer.URL, time.Second),
		snapshot.NewServiceWithStore(snapshot.NewMemoryStore(), "memory"),
		connections.NewManager(config.GetStreamTimeouts()),
		func(ctx context.Context, sessionID string) (transcript.Channel, error) { return nopChannel{}, nil },
	)
	t.Cleanup(svcs.Close)
	server := httptest.NewServer(setupRouter(svcs))
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/v1/sessions/s1/attach", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(server.URL+"/v1/sessions/missing/attach", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, "s1", svcs.View().SessionID)
	assert.Eventually(t, func() bool { return len(svcs.View().Messages) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestRunSend(t *testing.T) {
	var body map[string]string
	backendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/s1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"role": "user", "content": "tell me a joke", "timestamp": "2024-05-01T10:00:00.000Z"}`))
	}))
	defer backendServer.Close()
	b := backend.NewServiceWithURL(backendServer.URL, time.Second)

	var out bytes.Buffer
	require.NoError(t, runSend(context.Background(), &out, b, "s1", "  tell me a joke "))
	assert.Equal(t, "tell me a joke", body["content"])
	assert.Equal(t, "user", body["role"])
	assert.Equal(t, "[10:00:00] user: tell me a joke\n", out.String())

	assert.Error(t, runSend(context.Background(), &out, b, "", "hi"))
	assert.ErrorIs(t, runSend(context.Background(), &out, b, "s1", "   "), transcript.ErrEmptyContent)
}

func TestPrinter(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	p := newPrinter(&out)

	p.render(reconcile.View{SessionID: "s1", Messages: []transcript.ConversationMessage{
		{ID: "snapshot:0", Role: "user", Content: "tell me a joke", IsComplete: true, Timestamp: ts},
		{ID: "Cathy:1", Role: "assistant", AgentName: "Cathy", Content: "Why", Timestamp: ts},
	}})
	p.render(reconcile.View{SessionID: "s1", Messages: []transcript.ConversationMessage{
		{ID: "snapshot:0", Role: "user", Content: "tell me a joke", IsComplete: true, Timestamp: ts},
		{ID: "snapshot:1", Role: "assistant", AgentName: "Cathy", Content: "Why did the chicken", IsComplete: true, Timestamp: ts},
	}})

	assert.Equal(t, "[10:00:00] user: tell me a joke\n[10:00:00] Cathy: Why did the chicken\n", out.String())
}

func TestLoadAgents(t *testing.T) {
	agents, err := loadAgents("")
	require.NoError(t, err)
	assert.Nil(t, agents)

	dir := t.TempDir()
	path := filepath.Join(dir, "agents.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "Cathy", "system_message": "You are Cathy", "llm_config": {"model": "gpt-3.5-turbo"}}]`), 0o600))

	agents, err = loadAgents(path)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "Cathy", agents[0].Name)

	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "Cathy"}]`), 0o600))
	_, err = loadAgents(path)
	assert.Error(t, err)
}
