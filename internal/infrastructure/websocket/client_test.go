package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deepgram/chorus/internal/config"
	"github.com/deepgram/chorus/internal/connections"
	"github.com/deepgram/chorus/internal/domain/transcript"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var testTimeouts = config.StreamTimeouts{
	PongWait:       5 * time.Second,
	PingPeriod:     4 * time.Second,
	WriteWait:      time.Second,
	MaxMessageSize: 1 << 16,
}

// backend is a fake session stream endpoint. It writes frames pushed to out
// and records frames it receives.
type backend struct {
	server *httptest.Server
	out    chan string
	closed chan struct{}

	mu       sync.Mutex
	received []string
	path     string
}

func newBackend(t *testing.T) *backend {
	b := &backend{
		out:    make(chan string, 16),
		closed: make(chan struct{}),
	}

	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/sessions/") {
			http.NotFound(w, r)
			return
		}
		b.mu.Lock()
		b.path = r.URL.Path
		b.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				b.mu.Lock()
				b.received = append(b.received, string(msg))
				b.mu.Unlock()
			}
		}()

		for {
			select {
			case frame := <-b.out:
				if err := conn.WriteMessage(gorilla.TextMessage, []byte(frame)); err != nil {
					return
				}
			case <-b.closed:
				conn.WriteControl(gorilla.CloseMessage,
					gorilla.FormatCloseMessage(gorilla.CloseInternalServerErr, "boom"),
					time.Now().Add(time.Second))
				return
			}
		}
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) wsURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

func (b *backend) receivedFrames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.received...)
}

type frames struct {
	mu   sync.Mutex
	raw  []string
	errs []error
}

func (f *frames) event(raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, string(raw))
}

func (f *frames) err(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *frames) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.raw), len(f.errs)
}

func TestStreamURL(t *testing.T) {
	got, err := StreamURL("ws://localhost:8000/", "abc")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/api/sessions/abc/ws", got)

	_, err = StreamURL("http://localhost:8000", "abc")
	assert.Error(t, err)
}

func TestConnReceivesAndSends(t *testing.T) {
	b := newBackend(t)
	manager := connections.NewManager(testTimeouts)

	conn, err := Dial(context.Background(), b.wsURL(), "s1", manager)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, 1, manager.GetConnectionCount())

	got := &frames{}
	conn.OnError(got.err)
	conn.OnEvent(got.event)

	b.out <- `{"type":"agent_start","agent_name":"Cathy"}`
	b.out <- `{"type":"content","agent_name":"Cathy","content":"Hi"}`

	assert.Eventually(t, func() bool { n, _ := got.counts(); return n == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, `{"type":"agent_start","agent_name":"Cathy"}`, got.raw[0])

	msg, err := transcript.NewOutboundMessage("hello", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, conn.Send(msg))

	assert.Eventually(t, func() bool { return len(b.receivedFrames()) == 1 }, 2*time.Second, 10*time.Millisecond)
	var sent transcript.OutboundMessage
	require.NoError(t, json.Unmarshal([]byte(b.receivedFrames()[0]), &sent))
	assert.Equal(t, "hello", sent.Content)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", sent.Timestamp)

	b.mu.Lock()
	assert.Equal(t, "/api/sessions/s1/ws", b.path)
	b.mu.Unlock()
}

func TestConnCloseDetachesCallbacks(t *testing.T) {
	b := newBackend(t)
	manager := connections.NewManager(testTimeouts)

	conn, err := Dial(context.Background(), b.wsURL(), "s1", manager)
	require.NoError(t, err)

	got := &frames{}
	conn.OnError(got.err)
	conn.OnEvent(got.event)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close is idempotent")
	assert.Equal(t, 0, manager.GetConnectionCount())

	b.out <- `{"type":"agent_start","agent_name":"Cathy"}`
	time.Sleep(100 * time.Millisecond)

	n, errs := got.counts()
	assert.Zero(t, n)
	assert.Zero(t, errs, "our own close is not reported")

	msg, _ := transcript.NewOutboundMessage("hello", time.Now())
	assert.ErrorIs(t, conn.Send(msg), transcript.ErrChannelNotOpen)
}

func TestConnReportsUnexpectedClose(t *testing.T) {
	b := newBackend(t)
	manager := connections.NewManager(testTimeouts)

	conn, err := Dial(context.Background(), b.wsURL(), "s1", manager)
	require.NoError(t, err)
	defer conn.Close()

	got := &frames{}
	conn.OnError(got.err)
	conn.OnEvent(got.event)

	close(b.closed)

	assert.Eventually(t, func() bool { _, e := got.counts(); return e == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, got.errs[0].Error(), "session stream closed")
	assert.Equal(t, 0, manager.GetConnectionCount())

	msg, _ := transcript.NewOutboundMessage("hello", time.Now())
	assert.ErrorIs(t, conn.Send(msg), transcript.ErrChannelNotOpen)
}

func TestDialFailures(t *testing.T) {
	b := newBackend(t)
	manager := connections.NewManager(testTimeouts)

	_, err := Dial(context.Background(), b.wsURL(), "", manager)
	assert.Error(t, err)

	_, err = Dial(context.Background(), b.wsURL()+"/nowhere", "s1", manager)
	assert.Error(t, err)
	assert.Equal(t, 0, manager.GetConnectionCount())
}
