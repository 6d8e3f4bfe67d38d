// Package websocket dials the backend session stream and exposes it as a
// transcript.Channel.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/deepgram/chorus/internal/connections"
	"github.com/deepgram/chorus/internal/domain/transcript"
	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// StreamURL returns the stream endpoint for sessionID under baseURL.
func StreamURL(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/api/sessions/" + url.PathEscape(sessionID) + "/ws")
	if err != nil {
		return "", fmt.Errorf("invalid stream URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid stream URL scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Conn is a session stream. Reads start once an event callback is attached,
// so no frame is lost between dialing and wiring.
type Conn struct {
	conn      *gorilla.Conn
	sessionID string
	manager   *connections.Manager
	writeWait time.Duration
	pongWait  time.Duration
	ping      time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	onEvent func(raw []byte)
	onError func(err error)
	closed  bool

	readOnce sync.Once
	done     chan struct{}
}

// Dial opens the stream for sessionID.
func Dial(ctx context.Context, baseURL, sessionID string, manager *connections.Manager) (*Conn, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	endpoint, err := StreamURL(baseURL, sessionID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := gorilla.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		log.Error().
			Err(err).
			Str("ns", "TRANSPORT").
			Str("url", endpoint).
			Int("status", status).
			Msg("Failed to connect to session stream")
		return nil, fmt.Errorf("failed to connect to session stream: %w", err)
	}

	timeouts := manager.GetTimeouts()
	c := &Conn{
		conn:      conn,
		sessionID: sessionID,
		manager:   manager,
		writeWait: timeouts.WriteWait,
		pongWait:  timeouts.PongWait,
		ping:      timeouts.PingPeriod,
		done:      make(chan struct{}),
	}

	if timeouts.MaxMessageSize > 0 {
		conn.SetReadLimit(timeouts.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	manager.AddConnection(sessionID, conn)
	go c.pingLoop()

	log.Info().
		Str("ns", "TRANSPORT").
		Str("session_id", sessionID).
		Msg("Session stream connected")

	return c, nil
}

// OnEvent attaches the frame callback. Passing nil detaches it.
func (c *Conn) OnEvent(fn func(raw []byte)) {
	c.mu.Lock()
	c.onEvent = fn
	closed := c.closed
	c.mu.Unlock()

	if fn != nil && !closed {
		c.readOnce.Do(func() { go c.readLoop() })
	}
}

// OnError attaches the transport error callback. Passing nil detaches it.
func (c *Conn) OnError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Send writes msg as a JSON text frame.
func (c *Conn) Send(msg transcript.OutboundMessage) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transcript.ErrChannelNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close detaches both callbacks, then closes the connection. It is safe to
// call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.onEvent = nil
	c.onError = nil
	c.mu.Unlock()

	close(c.done)
	c.manager.RemoveConnection(c.conn)

	c.writeMu.Lock()
	deadline := time.Now().Add(c.writeWait)
	_ = c.conn.WriteControl(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()

	log.Info().
		Str("ns", "TRANSPORT").
		Str("session_id", c.sessionID).
		Msg("Session stream closed")

	return c.conn.Close()
}

func (c *Conn) readLoop() {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		c.mu.Lock()
		fn := c.onEvent
		c.mu.Unlock()

		// fn runs unlocked and may outlive a concurrent detach by one frame
		if fn != nil {
			fn(message)
		}
	}
}

// fail handles a read error. Errors caused by our own Close are not reported.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	report := c.onError
	c.onEvent = nil
	c.onError = nil
	c.mu.Unlock()

	close(c.done)
	c.manager.RemoveConnection(c.conn)
	c.conn.Close()

	if gorilla.IsUnexpectedCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
		log.Error().Err(err).Str("ns", "TRANSPORT").Str("session_id", c.sessionID).Msg("Unexpected stream closure")
	} else {
		log.Info().Err(err).Str("ns", "TRANSPORT").Str("session_id", c.sessionID).Msg("Stream closed by backend")
	}

	if report != nil {
		report(fmt.Errorf("session stream closed: %w", err))
	}
}

func (c *Conn) pingLoop() {
	if c.ping <= 0 {
		return
	}

	ticker := time.NewTicker(c.ping)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.writeWait)
			if err := c.conn.WriteControl(gorilla.PingMessage, []byte{}, deadline); err != nil {
				log.Debug().Err(err).Str("ns", "TRANSPORT").Msg("Ping failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

var _ transcript.Channel = (*Conn)(nil)
