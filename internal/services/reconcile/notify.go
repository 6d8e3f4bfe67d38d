package reconcile

import (
	"errors"
	"sync"
	"time"

	"github.com/deepgram/chorus/internal/metrics"
	"github.com/deepgram/chorus/pkg/httpext"
	"github.com/deepgram/chorus/pkg/logger"
)

// Kind classifies a user-facing notification.
type Kind string

const (
	KindSessionLoad   Kind = "session_load"
	KindSessionCreate Kind = "session_create"
	KindChannel       Kind = "channel"
	KindAgent         Kind = "agent"
	KindSendInvalid   Kind = "send_invalid"
	KindSendFailed    Kind = "send_failed"
)

const defaultDescription = "Please try again later"

var titles = map[Kind]string{
	KindSessionLoad:   "Error loading chat",
	KindSessionCreate: "Error creating session",
	KindChannel:       "WebSocket Error",
	KindAgent:         "Error",
	KindSendInvalid:   "Error",
	KindSendFailed:    "Error sending message",
}

// Notification is a user-facing error raised by the engine.
type Notification struct {
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SessionID   string    `json:"session_id,omitempty"`
	Time        time.Time `json:"time"`
}

// Reporter receives notifications. Report may be called from several
// goroutines and must not block.
type Reporter interface {
	Report(n Notification)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(n Notification)

func (f ReporterFunc) Report(n Notification) { f(n) }

// NewNotification fills in the default title for kind.
func NewNotification(kind Kind, sessionID, description string, now time.Time) Notification {
	if description == "" {
		description = defaultDescription
	}
	return Notification{
		Kind:        kind,
		Title:       titles[kind],
		Description: description,
		SessionID:   sessionID,
		Time:        now,
	}
}

// Describe returns the backend's detail message for err when there is one.
func Describe(err error) string {
	var statusErr *httpext.StatusError
	if errors.As(err, &statusErr) && statusErr.Detail != "" {
		return statusErr.Detail
	}
	return ""
}

// Ring keeps the most recent notifications.
type Ring struct {
	mu    sync.RWMutex
	items []Notification
	next  int
	full  bool
}

// DefaultRingSize is the number of notifications the viewer API keeps.
const DefaultRingSize = 50

func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{items: make([]Notification, size)}
}

func (r *Ring) Report(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.next] = n
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns the stored notifications, oldest first.
func (r *Ring) Recent() []Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		return append([]Notification(nil), r.items[:r.next]...)
	}
	out := make([]Notification, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}

// fanout reports to every reporter and records the notification.
type fanout []Reporter

func (f fanout) Report(n Notification) {
	metrics.Notifications.WithLabelValues(string(n.Kind)).Inc()
	logger.Warn(logger.ENGINE, "%s (%s): %s", n.Title, n.Kind, n.Description)
	for _, r := range f {
		if r != nil {
			r.Report(n)
		}
	}
}
