package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/deepgram/chorus/pkg/httpext"
	"github.com/stretchr/testify/assert"
)

func TestNewNotification(t *testing.T) {
	tests := []struct {
		kind        Kind
		description string
		wantTitle   string
		wantDesc    string
	}{
		{KindSessionLoad, "", "Error loading chat", "Please try again later"},
		{KindSessionCreate, "Failed to create session: boom", "Error creating session", "Failed to create session: boom"},
		{KindChannel, "Connection error. Please try again.", "WebSocket Error", "Connection error. Please try again."},
		{KindAgent, "model unavailable", "Error", "model unavailable"},
		{KindSendFailed, "", "Error sending message", "Please try again later"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			n := NewNotification(tt.kind, "s1", tt.description, t0)
			assert.Equal(t, tt.wantTitle, n.Title)
			assert.Equal(t, tt.wantDesc, n.Description)
			assert.Equal(t, "s1", n.SessionID)
			assert.Equal(t, t0, n.Time)
		})
	}
}

func TestDescribe(t *testing.T) {
	detail := &httpext.StatusError{StatusCode: 404, Detail: "Session 1 not found"}

	assert.Equal(t, "Session 1 not found", Describe(detail))
	assert.Equal(t, "Session 1 not found", Describe(fmt.Errorf("fetch: %w", detail)))
	assert.Equal(t, "", Describe(fmt.Errorf("dial tcp: connection refused")))
}

func TestRing(t *testing.T) {
	r := NewRing(3)
	assert.Empty(t, r.Recent())

	for i := 0; i < 5; i++ {
		r.Report(Notification{Description: fmt.Sprint(i), Time: t0.Add(time.Duration(i) * time.Second)})
	}

	got := r.Recent()
	if assert.Len(t, got, 3) {
		assert.Equal(t, "2", got[0].Description)
		assert.Equal(t, "4", got[2].Description)
	}

	assert.Len(t, NewRing(0).items, DefaultRingSize)
}

func TestReporterFunc(t *testing.T) {
	var got []Notification
	f := fanout{ReporterFunc(func(n Notification) { got = append(got, n) }), nil}

	f.Report(NewNotification(KindAgent, "s1", "x", t0))
	assert.Len(t, got, 1)
}
