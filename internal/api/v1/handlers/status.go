package handlers

import (
	"net/http"

	"github.com/deepgram/chorus/pkg/httpext"
)

// Status summarises what the viewer is attached to.
type Status struct {
	SessionID     string   `json:"session_id"`
	Messages      int      `json:"messages"`
	Streams       []string `json:"streams"`
	SnapshotStore string   `json:"snapshot_store"`
	ResyncPending bool     `json:"resync_pending"`
}

func HandleGetStatus(status func() Status, w http.ResponseWriter, r *http.Request) {
	s := status()
	if s.Streams == nil {
		s.Streams = []string{}
	}
	httpext.Json(w, http.StatusOK, s)
}
