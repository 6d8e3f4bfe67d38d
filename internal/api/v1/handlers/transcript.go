package handlers

import (
	"net/http"

	"github.com/deepgram/chorus/internal/services/reconcile"
	"github.com/deepgram/chorus/pkg/httpext"
	"github.com/deepgram/chorus/pkg/logger"
)

// Viewer exposes the reconciled transcript.
type Viewer interface {
	View() reconcile.View
}

// HandleGetTranscript returns the merged view of the attached session
func HandleGetTranscript(viewer Viewer, w http.ResponseWriter, r *http.Request) {
	view := viewer.View()
	logger.Debug(logger.HANDLER, "Serving transcript for session %q (%d messages)", view.SessionID, len(view.Messages))
	httpext.Json(w, http.StatusOK, view)
}
