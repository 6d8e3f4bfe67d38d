package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deepgram/chorus/internal/domain/transcript"
	"github.com/deepgram/chorus/pkg/httpext"
	"github.com/deepgram/chorus/pkg/logger"
)

// Sender submits user messages to the attached session.
type Sender interface {
	Send(ctx context.Context, content string) error
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// HandlePostMessage forwards a user message to the session stream
func HandlePostMessage(sender Sender, w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(logger.HANDLER, "Failed to decode message request: %v", err)
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	err := sender.Send(r.Context(), req.Content)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, transcript.ErrEmptyContent):
		httpext.JsonError(w, "Message content cannot be empty", http.StatusBadRequest)
	case errors.Is(err, transcript.ErrChannelNotOpen):
		logger.Warn(logger.HANDLER, "Message rejected, stream not open: %v", err)
		httpext.JsonErrorWithDetails(w, http.StatusServiceUnavailable, httpext.ErrorResponse{
			Error:            "Not connected",
			ErrorDescription: "The session stream is not open",
		})
	default:
		logger.Error(logger.HANDLER, "Failed to send message: %v", err)
		httpext.JsonError(w, "Error sending message", http.StatusBadGateway)
	}
}
