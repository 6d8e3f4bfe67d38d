package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/deepgram/chorus/internal/domain/transcript"
	"github.com/deepgram/chorus/internal/infrastructure/backend"
	"github.com/deepgram/chorus/internal/services/reconcile"
	"github.com/deepgram/chorus/pkg/httpext"
	"github.com/deepgram/chorus/pkg/logger"
	"github.com/gorilla/mux"
)

// SessionController creates sessions and moves the viewer between them.
type SessionController interface {
	CreateSession(ctx context.Context, agents []transcript.AgentCreate) (transcript.Session, error)
	SwitchSession(ctx context.Context, sessionID string) error
}

type createSessionRequest struct {
	Agents []transcript.AgentCreate `json:"agents"`
}

// HandleCreateSession creates a backend session and attaches the viewer to it.
// An empty body lets the backend choose its default agents.
func HandleCreateSession(controller SessionController, w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Error(logger.HANDLER, "Failed to decode session request: %v", err)
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := transcript.ValidateAgents(req.Agents); err != nil {
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "Invalid agents",
			ErrorDescription: err.Error(),
		})
		return
	}

	session, err := controller.CreateSession(r.Context(), req.Agents)
	if err != nil && session.ID == "" {
		logger.Error(logger.HANDLER, "Failed to create session: %v", err)
		httpext.JsonErrorWithDetails(w, http.StatusBadGateway, httpext.ErrorResponse{
			Error:            "Error creating session",
			ErrorDescription: reconcile.Describe(err),
		})
		return
	}
	if err != nil {
		// created, but the stream could not be attached
		logger.Warn(logger.HANDLER, "Session %s created but not attached: %v", session.ID, err)
	}

	httpext.Json(w, http.StatusCreated, session)
}

// HandleAttachSession moves the viewer to the session named in the path.
func HandleAttachSession(controller SessionController, w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if sessionID == "" {
		httpext.JsonError(w, "Session id is required", http.StatusBadRequest)
		return
	}

	if err := controller.SwitchSession(r.Context(), sessionID); err != nil {
		logger.Error(logger.HANDLER, "Failed to attach session %s: %v", sessionID, err)
		code := http.StatusBadGateway
		if errors.Is(err, backend.ErrSessionNotFound) {
			code = http.StatusNotFound
		}
		httpext.JsonError(w, "Error loading chat", code)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
