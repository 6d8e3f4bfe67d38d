package handlers

import (
	"net/http"

	v1mware "github.com/deepgram/chorus/internal/api/v1/middleware"
	"github.com/deepgram/chorus/internal/services"
	"github.com/gorilla/mux"
)

func RegisterV1Routes(router *mux.Router, services *services.Services) {
	// v1 routes
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(v1mware.Metrics)

	v1.Handle("/transcript", v1mware.RateLimit("read_transcript")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleGetTranscript(services, w, r)
	}))).Methods("GET")

	v1.Handle("/messages", v1mware.RateLimit("send_message")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandlePostMessage(services, w, r)
	}))).Methods("POST")

	v1.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		HandleGetNotifications(services, w, r)
	}).Methods("GET")

	v1.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		HandleGetStatus(func() Status {
			view := services.View()
			return Status{
				SessionID:     view.SessionID,
				Messages:      len(view.Messages),
				Streams:       services.GetConnectionManager().Sessions(),
				SnapshotStore: services.GetSnapshotService().Backend(),
				ResyncPending: services.ResyncPending(),
			}
		}, w, r)
	}).Methods("GET")

	// session routes
	v1.Handle("/sessions", v1mware.RateLimit("create_session")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleCreateSession(services, w, r)
	}))).Methods("POST")
	v1.HandleFunc("/sessions/{id}/attach", func(w http.ResponseWriter, r *http.Request) {
		HandleAttachSession(services, w, r)
	}).Methods("POST")
}
