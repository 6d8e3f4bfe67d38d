package handlers

import (
	"net/http"

	"github.com/deepgram/chorus/internal/services/reconcile"
	"github.com/deepgram/chorus/pkg/httpext"
)

// NotificationSource lists recent user-facing errors.
type NotificationSource interface {
	Recent() []reconcile.Notification
}

func HandleGetNotifications(source NotificationSource, w http.ResponseWriter, r *http.Request) {
	notifications := source.Recent()
	if notifications == nil {
		notifications = []reconcile.Notification{}
	}
	httpext.Json(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}
