package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/deepgram/chorus/pkg/logger"
)

const defaultBackendURL = "http://localhost:8000/api"

// GetBackendURL returns the base URL of the session REST API, without a trailing slash
func GetBackendURL() string {
	return strings.TrimRight(GetEnvOrDefault("CHORUS_BACKEND_URL", defaultBackendURL), "/")
}

// GetWebSocketURL returns the base URL for session streams. When unset it is
// derived from the backend URL by swapping the scheme; the stream path is
// appended per session by the transport.
func GetWebSocketURL() string {
	if value := GetEnvOrDefault("CHORUS_WS_URL", ""); value != "" {
		return strings.TrimRight(value, "/")
	}

	u, err := url.Parse(GetBackendURL())
	if err != nil {
		logger.Warn(logger.CONFIG, "Backend URL is not parseable, cannot derive stream URL: %v", err)
		return ""
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = ""
	return strings.TrimRight(u.String(), "/")
}

// GetSessionID returns the session to attach to, if preconfigured
func GetSessionID() string {
	return GetEnvOrDefault("CHORUS_SESSION_ID", "")
}

func GetBackendTimeout() time.Duration {
	return parseEnvDuration("BACKEND_TIMEOUT", 10*time.Second)
}
