package config

import "time"

// StreamTimeouts holds the keepalive settings for the session stream
type StreamTimeouts struct {
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

func GetStreamTimeouts() StreamTimeouts {
	pongWait := parseEnvDuration("WS_PONG_WAIT", 30*time.Second)

	return StreamTimeouts{
		PongWait: pongWait,
		// (PongWait * 9) / 10 unless set explicitly
		PingPeriod:     parseEnvDuration("WS_PING_PERIOD", (pongWait*9)/10),
		WriteWait:      parseEnvDuration("WS_WRITE_WAIT", 10*time.Second),
		MaxMessageSize: int64(parseEnvInt("WS_MAX_MESSAGE_SIZE", 1<<20)),
	}
}
