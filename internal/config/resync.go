package config

import "time"

// GetResyncDelay returns how long to wait after a completed turn before the
// snapshot is re-read
func GetResyncDelay() time.Duration {
	return parseEnvDuration("RESYNC_DELAY", 300*time.Millisecond)
}
