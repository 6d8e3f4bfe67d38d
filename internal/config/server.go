package config

var (
	// ViewerAddr is the listen address of the viewer API
	ViewerAddr = GetEnvOrDefault("VIEWER_ADDR", ":8080")
)

// GetViewerAddr returns the configured viewer API listen address
func GetViewerAddr() string {
	return ViewerAddr
}

// SetViewerAddr temporarily changes the viewer address and returns a function to restore it
// This is primarily used for testing
func SetViewerAddr(addr string) func() {
	previous := ViewerAddr
	ViewerAddr = addr

	return func() {
		ViewerAddr = previous
	}
}

// GetLogPretty reports whether logs should be human readable instead of JSON
func GetLogPretty() bool {
	return parseEnvBool("LOG_PRETTY", false)
}
