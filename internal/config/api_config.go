package config

import (
	"time"
)

const baseURLVar = "API_BASE_URL"

type API struct{}

var _ APIConfig = API{}

// GetBaseURL returns the storefront backend base URL (no trailing slash).
func (API) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:5000")
}

// GetRequestTimeout bounds every verify/refresh/catalog call so a dead
// backend never leaves an operation pending indefinitely.
func (API) GetRequestTimeout() time.Duration {
	return durationEnv("API_REQUEST_TIMEOUT", 10*time.Second)
}

func durationEnv(envVar string, defaultValue time.Duration) time.Duration {
	return parseDuration(GetEnv(envVar, ""), defaultValue)
}
