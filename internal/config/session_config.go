package config

import "time"

type Session struct{}

var _ SessionConfig = Session{}

// GetRefreshInterval is how often the background loop exchanges the access
// token while a session is live.
func (Session) GetRefreshInterval() time.Duration {
	return durationEnv("SESSION_REFRESH_INTERVAL", 30*time.Minute)
}

// GetVerifyTimeout bounds the startup token verification.
func (Session) GetVerifyTimeout() time.Duration {
	return durationEnv("SESSION_VERIFY_TIMEOUT", 10*time.Second)
}
