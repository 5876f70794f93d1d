package session

import "github.com/greenplanet/storefront/authapi"

// Status is the session lifecycle state.
type Status int

const (
	// StatusInitializing is the pre-Restore state. Entered exactly once,
	// at construction; never re-entered.
	StatusInitializing Status = iota
	// StatusAnonymous means no valid credentials are held.
	StatusAnonymous
	// StatusAuthenticated means an access token and user profile are held.
	StatusAuthenticated
	// StatusRefreshing means a token exchange is in flight.
	StatusRefreshing
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	case StatusRefreshing:
		return "refreshing"
	}
	return "unknown"
}

// Snapshot is an immutable view of the session handed to consumers.
// IsAuthenticated implies AccessToken and User are both present.
type Snapshot struct {
	Status          Status
	IsAuthenticated bool
	Loading         bool
	AccessToken     string
	UserID          string
	User            *authapi.UserProfile
	LastError       error
}
