// Package credentials defines the tab-local key/value persistence the
// session manager and cart store share. Values survive application restarts
// the way browser localStorage survives page reloads. An absent key is
// reported as ErrKeyNotFound, never as an empty string.
package credentials

import "errors"

// Well-known keys. Each component owns its own keys; nothing clears the
// whole store wholesale (logout must not wipe the cart).
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUserID       = "userId"
	KeyClientID     = "clientId"
	KeyCart         = "cart"
)

var ErrKeyNotFound = errors.New("credential key not found")

// Store persists small string values under well-known keys.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}
