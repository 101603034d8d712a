package tokens

import (
	"context"
	"time"
)

// Keys under which a Session persists its credentials.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

var (
	// DefaultItemExpiration is how long a stored token row stays valid
	DefaultItemExpiration = 30 * 24 * time.Hour

	// DefaultExpiredTaskTimer is the default interval of the expired row sweeper
	DefaultExpiredTaskTimer = 10 * time.Minute
)

// Store is a small string key-value store used to persist credentials
// between runs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
