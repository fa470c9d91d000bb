package common

import (
	"os"
	"time"
)

const (
	// DefaultBaseURL is the upstream chat service. Override with ATXP_BASE_URL.
	DefaultBaseURL = "https://chat.atxp.ai"

	// UserAgent is presented on every upstream call; the upstream expects a
	// browser profile, not an SDK fingerprint.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// AccessTokenTTL is how long a refreshed access token is trusted. The
	// upstream issues 15-minute tokens; we refresh 60 seconds early.
	AccessTokenTTL = 840 * time.Second

	// TokenRefreshMargin triggers a refresh when the stored expiry is this
	// close to now.
	TokenRefreshMargin = 60 * time.Second

	// UnhealthyErrorThreshold is the consecutive-error count at which an
	// account is skipped during normal pool rotation.
	UnhealthyErrorThreshold = 5

	// InitMaxRetries bounds phase-1 retries on upstream concurrency limits.
	InitMaxRetries = 3

	// RefreshTimeout, InitTimeout and StreamTimeout are the client timeouts
	// for the three upstream calls. Generation latency is unbounded, so the
	// stream timeout is minutes-scale.
	RefreshTimeout = 15 * time.Second
	InitTimeout    = 30 * time.Second
	StreamTimeout  = 300 * time.Second
)

const RequestIdKey = "X-Request-Id"

// BaseURL returns the upstream base URL, honoring the ATXP_BASE_URL override.
func BaseURL() string {
	if v := os.Getenv("ATXP_BASE_URL"); v != "" {
		return v
	}
	return DefaultBaseURL
}
