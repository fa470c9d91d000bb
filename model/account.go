package model

import (
	"time"

	"github.com/hhdaadws/atxp2api/common"
)

// Account is one upstream session credential. The refresh token is
// long-lived but rotates on every refresh; the access token it mints lives
// 15 minutes. Token fields are written only by the token manager under the
// per-account refresh lock; lease and health fields only by the pool under
// the pool lock. Accounts live for the whole process, they are never
// destroyed at runtime.
type Account struct {
	Email        string
	RefreshToken string

	AccessToken  string
	TokenExpires time.Time

	InUse      bool
	ErrorCount int
	LastError  string
}

// TokenValid reports whether the cached access token can still be presented
// upstream. Tokens are considered stale once within the refresh margin of
// expiry, so an in-flight request never rides a token that dies mid-stream.
func (a *Account) TokenValid(now time.Time) bool {
	return a.AccessToken != "" && now.Before(a.TokenExpires.Add(-common.TokenRefreshMargin))
}

// Healthy reports whether the account is eligible for normal rotation.
func (a *Account) Healthy() bool {
	return a.ErrorCount < common.UnhealthyErrorThreshold
}
