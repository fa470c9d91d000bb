package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hhdaadws/atxp2api/common"
	"github.com/hhdaadws/atxp2api/logger"
	"github.com/hhdaadws/atxp2api/model"
	"github.com/hhdaadws/atxp2api/types"

	"github.com/tidwall/gjson"
)

// TokenManager refreshes short-lived access tokens from each account's
// rotating refresh token and persists observed rotations. Refreshes of
// different accounts never serialize behind each other: the lock table is
// per-account, allocated eagerly at construction and indexed by the
// account's position in the registry, so there is no window where two
// first-time callers could race a lazily-created lock.
type TokenManager struct {
	store    *model.Store
	client   *http.Client
	baseURL  string
	accounts []*model.Account
	locks    []sync.Mutex
	slot     map[*model.Account]int
}

func NewTokenManager(store *model.Store, accounts []*model.Account, baseURL string) *TokenManager {
	tm := &TokenManager{
		store:    store,
		client:   &http.Client{Timeout: common.RefreshTimeout},
		baseURL:  baseURL,
		accounts: accounts,
		locks:    make([]sync.Mutex, len(accounts)),
		slot:     make(map[*model.Account]int, len(accounts)),
	}
	for i, acc := range accounts {
		tm.slot[acc] = i
	}
	return tm
}

// EnsureToken returns a valid access token for the account, refreshing first
// when the cached one is absent or inside the refresh margin. At most one
// refresh per account is in flight at any time; validity is re-checked after
// taking the lock so concurrent callers ride a single upstream call.
func (tm *TokenManager) EnsureToken(ctx context.Context, acc *model.Account) (string, error) {
	mu := &tm.locks[tm.slot[acc]]
	mu.Lock()
	defer mu.Unlock()

	if acc.TokenValid(time.Now()) {
		return acc.AccessToken, nil
	}
	return tm.refresh(ctx, acc)
}

func (tm *TokenManager) refresh(ctx context.Context, acc *model.Account) (string, error) {
	logger.LogInfo(ctx, "[%s] refreshing access token", acc.Email)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.baseURL+"/api/auth/refresh", bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", types.NewTokenRefreshError(err.Error())
	}
	req.Header.Set("Cookie", "refreshToken="+acc.RefreshToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", common.UserAgent)

	resp, err := tm.client.Do(req)
	if err != nil {
		return "", types.NewTokenRefreshError(err.Error())
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", types.NewTokenRefreshError(
			"refresh failed [" + resp.Status + "]: " + common.TruncateString(string(body), 200))
	}

	token := gjson.GetBytes(body, "token").String()
	if token == "" {
		return "", types.NewTokenRefreshError("no token in response: " + common.TruncateString(string(body), 200))
	}

	acc.AccessToken = token
	acc.TokenExpires = time.Now().Add(common.AccessTokenTTL)

	tm.handleRotation(ctx, acc, resp.Header.Values("Set-Cookie"))
	return token, nil
}

// handleRotation persists a replacement refresh token delivered via
// Set-Cookie. The old token is already invalid upstream at this point, so the
// store rewrite must not be deferred past the return of the refresh call.
func (tm *TokenManager) handleRotation(ctx context.Context, acc *model.Account, setCookies []string) {
	for _, sc := range setCookies {
		newRT := extractRefreshToken(sc)
		if newRT == "" || newRT == acc.RefreshToken {
			continue
		}
		acc.RefreshToken = newRT
		if err := tm.store.Save(tm.accounts); err != nil {
			logger.LogError(ctx, "[%s] failed to persist rotated refreshToken: %v", acc.Email, err)
			continue
		}
		logger.LogInfo(ctx, "[%s] refreshToken rotated and saved", acc.Email)
	}
}

func extractRefreshToken(setCookie string) string {
	const marker = "refreshToken="
	i := strings.Index(setCookie, marker)
	if i < 0 {
		return ""
	}
	v := setCookie[i+len(marker):]
	if j := strings.IndexByte(v, ';'); j >= 0 {
		v = v[:j]
	}
	return v
}
