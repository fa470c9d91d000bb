package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhdaadws/atxp2api/model"
)

func writeAccountsFile(t *testing.T, records any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func newRefreshServer(t *testing.T, calls *atomic.Int32, rotateTo string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/refresh", r.URL.Path)
		require.Contains(t, r.Header.Get("Cookie"), "refreshToken=")
		calls.Add(1)
		if rotateTo != "" {
			http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: rotateTo, Path: "/"})
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"at-fresh"}`))
	}))
}

func TestEnsureTokenConcurrentSingleRefresh(t *testing.T) {
	var calls atomic.Int32
	srv := newRefreshServer(t, &calls, "")
	defer srv.Close()

	path := writeAccountsFile(t, []map[string]string{{"email": "a@example.com", "refresh_token": "rt-1"}})
	store := model.NewStore(path)
	accs, err := store.Load()
	require.NoError(t, err)
	tm := NewTokenManager(store, accs, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := tm.EnsureToken(context.Background(), accs[0])
			assert.NoError(t, err)
			assert.Equal(t, "at-fresh", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent callers must share one refresh")
}

func TestEnsureTokenRefreshesInsideMargin(t *testing.T) {
	var calls atomic.Int32
	srv := newRefreshServer(t, &calls, "")
	defer srv.Close()

	acc := &model.Account{
		Email:        "a@example.com",
		RefreshToken: "rt-1",
		AccessToken:  "at-stale",
		TokenExpires: time.Now().Add(30 * time.Second), // inside the 60s margin
	}
	store := model.NewStore(filepath.Join(t.TempDir(), "accounts.json"))
	tm := NewTokenManager(store, []*model.Account{acc}, srv.URL)

	token, err := tm.EnsureToken(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "at-fresh", token)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEnsureTokenUsesCachedToken(t *testing.T) {
	var calls atomic.Int32
	srv := newRefreshServer(t, &calls, "")
	defer srv.Close()

	acc := &model.Account{
		Email:        "a@example.com",
		RefreshToken: "rt-1",
		AccessToken:  "at-cached",
		TokenExpires: time.Now().Add(10 * time.Minute),
	}
	store := model.NewStore(filepath.Join(t.TempDir(), "accounts.json"))
	tm := NewTokenManager(store, []*model.Account{acc}, srv.URL)

	token, err := tm.EnsureToken(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, "at-cached", token)
	assert.Zero(t, calls.Load())
}

func TestRefreshPersistsRotatedToken(t *testing.T) {
	var calls atomic.Int32
	srv := newRefreshServer(t, &calls, "rt-rotated")
	defer srv.Close()

	path := writeAccountsFile(t, []map[string]string{{"email": "a@example.com", "refresh_token": "rt-old"}})
	store := model.NewStore(path)
	accs, err := store.Load()
	require.NoError(t, err)
	tm := NewTokenManager(store, accs, srv.URL)

	_, err = tm.EnsureToken(context.Background(), accs[0])
	require.NoError(t, err)
	assert.Equal(t, "rt-rotated", accs[0].RefreshToken)

	// The rotation must already be on disk.
	reloaded, err := model.NewStore(path).Load()
	require.NoError(t, err)
	require.Len(t, reloaded, 1)
	assert.Equal(t, "rt-rotated", reloaded[0].RefreshToken)
}

func TestRefreshFailureSurfacesTruncatedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"refresh token revoked"}`))
	}))
	defer srv.Close()

	acc := &model.Account{Email: "a@example.com", RefreshToken: "rt-dead"}
	store := model.NewStore(filepath.Join(t.TempDir(), "accounts.json"))
	tm := NewTokenManager(store, []*model.Account{acc}, srv.URL)

	_, err := tm.EnsureToken(context.Background(), acc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh failed")
	assert.Contains(t, err.Error(), "revoked")
}

func TestRefreshMissingTokenField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	acc := &model.Account{Email: "a@example.com", RefreshToken: "rt-1"}
	store := model.NewStore(filepath.Join(t.TempDir(), "accounts.json"))
	tm := NewTokenManager(store, []*model.Account{acc}, srv.URL)

	_, err := tm.EnsureToken(context.Background(), acc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token in response")
}
