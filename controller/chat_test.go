package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhdaadws/atxp2api/dto"
	"github.com/hhdaadws/atxp2api/model"
	"github.com/hhdaadws/atxp2api/relay"
	"github.com/hhdaadws/atxp2api/service"
)

func newTestEngine(accounts []*model.Account) (*gin.Engine, *service.AccountPool) {
	gin.SetMode(gin.TestMode)
	pool := service.NewAccountPool(accounts)
	tokens := service.NewTokenManager(nil, accounts, "http://unused")
	r := relay.NewRelay(pool, tokens, "http://unused")

	engine := gin.New()
	engine.POST("/v1/chat/completions", ChatCompletions(r))
	engine.GET("/status", Status(pool))
	return engine, pool
}

func TestChatCompletionsRejectsInvalidBody(t *testing.T) {
	engine, _ := newTestEngine(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{not json"))
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid JSON body")
}

func TestChatCompletionsRejectsEmptyPrompt(t *testing.T) {
	engine, _ := newTestEngine(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"claude-opus-4-6","messages":[]}`))
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No messages")
}

func TestChatCompletionsEmptyPoolUnavailable(t *testing.T) {
	engine, _ := newTestEngine(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"model":"claude-opus-4-6","messages":[{"role":"user","content":"hi"}]}`))
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp dto.OpenAIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error.Message, "no available accounts")
}

func TestStatusEndpoint(t *testing.T) {
	accounts := []*model.Account{
		{Email: "a@example.com", RefreshToken: "rt-1"},
		{Email: "b@example.com", RefreshToken: "rt-2", ErrorCount: 5},
	}
	engine, pool := newTestEngine(accounts)
	leased := pool.Acquire()
	require.NotNil(t, leased)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status dto.PoolStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 1, status.Available)
	require.Len(t, status.Accounts, 2)
	assert.Equal(t, "a@example.com", status.Accounts[0].Identity)
	assert.True(t, status.Accounts[0].Leased)
	assert.Equal(t, 5, status.Accounts[1].Errors)
}
