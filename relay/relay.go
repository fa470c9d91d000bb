// Package relay drives the two-phase upstream chat flow and translates the
// upstream event stream into OpenAI chat-completion output.
package relay

import (
	"net/http"
	"time"

	"github.com/hhdaadws/atxp2api/common"
	"github.com/hhdaadws/atxp2api/model"
	"github.com/hhdaadws/atxp2api/service"
	"github.com/hhdaadws/atxp2api/types"
)

// Relay owns the upstream HTTP clients and wires the pool and token manager
// into request handling. One instance serves the whole process.
type Relay struct {
	pool    *service.AccountPool
	tokens  *service.TokenManager
	baseURL string

	initClient   *http.Client
	streamClient *http.Client

	// sleep is the backoff hook between phase-1 retries; tests stub it.
	sleep func(time.Duration)
}

func NewRelay(pool *service.AccountPool, tokens *service.TokenManager, baseURL string) *Relay {
	return &Relay{
		pool:         pool,
		tokens:       tokens,
		baseURL:      baseURL,
		initClient:   &http.Client{Timeout: common.InitTimeout},
		streamClient: &http.Client{Timeout: common.StreamTimeout},
		sleep:        time.Sleep,
	}
}

// Session is the per-request state: the leased account, the normalized model
// pair and the generated response id. It never outlives the request.
type Session struct {
	Account        *model.Account
	Model          string // id echoed back to the client
	UpstreamModel  string // namespaced id sent upstream
	ConversationId string
	ResponseId     string
}

// releaseOnError returns the lease after a terminal failure, tagging the
// release only when the failure is the account's fault.
func (r *Relay) releaseOnError(acc *model.Account, apiErr *types.APIError) {
	if apiErr.ShouldPenalize() {
		r.pool.Release(acc, common.TruncateString(apiErr.Message, 200))
	} else {
		r.pool.Release(acc, "")
	}
}

func toAPIError(err error) *types.APIError {
	if ae, ok := err.(*types.APIError); ok {
		return ae
	}
	return types.NewUpstreamError("%s", err.Error())
}
