package relay

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/hhdaadws/atxp2api/common"
	"github.com/hhdaadws/atxp2api/dto"
	"github.com/hhdaadws/atxp2api/types"
)

// ListModels fetches the upstream model catalog with a briefly leased
// account. The ATXP endpoint only serves the anthropic family, so only that
// namespace is exposed.
func (r *Relay) ListModels(ctx context.Context) ([]dto.ModelInfo, *types.APIError) {
	acc := r.pool.Acquire()
	if acc == nil {
		return nil, types.NewPoolExhaustedError()
	}

	token, err := r.tokens.EnsureToken(ctx, acc)
	if err != nil {
		apiErr := toAPIError(err)
		r.releaseOnError(acc, apiErr)
		return nil, apiErr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/models", nil)
	if err != nil {
		r.pool.Release(acc, err.Error())
		return nil, types.NewUpstreamError("%s", err.Error())
	}
	r.setUpstreamHeaders(req, token, false)

	resp, err := r.initClient.Do(req)
	if err != nil {
		r.pool.Release(acc, common.TruncateString(err.Error(), 200))
		return nil, types.NewUpstreamError("%s", err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	r.pool.Release(acc, "")

	now := time.Now().Unix()
	names := lo.Map(gjson.GetBytes(body, "anthropic").Array(), func(v gjson.Result, _ int) string {
		return v.String()
	})
	return lo.Map(names, func(name string, _ int) dto.ModelInfo {
		return dto.ModelInfo{
			Id:      "anthropic/" + name,
			Object:  "model",
			Created: now,
			OwnedBy: "anthropic",
		}
	}), nil
}
