package relay

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hhdaadws/atxp2api/common"
	"github.com/hhdaadws/atxp2api/dto"
	"github.com/hhdaadws/atxp2api/logger"
	"github.com/hhdaadws/atxp2api/types"
)

// initPayloadTemplate is the LibreChat ephemeral-agent conversation-start
// body. Per-request fields (text, model, spec, messageId, clientTimestamp)
// are injected with sjson.
const initPayloadTemplate = `{
  "text": "",
  "sender": "User",
  "clientTimestamp": "",
  "isCreatedByUser": true,
  "parentMessageId": "00000000-0000-0000-0000-000000000000",
  "messageId": "",
  "error": false,
  "endpoint": "ATXP",
  "endpointType": "custom",
  "model": "",
  "modelLabel": null,
  "spec": "",
  "key": "never",
  "isTemporary": true,
  "isRegenerate": false,
  "isContinued": false,
  "conversationId": null,
  "ephemeralAgent": {
    "mcp": ["sys__clear__sys"],
    "web_search": false,
    "file_search": false,
    "execute_code": false,
    "artifacts": false
  }
}`

// ChatCompletions serves one POST /v1/chat/completions request end to end:
// lease, token, phase 1 (initiate, with retry on concurrency limits), phase 2
// (open stream) and translation. A non-nil return means no bytes were written
// to the client yet and the controller renders the error body.
func (r *Relay) ChatCompletions(c *gin.Context, req *dto.ChatCompletionRequest) *types.APIError {
	ctx := c.Request.Context()

	session := &Session{
		Model:         req.Model,
		UpstreamModel: NormalizeModel(req.Model),
		ResponseId:    common.GenCompletionId(),
	}
	text := FlattenMessages(req.Messages)

	acc := r.pool.Acquire()
	if acc == nil {
		return types.NewPoolExhaustedError()
	}
	session.Account = acc

	token, err := r.tokens.EnsureToken(ctx, acc)
	if err != nil {
		apiErr := toAPIError(err)
		r.releaseOnError(acc, apiErr)
		return apiErr
	}

	convId, apiErr := r.initiateConversation(c, token, text, session)
	if apiErr != nil {
		r.releaseOnError(acc, apiErr)
		return apiErr
	}
	session.ConversationId = convId
	logger.LogInfo(ctx, "[%s] chat started: conv=%s model=%s",
		acc.Email, common.TruncateString(convId, 12), session.UpstreamModel)

	upstream, apiErr := r.openStream(c, token, convId)
	if apiErr != nil {
		r.releaseOnError(acc, apiErr)
		return apiErr
	}

	// From here on the translator owns the lease.
	if req.Stream {
		r.streamResponse(c, upstream, session)
	} else {
		r.collectResponse(c, upstream, session)
	}
	return nil
}

// initiateConversation performs phase 1. Concurrency-limit responses (429)
// are retried with exponential backoff; an SSE body where JSON was expected
// is inspected for inline error payloads.
func (r *Relay) initiateConversation(c *gin.Context, token, text string, session *Session) (string, *types.APIError) {
	ctx := c.Request.Context()
	payload := r.buildInitPayload(text, session.UpstreamModel)

	for attempt := 0; attempt < common.InitMaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			r.baseURL+"/api/agents/chat/ATXP", strings.NewReader(payload))
		if err != nil {
			return "", types.NewUpstreamError("chat init error: %s", err.Error())
		}
		r.setUpstreamHeaders(req, token, true)

		resp, err := r.initClient.Do(req)
		if err != nil {
			return "", types.NewUpstreamError("chat init error: %s", err.Error())
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			logger.LogWarn(ctx, "[%s] concurrency limit (attempt %d/%d): %s",
				session.Account.Email, attempt+1, common.InitMaxRetries, common.TruncateString(string(body), 100))
			if attempt < common.InitMaxRetries-1 {
				r.sleep(time.Duration(1<<attempt) * time.Second)
				continue
			}
			return "", types.NewRateLimitedError()
		}

		if resp.StatusCode != http.StatusOK {
			return "", types.NewUpstreamError("chat init failed [%d]: %s",
				resp.StatusCode, common.TruncateString(string(body), 200))
		}

		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			convId := gjson.GetBytes(body, "conversationId").String()
			if convId == "" {
				return "", types.NewUpstreamError("no conversationId in response")
			}
			return convId, nil
		}

		// An event-stream body on the initiate call carries an inline error.
		return "", r.classifyInitStream(string(body), session.Model)
	}
	return "", types.NewRateLimitedError()
}

// classifyInitStream inspects the inline SSE payloads of a failed initiate
// call. A recognized "Invalid model spec" marker is the caller's fault and
// must not penalize the account.
func (r *Relay) classifyInitStream(body, model string) *types.APIError {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(line[5:])
		if !gjson.Valid(payload) {
			continue
		}
		if gjson.Get(payload, "text").String() == "Invalid model spec" {
			return types.NewInvalidModelError(model)
		}
		if ev := dto.ParseStreamEvent(payload); ev.Kind == dto.StreamEventError {
			return types.NewUpstreamError("upstream error: %s", common.TruncateString(ev.Text, 200))
		}
	}
	return types.NewError(types.ErrorCodeUnexpectedResponse, http.StatusBadGateway,
		"unexpected response format: %s", common.TruncateString(body, 200))
}

// openStream performs phase 2: the long-lived read connection for the
// conversation's generation deltas.
func (r *Relay) openStream(c *gin.Context, token, convId string) (*http.Response, *types.APIError) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet,
		r.baseURL+"/api/agents/chat/stream/"+convId, nil)
	if err != nil {
		return nil, types.NewUpstreamError("stream error: %s", err.Error())
	}
	r.setUpstreamHeaders(req, token, false)

	resp, err := r.streamClient.Do(req)
	if err != nil {
		return nil, types.NewUpstreamError("stream error: %s", err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, types.NewUpstreamError("stream failed [%d]: %s",
			resp.StatusCode, common.TruncateString(string(body), 200))
	}
	return resp, nil
}

func (r *Relay) buildInitPayload(text, upstreamModel string) string {
	payload := initPayloadTemplate
	payload, _ = sjson.Set(payload, "text", text)
	payload, _ = sjson.Set(payload, "model", upstreamModel)
	payload, _ = sjson.Set(payload, "spec", upstreamModel)
	payload, _ = sjson.Set(payload, "messageId", uuid.NewString())
	payload, _ = sjson.Set(payload, "clientTimestamp", time.Now().Format("2006-01-02T15:04:05"))
	return payload
}

// setUpstreamHeaders applies the browser profile the upstream expects.
// Content-Type is only sent on the initiate POST.
func (r *Relay) setUpstreamHeaders(req *http.Request, token string, withBody bool) {
	req.Header.Set("Authorization", "Bearer "+token)
	if withBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Origin", r.baseURL)
	req.Header.Set("Referer", r.baseURL+"/c/new")
	req.Header.Set("User-Agent", common.UserAgent)
}
