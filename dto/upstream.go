package dto

import "github.com/tidwall/gjson"

// PoolStatus is the /status payload.
type PoolStatus struct {
	Total     int             `json:"total"`
	Available int             `json:"available"`
	Accounts  []AccountStatus `json:"accounts"`
}

type AccountStatus struct {
	Identity string `json:"identity"`
	Errors   int    `json:"errors"`
	Leased   bool   `json:"leased"`
	HasToken bool   `json:"has_token"`
}

// StreamEventKind classifies upstream SSE payloads at the parsing boundary so
// the rest of the pipeline never touches untyped maps.
type StreamEventKind int

const (
	StreamEventUnknown StreamEventKind = iota
	StreamEventDelta
	StreamEventError
	StreamEventDone
)

type StreamEvent struct {
	Kind StreamEventKind
	// Text is the delta content for StreamEventDelta, or the upstream error
	// text for StreamEventError.
	Text string
}

// ParseStreamEvent classifies one decoded `data:` payload. The upstream
// (LibreChat agents) emits message deltas shaped
// {"event":"on_message_delta","data":{"delta":{"content":[{"type":"text","text":"..."}]}}}
// plus loosely-shaped error events carrying an "error" field.
func ParseStreamEvent(payload string) StreamEvent {
	if payload == "[DONE]" {
		return StreamEvent{Kind: StreamEventDone}
	}
	if !gjson.Valid(payload) {
		return StreamEvent{Kind: StreamEventUnknown}
	}
	if gjson.Get(payload, "event").String() == "on_message_delta" {
		var text string
		gjson.Get(payload, "data.delta.content").ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				text = part.Get("text").String()
				return false
			}
			return true
		})
		if text != "" {
			return StreamEvent{Kind: StreamEventDelta, Text: text}
		}
		return StreamEvent{Kind: StreamEventUnknown}
	}
	if e := gjson.Get(payload, "error"); e.Exists() && e.Type != gjson.Null && e.Type != gjson.False {
		text := gjson.Get(payload, "text").String()
		if text == "" {
			text = payload
		}
		return StreamEvent{Kind: StreamEventError, Text: text}
	}
	return StreamEvent{Kind: StreamEventUnknown}
}
