package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStreamEvent(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantKind StreamEventKind
		wantText string
	}{
		{
			name:     "text delta",
			payload:  `{"event":"on_message_delta","data":{"delta":{"content":[{"type":"text","text":"Hel"}]}}}`,
			wantKind: StreamEventDelta,
			wantText: "Hel",
		},
		{
			name:     "delta without text parts",
			payload:  `{"event":"on_message_delta","data":{"delta":{"content":[{"type":"tool_call"}]}}}`,
			wantKind: StreamEventUnknown,
		},
		{
			name:     "terminal marker",
			payload:  "[DONE]",
			wantKind: StreamEventDone,
		},
		{
			name:     "error event",
			payload:  `{"error":true,"text":"agent crashed"}`,
			wantKind: StreamEventError,
			wantText: "agent crashed",
		},
		{
			name:     "error false is not an error",
			payload:  `{"error":false,"text":"fine"}`,
			wantKind: StreamEventUnknown,
		},
		{
			name:     "malformed json",
			payload:  `{"event":`,
			wantKind: StreamEventUnknown,
		},
		{
			name:     "unrelated event",
			payload:  `{"event":"on_run_step"}`,
			wantKind: StreamEventUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ParseStreamEvent(tt.payload)
			assert.Equal(t, tt.wantKind, ev.Kind)
			assert.Equal(t, tt.wantText, ev.Text)
		})
	}
}
