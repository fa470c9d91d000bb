package relay

import (
	"encoding/json"
	"strings"

	"github.com/hhdaadws/atxp2api/dto"
)

// NormalizeModel maps bare model ids onto the upstream's namespaced form. An
// id that already carries a namespace passes through untouched; unknown
// families stay bare and let the upstream reject them.
func NormalizeModel(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	if strings.HasPrefix(model, "claude-") {
		return "anthropic/" + model
	}
	if strings.HasPrefix(model, "gemini-") {
		return "google/" + model
	}
	return model
}

// FlattenMessages folds an OpenAI message transcript into the single prompt
// string the upstream chat call accepts. System and assistant turns are
// role-tagged; user turns go in bare.
func FlattenMessages(messages []dto.Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		content := messageText(msg.Content)
		switch msg.Role {
		case "system":
			parts = append(parts, "[System] "+content)
		case "assistant":
			parts = append(parts, "[Assistant] "+content)
		default:
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// messageText handles both content shapes: a plain string or an array of
// typed parts, of which only text parts survive.
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}
