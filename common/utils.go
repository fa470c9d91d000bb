package common

import (
	"strings"

	"github.com/google/uuid"
)

// GenCompletionId builds an OpenAI-style response id (chatcmpl-xxxxxxxxxxxx).
func GenCompletionId() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// TruncateString caps upstream error bodies before they enter logs or
// client-visible messages.
func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
