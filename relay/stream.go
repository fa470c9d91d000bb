package relay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hhdaadws/atxp2api/dto"
	"github.com/hhdaadws/atxp2api/logger"
)

const doneMarker = "data: [DONE]\n\n"

// splitEvent is a bufio.SplitFunc delimiting SSE events on blank lines.
// Partial events spanning read boundaries stay in the scanner's buffer until
// the terminating blank line arrives.
func splitEvent(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func newEventScanner(body io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitEvent)
	return scanner
}

// eventPayloads extracts the data: payloads from one blank-line-terminated
// event block.
func eventPayloads(block string) []string {
	var payloads []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data:") {
			payloads = append(payloads, strings.TrimSpace(line[5:]))
		}
	}
	return payloads
}

// streamResponse forwards upstream deltas as OpenAI chunks. The translator
// owns exactly-once release of the lease: normal completion, upstream close
// without a [DONE] marker and client disconnect all end in a clean release.
// The served protocol has no mid-stream error shape clients handle, so a
// dropped upstream always degrades to a synthetic finish.
func (r *Relay) streamResponse(c *gin.Context, upstream *http.Response, session *Session) {
	defer upstream.Body.Close()

	var once sync.Once
	release := func() {
		once.Do(func() { r.pool.Release(session.Account, "") })
	}
	defer release()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	if err := writeChunk(c, session.roleChunk()); err != nil {
		return
	}

	scanner := newEventScanner(upstream.Body)
	for scanner.Scan() {
		for _, payload := range eventPayloads(scanner.Text()) {
			ev := dto.ParseStreamEvent(payload)
			switch ev.Kind {
			case dto.StreamEventDone:
				finishStream(c, session)
				return
			case dto.StreamEventDelta:
				if err := writeChunk(c, session.contentChunk(ev.Text)); err != nil {
					// Client went away; stop forwarding, lease still returns.
					return
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.LogError(c.Request.Context(), "[%s] stream transport error: %v", session.Account.Email, err)
	}
	// Upstream closed without [DONE]; the client still gets a completion.
	finishStream(c, session)
}

// collectResponse accumulates all deltas into one buffered completion.
func (r *Relay) collectResponse(c *gin.Context, upstream *http.Response, session *Session) {
	defer upstream.Body.Close()
	defer r.pool.Release(session.Account, "")

	var content strings.Builder
	scanner := newEventScanner(upstream.Body)
	for scanner.Scan() {
		for _, payload := range eventPayloads(scanner.Text()) {
			if ev := dto.ParseStreamEvent(payload); ev.Kind == dto.StreamEventDelta {
				content.WriteString(ev.Text)
			}
		}
	}

	c.JSON(http.StatusOK, dto.ChatCompletion{
		Id:      session.ResponseId,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   session.Model,
		Choices: []dto.CompletionChoice{{
			Message:      dto.CompletionMessage{Role: "assistant", Content: content.String()},
			FinishReason: "stop",
		}},
	})
}

func finishStream(c *gin.Context, session *Session) {
	if err := writeChunk(c, session.finishChunk()); err != nil {
		return
	}
	_, _ = io.WriteString(c.Writer, doneMarker)
	c.Writer.Flush()
}

func writeChunk(c *gin.Context, chunk dto.ChatCompletionChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

func (s *Session) roleChunk() dto.ChatCompletionChunk {
	return s.chunk(dto.ChunkDelta{Role: "assistant"}, nil)
}

func (s *Session) contentChunk(text string) dto.ChatCompletionChunk {
	return s.chunk(dto.ChunkDelta{Content: text}, nil)
}

func (s *Session) finishChunk() dto.ChatCompletionChunk {
	stop := "stop"
	return s.chunk(dto.ChunkDelta{}, &stop)
}

func (s *Session) chunk(delta dto.ChunkDelta, finishReason *string) dto.ChatCompletionChunk {
	return dto.ChatCompletionChunk{
		Id:      s.ResponseId,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   s.Model,
		Choices: []dto.ChunkChoice{{Delta: delta, FinishReason: finishReason}},
	}
}
