// Package providers adapts normalized chat requests to the per-family wire
// formats of the backing model runtime and normalizes what comes back.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/strayline/llm-gateway/internal/gateway/registry"
)

// Message is a single turn of a normalized chat request.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is the normalized request handed to an adapter. Validation
// has already run: roles are known, content is present, and MaxTokens and
// Temperature carry their defaults.
type ChatRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// CompletionResult is the normalized outcome of a non-streaming invocation.
type CompletionResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// StreamEventKind tags normalized streaming events.
type StreamEventKind int

const (
	// EventMessageStart opens a stream and may carry the input token count.
	EventMessageStart StreamEventKind = iota
	// EventContentDelta carries a fragment of assistant text.
	EventContentDelta
	// EventMessageDelta updates token counts near the end of a stream.
	EventMessageDelta
	// EventMessageStop is the final event of every stream.
	EventMessageStop
)

func (k StreamEventKind) String() string {
	switch k {
	case EventMessageStart:
		return "message_start"
	case EventContentDelta:
		return "content_delta"
	case EventMessageDelta:
		return "message_delta"
	case EventMessageStop:
		return "message_stop"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// StreamEvent is one normalized streaming event. Token counts are zero on
// kinds that do not carry them.
type StreamEvent struct {
	Kind         StreamEventKind
	ContentDelta string
	InputTokens  int
	OutputTokens int
}

// Stream yields normalized events in order: one message_start, any number
// of content_delta, at most one message_delta, then exactly one
// message_stop. Recv returns io.EOF once the stop event has been delivered.
type Stream interface {
	Recv() (StreamEvent, error)
	Close() error
}

// Adapter converts normalized requests to one model family's wire format.
type Adapter interface {
	Family() registry.Family
	Invoke(ctx context.Context, backendID string, req ChatRequest) (*CompletionResult, error)
	InvokeStream(ctx context.Context, backendID string, req ChatRequest) (Stream, error)
}

// ErrStreamingUnsupported is returned by adapters whose family cannot
// stream. The router rejects these requests before dispatch, so the
// adapter returning it is a backstop.
var ErrStreamingUnsupported = errors.New("streaming is not supported for this model")

// ErrMalformedResponse is returned when the runtime answers 200 but the
// body is missing the family's required fields.
var ErrMalformedResponse = errors.New("unexpected response format from model")

// BackendError is a non-2xx answer from the model runtime.
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error %s (status %d)", e.Code, e.StatusCode)
}

// parseBackendError extracts a code and message from a runtime error body.
// Bedrock-style runtimes put the exception class in __type, sometimes
// namespaced; others nest {"error": {"code", "message"}}.
func parseBackendError(status int, body []byte) *BackendError {
	be := &BackendError{StatusCode: status, Code: "UnknownError"}

	if typ := gjson.GetBytes(body, "__type").String(); typ != "" {
		if i := strings.LastIndex(typ, "#"); i >= 0 {
			typ = typ[i+1:]
		}
		be.Code = typ
	} else if code := gjson.GetBytes(body, "error.code").String(); code != "" {
		be.Code = code
	}

	if msg := gjson.GetBytes(body, "message").String(); msg != "" {
		be.Message = msg
	} else if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		be.Message = msg
	} else {
		be.Message = http.StatusText(status)
	}
	return be
}

// partitionMessages splits a transcript into chat turns and the effective
// system prompt. When several system messages appear, the last one wins.
func partitionMessages(msgs []Message) (turns []Message, system string) {
	for _, m := range msgs {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		turns = append(turns, m)
	}
	return turns, system
}
