package providers

import (
	"bufio"
	"context"
	"io"

	"github.com/tidwall/gjson"

	"github.com/strayline/llm-gateway/internal/gateway/registry"
)

// AnthropicAdapter speaks the Anthropic messages format.
type AnthropicAdapter struct {
	runtimeClient
}

// anthropicRequest is the wire request for Anthropic-family models. System
// content travels top-level, never as a message turn.
type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float32            `json:"temperature"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewAnthropicAdapter creates an adapter for Anthropic-family models.
func NewAnthropicAdapter(endpoint, apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{runtimeClient: newRuntimeClient(endpoint, apiKey)}
}

func (a *AnthropicAdapter) Family() registry.Family {
	return registry.FamilyAnthropic
}

// convertRequest converts to Anthropic format
func (a *AnthropicAdapter) convertRequest(req ChatRequest) anthropicRequest {
	turns, system := partitionMessages(req.Messages)

	out := anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		System:           system,
		Messages:         make([]anthropicMessage, 0, len(turns)),
	}
	for _, m := range turns {
		out.Messages = append(out.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Invoke makes a non-streaming model invocation.
func (a *AnthropicAdapter) Invoke(ctx context.Context, backendID string, req ChatRequest) (*CompletionResult, error) {
	raw, err := a.invoke(ctx, backendID, a.convertRequest(req))
	if err != nil {
		return nil, err
	}

	content := gjson.GetBytes(raw, "content.0.text")
	usage := gjson.GetBytes(raw, "usage")
	if !content.Exists() || !usage.Exists() {
		return nil, ErrMalformedResponse
	}

	return &CompletionResult{
		Content:      content.String(),
		InputTokens:  int(usage.Get("input_tokens").Int()),
		OutputTokens: int(usage.Get("output_tokens").Int()),
	}, nil
}

// InvokeStream makes a streaming model invocation.
func (a *AnthropicAdapter) InvokeStream(ctx context.Context, backendID string, req ChatRequest) (Stream, error) {
	body, err := a.invokeStream(ctx, backendID, a.convertRequest(req))
	if err != nil {
		return nil, err
	}
	return &anthropicStream{body: body, reader: bufio.NewReader(body)}, nil
}

// anthropicStream normalizes Anthropic streaming events. The family's
// event types map one-to-one onto the normalized kinds; content_block_start,
// ping and similar framing events are dropped.
type anthropicStream struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	stopped bool
}

func (s *anthropicStream) Recv() (StreamEvent, error) {
	if s.stopped {
		return StreamEvent{}, io.EOF
	}
	for {
		data, err := nextSSEData(s.reader)
		if err != nil {
			return StreamEvent{}, err
		}

		evt := gjson.Parse(data)
		switch evt.Get("type").String() {
		case "message_start":
			return StreamEvent{
				Kind:        EventMessageStart,
				InputTokens: int(evt.Get("message.usage.input_tokens").Int()),
			}, nil
		case "content_block_delta":
			return StreamEvent{
				Kind:         EventContentDelta,
				ContentDelta: evt.Get("delta.text").String(),
			}, nil
		case "message_delta":
			return StreamEvent{
				Kind:         EventMessageDelta,
				OutputTokens: int(evt.Get("usage.output_tokens").Int()),
			}, nil
		case "message_stop":
			s.stopped = true
			return StreamEvent{Kind: EventMessageStop}, nil
		}
	}
}

func (s *anthropicStream) Close() error {
	return s.body.Close()
}
