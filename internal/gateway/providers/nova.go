package providers

import (
	"bufio"
	"context"
	"io"

	"github.com/tidwall/gjson"

	"github.com/strayline/llm-gateway/internal/gateway/registry"
)

// NovaAdapter speaks the Nova messages format: content is a list of text
// blocks and the system prompt is a top-level list of the same shape.
type NovaAdapter struct {
	runtimeClient
}

type novaContent struct {
	Text string `json:"text"`
}

type novaMessage struct {
	Role    string        `json:"role"`
	Content []novaContent `json:"content"`
}

type novaInferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	Temperature float32 `json:"temperature"`
}

type novaRequest struct {
	Messages        []novaMessage       `json:"messages"`
	System          []novaContent       `json:"system,omitempty"`
	InferenceConfig novaInferenceConfig `json:"inferenceConfig"`
}

// NewNovaAdapter creates an adapter for Nova-family models.
func NewNovaAdapter(endpoint, apiKey string) *NovaAdapter {
	return &NovaAdapter{runtimeClient: newRuntimeClient(endpoint, apiKey)}
}

func (a *NovaAdapter) Family() registry.Family {
	return registry.FamilyNova
}

// convertRequest converts to Nova format
func (a *NovaAdapter) convertRequest(req ChatRequest) novaRequest {
	turns, system := partitionMessages(req.Messages)

	out := novaRequest{
		Messages: make([]novaMessage, 0, len(turns)),
		InferenceConfig: novaInferenceConfig{
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
		},
	}
	for _, m := range turns {
		out.Messages = append(out.Messages, novaMessage{
			Role:    m.Role,
			Content: []novaContent{{Text: m.Content}},
		})
	}
	if system != "" {
		out.System = []novaContent{{Text: system}}
	}
	return out
}

// Invoke makes a non-streaming model invocation.
func (a *NovaAdapter) Invoke(ctx context.Context, backendID string, req ChatRequest) (*CompletionResult, error) {
	raw, err := a.invoke(ctx, backendID, a.convertRequest(req))
	if err != nil {
		return nil, err
	}

	content := gjson.GetBytes(raw, "output.message.content.0.text")
	usage := gjson.GetBytes(raw, "usage")
	if !content.Exists() || !usage.Exists() {
		return nil, ErrMalformedResponse
	}

	return &CompletionResult{
		Content:      content.String(),
		InputTokens:  int(usage.Get("inputTokens").Int()),
		OutputTokens: int(usage.Get("outputTokens").Int()),
	}, nil
}

// InvokeStream makes a streaming model invocation.
func (a *NovaAdapter) InvokeStream(ctx context.Context, backendID string, req ChatRequest) (Stream, error) {
	body, err := a.invokeStream(ctx, backendID, a.convertRequest(req))
	if err != nil {
		return nil, err
	}
	return &novaStream{body: body, reader: bufio.NewReader(body)}, nil
}

// novaStream normalizes Nova streaming events. Nova sends its usage totals
// in a metadata event after messageStop, so the stop is held back until the
// metadata has been surfaced as a message_delta; every consumer then sees
// token counts before the stop, whichever family produced the stream.
type novaStream struct {
	body    io.ReadCloser
	reader  *bufio.Reader
	queued  []StreamEvent
	sawStop bool
	stopped bool
}

func (s *novaStream) Recv() (StreamEvent, error) {
	if len(s.queued) > 0 {
		ev := s.queued[0]
		s.queued = s.queued[1:]
		if ev.Kind == EventMessageStop {
			s.stopped = true
		}
		return ev, nil
	}
	if s.stopped {
		return StreamEvent{}, io.EOF
	}

	for {
		data, err := nextSSEData(s.reader)
		if err != nil {
			if s.sawStop {
				// Stream ended without trailing metadata; release the stop.
				s.stopped = true
				return StreamEvent{Kind: EventMessageStop}, nil
			}
			return StreamEvent{}, err
		}

		evt := gjson.Parse(data)
		switch {
		case evt.Get("messageStart").Exists():
			return StreamEvent{Kind: EventMessageStart}, nil
		case evt.Get("contentBlockDelta").Exists():
			return StreamEvent{
				Kind:         EventContentDelta,
				ContentDelta: evt.Get("contentBlockDelta.delta.text").String(),
			}, nil
		case evt.Get("messageStop").Exists():
			s.sawStop = true
		case evt.Get("metadata").Exists():
			delta := StreamEvent{
				Kind:         EventMessageDelta,
				InputTokens:  int(evt.Get("metadata.usage.inputTokens").Int()),
				OutputTokens: int(evt.Get("metadata.usage.outputTokens").Int()),
			}
			if s.sawStop {
				s.queued = append(s.queued, StreamEvent{Kind: EventMessageStop})
			}
			return delta, nil
		}
	}
}

func (s *novaStream) Close() error {
	return s.body.Close()
}
