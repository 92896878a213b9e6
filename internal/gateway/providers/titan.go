package providers

import (
	"context"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/strayline/llm-gateway/internal/gateway/registry"
)

// TitanAdapter speaks the Titan single-prompt format. The family has no
// streaming variant.
type TitanAdapter struct {
	runtimeClient
}

type titanTextGenerationConfig struct {
	MaxTokenCount int     `json:"maxTokenCount"`
	Temperature   float32 `json:"temperature"`
	TopP          float32 `json:"topP"`
}

type titanRequest struct {
	InputText            string                    `json:"inputText"`
	TextGenerationConfig titanTextGenerationConfig `json:"textGenerationConfig"`
}

// NewTitanAdapter creates an adapter for Titan-family models.
func NewTitanAdapter(endpoint, apiKey string) *TitanAdapter {
	return &TitanAdapter{runtimeClient: newRuntimeClient(endpoint, apiKey)}
}

func (a *TitanAdapter) Family() registry.Family {
	return registry.FamilyTitan
}

// convertRequest converts to Titan format
func (a *TitanAdapter) convertRequest(req ChatRequest) titanRequest {
	return titanRequest{
		InputText: flattenPrompt(req.Messages),
		TextGenerationConfig: titanTextGenerationConfig{
			MaxTokenCount: req.MaxTokens,
			Temperature:   req.Temperature,
			TopP:          0.9,
		},
	}
}

// Invoke makes a non-streaming model invocation.
func (a *TitanAdapter) Invoke(ctx context.Context, backendID string, req ChatRequest) (*CompletionResult, error) {
	payload := a.convertRequest(req)

	raw, err := a.invoke(ctx, backendID, payload)
	if err != nil {
		return nil, err
	}

	result := gjson.GetBytes(raw, "results.0")
	outputText := result.Get("outputText")
	if !outputText.Exists() {
		return nil, ErrMalformedResponse
	}

	// Titan reports a single tokenCount when it reports anything at all.
	// Without it, fall back to a words-based estimate on both sides.
	var inputTokens, outputTokens int
	if tc := result.Get("tokenCount"); tc.Exists() {
		inputTokens = int(tc.Int())
		outputTokens = int(tc.Int())
	} else {
		inputTokens = estimateTokens(payload.InputText)
		outputTokens = estimateTokens(outputText.String())
	}

	return &CompletionResult{
		Content:      outputText.String(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// InvokeStream always fails: Titan models do not stream.
func (a *TitanAdapter) InvokeStream(ctx context.Context, backendID string, req ChatRequest) (Stream, error) {
	return nil, ErrStreamingUnsupported
}

// flattenPrompt renders a chat transcript as Titan's single prompt string.
// System content leads, turns become "User:"/"Assistant:" lines, and a
// trailing "Assistant:" cues the model to answer.
func flattenPrompt(msgs []Message) string {
	turns, system := partitionMessages(msgs)

	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	for _, m := range turns {
		switch m.Role {
		case "assistant":
			b.WriteString("Assistant: ")
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

// estimateTokens approximates a token count as round(words * 1.3). It is
// a best-effort stand-in for counts the model did not report.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Round(float64(words) * 1.3))
}
