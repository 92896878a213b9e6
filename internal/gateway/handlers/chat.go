package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"github.com/strayline/llm-gateway/internal/gateway/archive"
	"github.com/strayline/llm-gateway/internal/gateway/httperr"
	"github.com/strayline/llm-gateway/internal/gateway/metrics"
	"github.com/strayline/llm-gateway/internal/gateway/providers"
	"github.com/strayline/llm-gateway/internal/gateway/registry"
	"github.com/strayline/llm-gateway/internal/gateway/usage"
	"github.com/strayline/llm-gateway/internal/shared/models"
)

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
)

type ChatHandler struct {
	registry     *registry.Registry
	dispatcher   *providers.Dispatcher
	tracker      *usage.Tracker
	archiver     *archive.Archiver
	defaultModel string
}

func NewChatHandler(reg *registry.Registry, dispatcher *providers.Dispatcher, tracker *usage.Tracker, archiver *archive.Archiver, defaultModel string) *ChatHandler {
	return &ChatHandler{
		registry:     reg,
		dispatcher:   dispatcher,
		tracker:      tracker,
		archiver:     archiver,
		defaultModel: defaultModel,
	}
}

// chatCompletionRequest is the inbound body. Pointer fields distinguish a
// missing field from a zero value.
type chatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []inboundMessage `json:"messages"`
	MaxTokens   *int             `json:"max_tokens"`
	Temperature *float32         `json:"temperature"`
	Stream      bool             `json:"stream"`
}

type inboundMessage struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

type gatewayMetadata struct {
	TeamID    string  `json:"team_id"`
	LatencyMs int64   `json:"latency_ms"`
	CostUSD   float64 `json:"cost_usd"`
	Provider  string  `json:"provider"`
}

type chatCompletionResponse struct {
	ID              string                        `json:"id"`
	Object          string                        `json:"object"`
	Created         int64                         `json:"created"`
	Model           string                        `json:"model"`
	Choices         []openai.ChatCompletionChoice `json:"choices"`
	Usage           openai.Usage                  `json:"usage"`
	GatewayMetadata gatewayMetadata               `json:"gateway_metadata"`
}

// HandleChatCompletion handles POST /v1/chat and /v1/chat/completions.
func (h *ChatHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	team, ok := TeamFromContext(r.Context())
	if !ok {
		httperr.Write(w, httperr.AuthInvalid("Missing API key. Include x-api-key header."))
		return
	}

	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, httperr.Validation("Invalid request body."))
		return
	}

	normalized, modelName, verr := h.validate(req)
	if verr != nil {
		httperr.Write(w, verr)
		return
	}

	model, ok := h.registry.Resolve(modelName)
	if !ok {
		httperr.Write(w, httperr.UnknownModel(modelName))
		return
	}

	if req.Stream && !model.SupportsStreaming {
		httperr.Write(w, httperr.Validation("Model %s does not support streaming", modelName))
		return
	}

	adapter, err := h.dispatcher.AdapterFor(model.Family)
	if err != nil {
		log.WithError(err).WithField("model", model.Name).Error("no adapter registered for model family")
		httperr.Write(w, httperr.Internal())
		return
	}

	if req.Stream {
		h.streamCompletion(w, r, team, model, modelName, adapter, normalized)
		return
	}

	start := time.Now()
	result, err := adapter.Invoke(r.Context(), model.BackendID, normalized)
	if err != nil {
		h.writeInvokeError(w, modelName, err)
		return
	}
	latency := time.Since(start)

	cost := model.Cost(result.InputTokens, result.OutputTokens)
	h.settle(r.Context(), team, model, modelName, result.InputTokens, result.OutputTokens, cost, latency, result.Content)

	resp := chatCompletionResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   modelName,
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    "assistant",
					Content: result.Content,
				},
				FinishReason: "stop",
			},
		},
		Usage: openai.Usage{
			PromptTokens:     result.InputTokens,
			CompletionTokens: result.OutputTokens,
			TotalTokens:      result.InputTokens + result.OutputTokens,
		},
		GatewayMetadata: gatewayMetadata{
			TeamID:    team.TeamID,
			LatencyMs: latency.Milliseconds(),
			CostUSD:   cost,
			Provider:  string(model.Family),
		},
	}

	writeJSON(w, http.StatusOK, resp)
}

// streamCompletion relays the backend stream as OpenAI-style SSE chunks.
// The first chunk carries the assistant role, the last carries the finish
// reason and usage, and the stream ends with a [DONE] sentinel.
func (h *ChatHandler) streamCompletion(w http.ResponseWriter, r *http.Request, team models.TeamIdentity, model registry.Model, modelName string, adapter providers.Adapter, req providers.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httperr.Write(w, httperr.Internal())
		return
	}

	start := time.Now()
	stream, err := adapter.InvokeStream(r.Context(), model.BackendID, req)
	if err != nil {
		h.writeInvokeError(w, modelName, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id := completionID()
	created := time.Now().Unix()
	var inputTokens, outputTokens int
	var content strings.Builder

	emit := func(chunk openai.ChatCompletionStreamResponse) {
		data, err := json.Marshal(chunk)
		if err != nil {
			log.WithError(err).Error("marshal stream chunk failed")
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	baseChunk := func() openai.ChatCompletionStreamResponse {
		return openai.ChatCompletionStreamResponse{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   modelName,
		}
	}

	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.WithError(err).WithField("model", modelName).Error("stream aborted")
			fmt.Fprintf(w, "data: %s\n\n", `{"error": {"type": "model_invocation_failed", "message": "Stream interrupted"}}`)
			flusher.Flush()
			return
		}

		switch ev.Kind {
		case providers.EventMessageStart:
			if ev.InputTokens > 0 {
				inputTokens = ev.InputTokens
			}
			chunk := baseChunk()
			chunk.Choices = []openai.ChatCompletionStreamChoice{
				{Index: 0, Delta: openai.ChatCompletionStreamChoiceDelta{Role: "assistant"}},
			}
			emit(chunk)
		case providers.EventContentDelta:
			if ev.ContentDelta == "" {
				continue
			}
			content.WriteString(ev.ContentDelta)
			chunk := baseChunk()
			chunk.Choices = []openai.ChatCompletionStreamChoice{
				{Index: 0, Delta: openai.ChatCompletionStreamChoiceDelta{Content: ev.ContentDelta}},
			}
			emit(chunk)
		case providers.EventMessageDelta:
			// Token counts only; clients see them on the final chunk.
			if ev.InputTokens > 0 {
				inputTokens = ev.InputTokens
			}
			if ev.OutputTokens > 0 {
				outputTokens = ev.OutputTokens
			}
		case providers.EventMessageStop:
			chunk := baseChunk()
			chunk.Choices = []openai.ChatCompletionStreamChoice{
				{Index: 0, Delta: openai.ChatCompletionStreamChoiceDelta{}, FinishReason: "stop"},
			}
			chunk.Usage = &openai.Usage{
				PromptTokens:     inputTokens,
				CompletionTokens: outputTokens,
				TotalTokens:      inputTokens + outputTokens,
			}
			emit(chunk)
		}
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()

	cost := model.Cost(inputTokens, outputTokens)
	h.settle(r.Context(), team, model, modelName, inputTokens, outputTokens, cost, time.Since(start), content.String())
}

// settle records usage, bumps metrics and archives the exchange once a
// completion has been delivered. Recording is fire-and-forget: a failure
// never surfaces to the client.
func (h *ChatHandler) settle(ctx context.Context, team models.TeamIdentity, model registry.Model, modelName string, inputTokens, outputTokens int, cost float64, latency time.Duration, content string) {
	go h.tracker.Record(context.Background(), team.TeamID, modelName, inputTokens, outputTokens, cost)

	metrics.TokensTotal.WithLabelValues(string(model.Family), "input").Add(float64(inputTokens))
	metrics.TokensTotal.WithLabelValues(string(model.Family), "output").Add(float64(outputTokens))
	metrics.CostUSDTotal.WithLabelValues(model.Name).Add(cost)

	if h.archiver == nil {
		return
	}
	response, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return
	}
	h.archiver.StoreAsync(archive.Record{
		RequestID:    RequestIDFromContext(ctx),
		TeamID:       team.TeamID,
		Model:        modelName,
		Provider:     string(model.Family),
		LatencyMs:    latency.Milliseconds(),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Response:     response,
		CreatedAt:    time.Now().UTC(),
	})
}

// validate normalizes the inbound body, applying defaults and rejecting
// malformed messages with the exact client-facing wording.
func (h *ChatHandler) validate(req chatCompletionRequest) (providers.ChatRequest, string, *httperr.Error) {
	var out providers.ChatRequest

	if len(req.Messages) == 0 {
		return out, "", httperr.Validation("Messages array is required.")
	}

	out.Messages = make([]providers.Message, 0, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role == nil {
			return out, "", httperr.Validation("Message at index %d missing required field: role", i)
		}
		switch *m.Role {
		case "system", "user", "assistant":
		default:
			return out, "", httperr.Validation("Invalid role at index %d: %s", i, *m.Role)
		}
		if m.Content == nil {
			return out, "", httperr.Validation("Message at index %d missing required field: content", i)
		}
		out.Messages = append(out.Messages, providers.Message{Role: *m.Role, Content: *m.Content})
	}

	out.MaxTokens = defaultMaxTokens
	if req.MaxTokens != nil {
		if *req.MaxTokens <= 0 {
			return out, "", httperr.Validation("max_tokens must be a positive integer")
		}
		out.MaxTokens = *req.MaxTokens
	}

	out.Temperature = defaultTemperature
	if req.Temperature != nil {
		if *req.Temperature < 0 || *req.Temperature > 2 {
			return out, "", httperr.Validation("temperature must be between 0 and 2")
		}
		out.Temperature = *req.Temperature
	}

	modelName := req.Model
	if modelName == "" {
		modelName = h.defaultModel
	}
	if modelName == "" {
		return out, "", httperr.Validation("Missing required field: model")
	}

	return out, modelName, nil
}

func (h *ChatHandler) writeInvokeError(w http.ResponseWriter, modelName string, err error) {
	var be *providers.BackendError
	switch {
	case errors.As(err, &be):
		log.WithFields(log.Fields{
			"model":  modelName,
			"code":   be.Code,
			"status": be.StatusCode,
		}).Error("model invocation failed")
		httperr.Write(w, httperr.ModelInvocation(be.Code))
	case errors.Is(err, providers.ErrMalformedResponse):
		log.WithField("model", modelName).Error("unexpected provider response")
		httperr.Write(w, httperr.UnexpectedProviderResponse())
	case errors.Is(err, providers.ErrStreamingUnsupported):
		httperr.Write(w, httperr.Validation("Model %s does not support streaming", modelName))
	default:
		log.WithError(err).WithField("model", modelName).Error("model invocation failed")
		httperr.Write(w, httperr.Internal())
	}
}

// completionID mints an OpenAI-style completion id.
func completionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
