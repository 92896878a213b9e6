package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var sampleRequest = ChatRequest{
	Messages: []Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "Say hi"},
	},
	MaxTokens:   1024,
	Temperature: 0.7,
}

// captureRuntime records the last request the adapter sent and plays back a
// canned response.
type captureRuntime struct {
	t          *testing.T
	status     int
	body       string
	lastPath   string
	lastAuth   string
	lastBody   []byte
	hits       int
	contentTyp string
}

func (c *captureRuntime) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.hits++
		c.lastPath = r.URL.Path
		c.lastAuth = r.Header.Get("Authorization")
		c.contentTyp = r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		require.NoError(c.t, err)
		c.lastBody = body

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(c.status)
		_, _ = w.Write([]byte(c.body))
	}
}

func TestAnthropicConvertRequest(t *testing.T) {
	a := NewAnthropicAdapter("http://runtime.local", "")
	out := a.convertRequest(sampleRequest)

	assert.Equal(t, "bedrock-2023-05-31", out.AnthropicVersion)
	assert.Equal(t, 1024, out.MaxTokens)
	assert.InDelta(t, 0.7, out.Temperature, 1e-6)
	assert.Equal(t, "You are a helpful assistant.", out.System)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, anthropicMessage{Role: "user", Content: "Say hi"}, out.Messages[0])
}

func TestAnthropicInvoke(t *testing.T) {
	rt := &captureRuntime{
		t:      t,
		status: http.StatusOK,
		body:   `{"content":[{"type":"text","text":"Hi"}],"usage":{"input_tokens":10,"output_tokens":2}}`,
	}
	srv := httptest.NewServer(rt.handler())
	defer srv.Close()

	a := NewAnthropicAdapter(srv.URL, "rt-secret")
	res, err := a.Invoke(context.Background(), "anthropic.claude-3-haiku-20240307-v1:0", sampleRequest)
	require.NoError(t, err)

	assert.Equal(t, "Hi", res.Content)
	assert.Equal(t, 10, res.InputTokens)
	assert.Equal(t, 2, res.OutputTokens)

	assert.Equal(t, "/model/anthropic.claude-3-haiku-20240307-v1:0/invoke", rt.lastPath)
	assert.Equal(t, "Bearer rt-secret", rt.lastAuth)
	assert.Equal(t, "application/json", rt.contentTyp)

	sent := gjson.ParseBytes(rt.lastBody)
	assert.Equal(t, "bedrock-2023-05-31", sent.Get("anthropic_version").String())
	assert.Equal(t, "You are a helpful assistant.", sent.Get("system").String())
	assert.Equal(t, "Say hi", sent.Get("messages.0.content").String())
	assert.EqualValues(t, 1024, sent.Get("max_tokens").Int())
}

func TestAnthropicInvokeBackendError(t *testing.T) {
	rt := &captureRuntime{
		t:      t,
		status: http.StatusTooManyRequests,
		body:   `{"__type":"com.amazon.coral.service#ThrottlingException","message":"Too many requests"}`,
	}
	srv := httptest.NewServer(rt.handler())
	defer srv.Close()

	a := NewAnthropicAdapter(srv.URL, "")
	_, err := a.Invoke(context.Background(), "anthropic.claude-3-haiku-20240307-v1:0", sampleRequest)
	require.Error(t, err)

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusTooManyRequests, be.StatusCode)
	assert.Equal(t, "ThrottlingException", be.Code)
	assert.Equal(t, "Too many requests", be.Message)
}

func TestAnthropicInvokeMalformedResponse(t *testing.T) {
	cases := []string{
		`{}`,
		`{"content":[]}`,
		`{"content":[{"text":"Hi"}]}`,
		`{"usage":{"input_tokens":1,"output_tokens":1}}`,
	}
	for _, body := range cases {
		rt := &captureRuntime{t: t, status: http.StatusOK, body: body}
		srv := httptest.NewServer(rt.handler())

		a := NewAnthropicAdapter(srv.URL, "")
		_, err := a.Invoke(context.Background(), "anthropic.claude-3-haiku-20240307-v1:0", sampleRequest)
		assert.ErrorIs(t, err, ErrMalformedResponse, "body %s", body)

		srv.Close()
	}
}

func TestAnthropicInvokeStream(t *testing.T) {
	script := "event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":7}}}\n\n" +
		"data: {\"type\":\"content_block_start\",\"content_block\":{\"type\":\"text\"}}\n\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n" +
		"data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":4}}\n\n" +
		"data: {\"type\":\"message_stop\"}\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/model/anthropic.claude-3-haiku-20240307-v1:0/invoke-with-response-stream", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(script))
	}))
	defer srv.Close()

	a := NewAnthropicAdapter(srv.URL, "")
	stream, err := a.InvokeStream(context.Background(), "anthropic.claude-3-haiku-20240307-v1:0", sampleRequest)
	require.NoError(t, err)
	defer stream.Close()

	events := drainStream(t, stream)
	require.Len(t, events, 5)

	assert.Equal(t, EventMessageStart, events[0].Kind)
	assert.Equal(t, 7, events[0].InputTokens)
	assert.Equal(t, EventContentDelta, events[1].Kind)
	assert.Equal(t, "Hel", events[1].ContentDelta)
	assert.Equal(t, "lo", events[2].ContentDelta)
	assert.Equal(t, EventMessageDelta, events[3].Kind)
	assert.Equal(t, 4, events[3].OutputTokens)
	assert.Equal(t, EventMessageStop, events[4].Kind)
}

func TestAnthropicInvokeStreamBackendError(t *testing.T) {
	rt := &captureRuntime{
		t:      t,
		status: http.StatusInternalServerError,
		body:   `{"__type":"ModelErrorException","message":"boom"}`,
	}
	srv := httptest.NewServer(rt.handler())
	defer srv.Close()

	a := NewAnthropicAdapter(srv.URL, "")
	_, err := a.InvokeStream(context.Background(), "anthropic.claude-3-haiku-20240307-v1:0", sampleRequest)

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "ModelErrorException", be.Code)
}

// drainStream collects events until EOF, failing the test on any other
// error.
func drainStream(t *testing.T, s Stream) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	for {
		ev, err := s.Recv()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}
