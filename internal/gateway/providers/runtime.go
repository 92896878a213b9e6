package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// runtimeClient is the HTTP plumbing shared by all adapters. Every family
// is served by the same runtime behind two routes per model:
//
//	POST {endpoint}/model/{backendID}/invoke
//	POST {endpoint}/model/{backendID}/invoke-with-response-stream
//
// The streaming route answers with SSE "data: {...}" lines.
type runtimeClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func newRuntimeClient(endpoint, apiKey string) runtimeClient {
	return runtimeClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (rc runtimeClient) newRequest(ctx context.Context, url string, payload interface{}) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if rc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+rc.apiKey)
	}
	return req, nil
}

// invoke POSTs payload to the model's invoke route and returns the raw
// 200 body. Non-2xx answers come back as *BackendError.
func (rc runtimeClient) invoke(ctx context.Context, backendID string, payload interface{}) ([]byte, error) {
	url := fmt.Sprintf("%s/model/%s/invoke", rc.endpoint, backendID)
	req, err := rc.newRequest(ctx, url, payload)
	if err != nil {
		return nil, err
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runtime request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read runtime response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseBackendError(resp.StatusCode, raw)
	}
	return raw, nil
}

// invokeStream POSTs payload to the streaming route and hands the response
// body to the caller, who owns closing it.
func (rc runtimeClient) invokeStream(ctx context.Context, backendID string, payload interface{}) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/model/%s/invoke-with-response-stream", rc.endpoint, backendID)
	req, err := rc.newRequest(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runtime request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, parseBackendError(resp.StatusCode, raw)
	}
	return resp.Body, nil
}

// nextSSEData reads lines until the next "data: " payload, skipping event
// names, comments and blank keepalives.
func nextSSEData(r *bufio.Reader) (string, error) {
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "data: ") {
			return strings.TrimPrefix(trimmed, "data: "), nil
		}
		if err != nil {
			return "", err
		}
	}
}
