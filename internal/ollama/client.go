package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrUpstreamUnavailable wraps transport failures (refused, DNS, timeout).
	ErrUpstreamUnavailable = errors.New("ollama unreachable")
	// ErrInvalidResponse is returned when a non-streaming reply is not JSON.
	ErrInvalidResponse = errors.New("invalid response from ollama")
)

// StatusError reports a non-200 reply received before any body was relayed.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama %s returned status %d", e.Path, e.Code)
}

// GenerateRequest is the subset of fields forwarded to /api/generate.
type GenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// Client is a tiny HTTP client for talking to Ollama.
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

func New(base string) *Client {
	return NewWithHTTPClient(base, &http.Client{})
}

// NewWithHTTPClient builds a client around hc, mainly for tests.
func NewWithHTTPClient(base string, hc *http.Client) *Client {
	return &Client{BaseURL: strings.TrimRight(base, "/"), httpClient: hc}
}

// GenerateStream opens a streaming generation call. The caller owns the
// returned body. Deadlines come from ctx.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		_ = resp.Body.Close()
		return nil, &StatusError{Path: "/api/generate", Code: resp.StatusCode}
	}
	return resp.Body, nil
}

// Tags returns the raw /api/tags payload unchanged.
func (c *Client) Tags(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Path: "/api/tags", Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if !json.Valid(body) {
		return nil, ErrInvalidResponse
	}
	return body, nil
}

// ModelNames lists the model names advertised by /api/tags.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	raw, err := c.Tags(ctx)
	if err != nil {
		return nil, err
	}
	var v struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	var models []string
	for _, m := range v.Models {
		models = append(models, m.Name)
	}
	return models, nil
}
