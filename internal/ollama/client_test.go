package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateStreamForwardsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content-type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, _ = w.Write([]byte("{\"response\":\"hi\",\"done\":true}\n"))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	body, err := c.GenerateStream(context.Background(), GenerateRequest{Model: "m", Prompt: "p", Stream: true, Options: map[string]any{"temperature": 0.7}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	defer func() { _ = body.Close() }()
	b, _ := io.ReadAll(body)
	if !strings.Contains(string(b), `"done":true`) {
		t.Fatalf("body %q", b)
	}
	if got["model"] != "m" || got["prompt"] != "p" || got["stream"] != true {
		t.Fatalf("payload %v", got)
	}
	if opts, ok := got["options"].(map[string]any); !ok || opts["temperature"] != 0.7 {
		t.Fatalf("options %v", got["options"])
	}
}

func TestGenerateStreamOmitsEmptyOptions(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
	}))
	defer srv.Close()
	body, err := New(srv.URL).GenerateStream(context.Background(), GenerateRequest{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_ = body.Close()
	if _, ok := raw["options"]; ok {
		t.Fatalf("options should be omitted: %v", raw)
	}
	if string(raw["stream"]) != "false" {
		t.Fatalf("stream %s", raw["stream"])
	}
}

func TestGenerateStreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()
	_, err := New(srv.URL).GenerateStream(context.Background(), GenerateRequest{Model: "m", Prompt: "p"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected status error 404, got %v", err)
	}
}

func TestGenerateStreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	_, err := New(url).GenerateStream(context.Background(), GenerateRequest{Model: "m", Prompt: "p"})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestTagsPassthrough(t *testing.T) {
	const payload = `{"models":[{"name":"llama3.2:latest","size":123},{"name":"qwen:0.5b"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()
	c := New(srv.URL)
	raw, err := c.Tags(context.Background())
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if string(raw) != payload {
		t.Fatalf("payload changed: %s", raw)
	}
	names, err := c.ModelNames(context.Background())
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 2 || names[0] != "llama3.2:latest" || names[1] != "qwen:0.5b" {
		t.Fatalf("names %v", names)
	}
}

func TestTagsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("x") == "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}))
	defer srv.Close()
	_, err := New(srv.URL).Tags(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 status error, got %v", err)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer bad.Close()
	if _, err := New(bad.URL).Tags(context.Background()); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected invalid response, got %v", err)
	}
}

func TestLines(t *testing.T) {
	in := "{\"a\":1}\r\n\n{\"b\":2}\n{\"c\":3}"
	var got []string
	for line, err := range Lines(strings.NewReader(in)) {
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		got = append(got, string(line))
	}
	if strings.Join(got, "|") != `{"a":1}|{"b":2}|{"c":3}` {
		t.Fatalf("lines %q", got)
	}
}

type failingReader struct{ data string }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.data == "" {
		return 0, errors.New("connection reset")
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestLinesReadError(t *testing.T) {
	var lines []string
	var lastErr error
	for line, err := range Lines(&failingReader{data: "one\ntwo"}) {
		if err != nil {
			lastErr = err
			continue
		}
		lines = append(lines, string(line))
	}
	if len(lines) != 2 || lines[1] != "two" {
		t.Fatalf("lines %q", lines)
	}
	if lastErr == nil || lastErr.Error() != "connection reset" {
		t.Fatalf("err %v", lastErr)
	}
}
