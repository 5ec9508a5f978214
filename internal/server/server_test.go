package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/voicerelay/internal/api"
	"github.com/gaspardpetit/voicerelay/internal/config"
	"github.com/gaspardpetit/voicerelay/internal/drain"
	"github.com/gaspardpetit/voicerelay/internal/metrics"
	"github.com/gaspardpetit/voicerelay/internal/ollama"
	"github.com/gaspardpetit/voicerelay/internal/tts"
)

type fakeSynth struct{ calls int }

func (f *fakeSynth) Synthesize(context.Context, tts.Request) ([]byte, error) {
	f.calls++
	return []byte("ID3audio"), nil
}

func testConfig() config.RelayConfig {
	cfg := config.RelayConfig{OllamaBaseURL: "http://ollama.invalid"}
	cfg.SetDefaults()
	return cfg
}

func newTestServer(t *testing.T, cfg config.RelayConfig, synth *fakeSynth, preg *prometheus.Registry) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:latest"}]}`))
		case "/api/generate":
			_, _ = w.Write([]byte("{\"response\":\"Hi\",\"done\":false}\n{\"response\":\"\",\"done\":true}\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)
	client := ollama.New(upstream.URL)
	opts := api.Options{Generator: client, Models: client}
	if synth != nil {
		opts.Speech = synth
	}
	ts := httptest.NewServer(New(cfg, opts, preg))
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(b) != "ok" {
		t.Fatalf("status %d body %q", resp.StatusCode, b)
	}
}

func TestRoutesWithAndWithoutTrailingSlash(t *testing.T) {
	ts := newTestServer(t, testConfig(), &fakeSynth{}, nil)
	for _, path := range []string{"/api/models", "/api/models/", "/api/tts/test", "/api/tts/test/"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
	}
}

func TestModelsThroughServer(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)
	resp, err := http.Get(ts.URL + "/api/models")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var v struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(v.Models) != 1 || v.Models[0].Name != "llama3.2:latest" {
		t.Fatalf("models %+v", v.Models)
	}
}

func TestGenerateThroughServer(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil, nil)
	resp, err := http.Post(ts.URL+"/api/generate/", "application/json", strings.NewReader(`{"model":"llama3.2","prompt":"hi"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d body %s", resp.StatusCode, b)
	}
	if got := strings.Count(string(b), "data: "); got != 2 {
		t.Fatalf("expected 2 events, got %d: %s", got, b)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type %q", ct)
	}
}

func TestCORSPreflight(t *testing.T) {
	synth := &fakeSynth{}
	ts := newTestServer(t, testConfig(), synth, nil)
	for _, path := range []string{"/api/tts", "/api/generate"} {
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+path, nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("OPTIONS %s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			t.Fatalf("OPTIONS %s: status %d", path, resp.StatusCode)
		}
		if len(b) != 0 {
			t.Fatalf("OPTIONS %s: body %q", path, b)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") == "" {
			t.Fatalf("OPTIONS %s: missing allow-origin", path)
		}
	}
	if synth.calls != 0 {
		t.Fatalf("preflight must not synthesize")
	}
}

func TestCORSOnSimpleRequest(t *testing.T) {
	ts := newTestServer(t, testConfig(), &fakeSynth{}, nil)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/models", nil)
	req.Header.Set("Origin", "http://example.org")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("missing allow-origin")
	}
}

func TestSpeechThroughServer(t *testing.T) {
	synth := &fakeSynth{}
	ts := newTestServer(t, testConfig(), synth, nil)
	resp, err := http.Get(ts.URL + "/api/tts?text=hello")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(b) != "ID3audio" {
		t.Fatalf("status %d body %q", resp.StatusCode, b)
	}
	if resp.Header.Get("Content-Type") != "audio/mpeg" || resp.ContentLength != int64(len(b)) {
		t.Fatalf("headers %v", resp.Header)
	}
}

func TestMetricsEndpointDefaultPort(t *testing.T) {
	preg := prometheus.NewRegistry()
	metrics.Register(preg)
	ts := newTestServer(t, testConfig(), nil, preg)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpointSeparatePort(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsAddr = ":9090"
	preg := prometheus.NewRegistry()
	ts := newTestServer(t, cfg, nil, preg)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDrainingRefusesNewWork(t *testing.T) {
	gate := &drain.Gate{}
	h := New(testConfig(), api.Options{Speech: &fakeSynth{}, Drain: gate}, nil)
	ts := httptest.NewServer(h)
	defer ts.Close()
	gate.Start()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	resp, err = http.Get(ts.URL + "/api/tts?text=hi")
	if err != nil {
		t.Fatalf("GET /api/tts: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("tts status %d", resp.StatusCode)
	}
}
