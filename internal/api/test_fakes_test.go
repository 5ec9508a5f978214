package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"

	"github.com/gaspardpetit/voicerelay/internal/ollama"
	"github.com/gaspardpetit/voicerelay/internal/tts"
)

type flushRecorder struct {
	*httptest.ResponseRecorder
	writes  int
	flushes int
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (f *flushRecorder) Write(b []byte) (int, error) {
	f.writes++
	return f.ResponseRecorder.Write(b)
}

func (f *flushRecorder) Flush() { f.flushes++ }

type stubGenerator struct {
	body  string
	err   error
	calls int
	last  ollama.GenerateRequest
}

func (s *stubGenerator) GenerateStream(ctx context.Context, req ollama.GenerateRequest) (io.ReadCloser, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

type stubLister struct {
	raw json.RawMessage
	err error
}

func (s *stubLister) Tags(context.Context) (json.RawMessage, error) { return s.raw, s.err }

type stubSynth struct {
	audio []byte
	err   error
	calls int
	last  tts.Request
}

func (s *stubSynth) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	s.calls++
	s.last = req
	return s.audio, s.err
}

func decodeError(body string) string {
	var v struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal([]byte(body), &v)
	return v.Error
}
