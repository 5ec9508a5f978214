package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gaspardpetit/voicerelay/internal/logx"
	"github.com/gaspardpetit/voicerelay/internal/metrics"
	"github.com/gaspardpetit/voicerelay/internal/ollama"
	"github.com/gaspardpetit/voicerelay/internal/relay"
)

const maxModelLen = 100

// Generator opens a streaming generation call upstream.
type Generator interface {
	GenerateStream(ctx context.Context, req ollama.GenerateRequest) (io.ReadCloser, error)
}

type generateBody struct {
	Model   *string         `json:"model"`
	Prompt  *string         `json:"prompt"`
	Stream  *bool           `json:"stream"`
	Options json.RawMessage `json:"options"`
}

func decodeGenerateRequest(r *http.Request) (ollama.GenerateRequest, error) {
	var out ollama.GenerateRequest
	if err := requireJSON(r); err != nil {
		return out, err
	}
	var body generateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return out, fmt.Errorf("malformed request body: %v", err)
	}
	var ve ValidationError
	out.Model = requiredText(&ve, "model", body.Model)
	if utf8.RuneCountInString(out.Model) > maxModelLen {
		ve.add("model", fmt.Sprintf("Ensure this field has no more than %d characters.", maxModelLen))
	}
	out.Prompt = requiredText(&ve, "prompt", body.Prompt)
	out.Stream = true
	if body.Stream != nil {
		out.Stream = *body.Stream
	}
	if len(body.Options) > 0 {
		if string(body.Options) == "null" {
			ve.add("options", "This field may not be null.")
		} else if err := json.Unmarshal(body.Options, &out.Options); err != nil {
			ve.add("options", "Expected a dictionary of items.")
		}
	}
	if len(ve.Fields) > 0 {
		return out, &ve
	}
	return out, nil
}

func requiredText(ve *ValidationError, field string, v *string) string {
	if v == nil {
		ve.add(field, "This field is required.")
		return ""
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		ve.add(field, "This field may not be blank.")
	}
	return s
}

// GenerateHandler handles POST /api/generate by relaying the upstream
// NDJSON stream as server-sent events.
func GenerateHandler(up Generator, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := chiMiddleware.GetReqID(r.Context())
		req, err := decodeGenerateRequest(r)
		if err != nil {
			logx.Log.Debug().Str("request_id", reqID).Err(err).Msg("rejected generate request")
			metrics.RecordRequest("generate", false)
			writeClientError(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		streamID := uuid.NewString()
		start := time.Now()
		body, err := up.GenerateStream(ctx, req)
		if err != nil {
			metrics.RecordRequest("generate", false)
			writeUpstreamError(w, reqID, err)
			return
		}
		defer func() {
			_ = body.Close()
		}()
		logx.Log.Info().Str("request_id", reqID).Str("stream_id", streamID).Str("model", req.Model).Msg("relay start")

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)

		sum, err := relay.Stream(w, body)
		metrics.ObserveUpstream("ollama_generate", time.Since(start))
		if sum.Done {
			in, out := sum.TokenCounts()
			if in > 0 {
				metrics.RecordModelTokens(req.Model, "in", in)
			}
			if out > 0 {
				metrics.RecordModelTokens(req.Model, "out", out)
			}
		}
		ev := logx.Log.Info()
		switch {
		case err != nil:
			ev = logx.Log.Warn().Err(err).Str("reason", "client write failed")
		case sum.Err != nil:
			ev = logx.Log.Warn().AnErr("stream_error", sum.Err)
			if errors.Is(sum.Err, context.DeadlineExceeded) {
				ev = ev.Dur("timeout", timeout)
			}
		}
		ev.Str("request_id", reqID).Str("stream_id", streamID).Int("events", sum.Events).Int("skipped", sum.Skipped).Bool("done", sum.Done).Dur("elapsed", time.Since(start)).Msg("relay end")
		metrics.RecordRequest("generate", err == nil && sum.Err == nil)
	}
}
