package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/gaspardpetit/voicerelay/internal/logx"
	"github.com/gaspardpetit/voicerelay/internal/ollama"
)

var errContentType = errors.New("invalid content type: expected application/json")

// ValidationError collects per-field messages for a rejected request body.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeClientError answers 400 for a request that failed decoding or validation.
func writeClientError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "fields": ve.Fields})
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// writeUpstreamError maps an Ollama client failure to a 500 response.
func writeUpstreamError(w http.ResponseWriter, reqID string, err error) {
	var se *ollama.StatusError
	switch {
	case errors.As(err, &se):
		logx.Log.Warn().Str("request_id", reqID).Str("path", se.Path).Int("status", se.Code).Msg("upstream status")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Ollama API error: %d", se.Code))
	case errors.Is(err, ollama.ErrUpstreamUnavailable):
		logx.Log.Error().Str("request_id", reqID).Err(err).Msg("upstream unreachable")
		writeError(w, http.StatusInternalServerError, "Failed to connect to Ollama: "+err.Error())
	default:
		logx.Log.Error().Str("request_id", reqID).Err(err).Msg("upstream failure")
		writeError(w, http.StatusInternalServerError, "Unexpected error: "+err.Error())
	}
}

// requireJSON rejects bodies declared with a non-JSON media type. A missing
// Content-Type is accepted.
func requireJSON(r *http.Request) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return nil
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || (mt != "application/json" && !strings.HasSuffix(mt, "+json")) {
		return errContentType
	}
	return nil
}
