package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/voicerelay/internal/logx"
	"github.com/gaspardpetit/voicerelay/internal/metrics"
)

// ModelLister fetches the upstream model list verbatim.
type ModelLister interface {
	Tags(ctx context.Context) (json.RawMessage, error)
}

// ModelsHandler handles GET /api/models.
func ModelsHandler(up ModelLister, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		start := time.Now()
		raw, err := up.Tags(ctx)
		metrics.ObserveUpstream("ollama_tags", time.Since(start))
		if err != nil {
			metrics.RecordRequest("models", false)
			writeUpstreamError(w, chiMiddleware.GetReqID(r.Context()), err)
			return
		}
		metrics.RecordRequest("models", true)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(raw); err != nil {
			logx.Log.Error().Err(err).Msg("write models")
		}
	}
}
