package api

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/voicerelay/internal/logx"
)

// MiddlewareChain returns the middleware applied to every request.
func MiddlewareChain() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		chiMiddleware.RequestID,
		requestLogger,
		chiMiddleware.Recoverer,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := chiMiddleware.GetReqID(r.Context())
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := logx.Log.Info()
		if status >= http.StatusInternalServerError {
			ev = logx.Log.Warn()
		}
		ev.Str("request_id", reqID).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("bytes", ww.BytesWritten()).Dur("elapsed", time.Since(start)).Msg("request")
	})
}
