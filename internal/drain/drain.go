// Package drain tracks in-flight requests so shutdown can let running
// relays finish while new work is turned away.
package drain

import (
	"net/http"
	"sync"
)

// Gate admits requests until Start is called.
type Gate struct {
	mu       sync.Mutex
	draining bool
	inflight int
	idle     chan struct{}
}

// Enter admits one request. It returns false once draining has started.
func (g *Gate) Enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return false
	}
	g.inflight++
	return true
}

// Leave releases a request admitted by Enter.
func (g *Gate) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inflight--
	if g.draining && g.inflight == 0 {
		close(g.idle)
	}
}

// Start marks the gate as draining. The returned channel is closed when the
// last admitted request leaves.
func (g *Gate) Start() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.draining {
		g.draining = true
		g.idle = make(chan struct{})
		if g.inflight == 0 {
			close(g.idle)
		}
	}
	return g.idle
}

// IsDraining reports whether draining is in progress.
func (g *Gate) IsDraining() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.draining
}

// InFlight returns the number of admitted requests still running.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inflight
}

// Middleware answers 503 once draining has started.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enter() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"server is shutting down"}` + "\n"))
			return
		}
		defer g.Leave()
		next.ServeHTTP(w, r)
	})
}
