package drain

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStartWithNothingInFlight(t *testing.T) {
	var g Gate
	select {
	case <-g.Start():
	default:
		t.Fatalf("idle channel should be closed")
	}
	if !g.IsDraining() {
		t.Fatalf("expected draining")
	}
	if g.Enter() {
		t.Fatalf("enter should fail while draining")
	}
}

func TestStartWaitsForInFlight(t *testing.T) {
	var g Gate
	if !g.Enter() || !g.Enter() {
		t.Fatalf("enter failed")
	}
	idle := g.Start()
	g.Leave()
	select {
	case <-idle:
		t.Fatalf("closed with one request running")
	case <-time.After(10 * time.Millisecond):
	}
	g.Leave()
	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatalf("idle not signalled")
	}
	if g.InFlight() != 0 {
		t.Fatalf("inflight %d", g.InFlight())
	}
	if g.Start() != idle {
		t.Fatalf("second Start should return the same channel")
	}
}

func TestMiddleware(t *testing.T) {
	var g Gate
	var seen int
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = g.InFlight()
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || seen != 1 || g.InFlight() != 0 {
		t.Fatalf("code %d seen %d inflight %d", rr.Code, seen, g.InFlight())
	}

	g.Start()
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}
