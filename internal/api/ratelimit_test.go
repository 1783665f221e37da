package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if got := call("10.0.0.1:1111"); got != http.StatusNoContent {
		t.Errorf("First request: expected 204, got %d", got)
	}
	// Same host, different port shares the bucket.
	if got := call("10.0.0.1:2222"); got != http.StatusTooManyRequests {
		t.Errorf("Second request: expected 429, got %d", got)
	}
	if got := call("10.0.0.2:1111"); got != http.StatusNoContent {
		t.Errorf("Other client: expected 204, got %d", got)
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.getVisitor("a")
	rl.getVisitor("b")

	now = now.Add(visitorTTL + sweepInterval + time.Second)
	rl.getVisitor("b")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["a"]; ok {
		t.Error("Expected idle visitor a to be evicted")
	}
	if _, ok := rl.visitors["b"]; !ok {
		t.Error("Expected active visitor b to be kept")
	}
}
