package dispatcher

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"subscriptiond/internal/config"
	"subscriptiond/internal/subscription"
	"subscriptiond/internal/testutil"
)

func newTestHandler(t *testing.T, upstream string, tolerance time.Duration) (*Handler, *subscription.Actor) {
	t.Helper()
	reg := subscription.NewRegistry(subscription.Config{Tolerance: tolerance})
	actor := subscription.NewActor(reg)
	t.Cleanup(actor.Stop)

	if upstream != "" {
		if _, err := actor.Announce("app.example.com", upstream, 7, 0, false); err != nil {
			t.Fatalf("announce: %v", err)
		}
	}

	router := NewRouter([]config.Route{{HostSuffix: "example.com", PoolMode: "literal"}})
	return &Handler{Router: router, Actor: actor}, actor
}

func TestHandlerProxiesToSelectedNode(t *testing.T) {
	upstreamAddr, closeUpstream := testutil.StartUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(modifier1Header); got != "7" {
			t.Errorf("modifier1 header = %q, want 7", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer closeUpstream()

	h, actor := newTestHandler(t, upstreamAddr, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}

	if _, ok := actor.LookupByName("app.example.com", upstreamAddr, subscription.Literal); !ok {
		t.Fatalf("node disappeared")
	}
}

func TestHandlerNoMatchReturnsBadGateway(t *testing.T) {
	h, _ := newTestHandler(t, "", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rw.Code)
	}
}

func TestHandlerUnmatchedHostReturnsBadGateway(t *testing.T) {
	h, _ := newTestHandler(t, "127.0.0.1:1", time.Minute)

	req := httptest.NewRequest(http.MethodGet, "http://other.invalid/", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rw.Code)
	}
}

// Release must fire even when the upstream is unreachable: if it didn't,
// the node would survive as death-marked-but-referenced forever instead
// of being evicted once tolerance elapses, and the pool would never empty.
func TestHandlerReleasesOnUpstreamError(t *testing.T) {
	tolerance := 30 * time.Millisecond
	h, actor := newTestHandler(t, "127.0.0.1:1", tolerance) // nothing listens here

	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
	rw := httptest.NewRecorder()
	h.DialTimeout = 10 * time.Millisecond
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rw.Code)
	}

	time.Sleep(tolerance + 20*time.Millisecond)
	if _, ok := actor.Select("app.example.com", subscription.Literal); ok {
		t.Fatalf("expected no match: node should have gone stale")
	}
	if snaps := actor.Snapshots(); len(snaps) != 0 {
		t.Fatalf("expected the pool to be evicted once unreferenced, got %d pools", len(snaps))
	}
}
