package admin

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"subscriptiond/internal/subscription"
)

const requestIDHeader = "X-Request-Id"

type handler struct {
	actor       *subscription.Actor
	auth        *Authenticator
	rateLimiter *RateLimiter
	mux         *http.ServeMux
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = newRequestID()
	}
	w.Header().Set(requestIDHeader, requestID)

	if h.rateLimiter != nil {
		if !h.rateLimiter.Allow(r.RemoteAddr) {
			writeError(w, requestID, http.StatusTooManyRequests, "rate_limited")
			return
		}
	}

	if h.auth == nil {
		writeError(w, requestID, http.StatusUnauthorized, "auth unavailable")
		return
	}
	if err := h.auth.Authenticate(r); err != nil {
		if h.rateLimiter != nil {
			h.rateLimiter.RecordFailure(r.RemoteAddr)
		}
		status := http.StatusUnauthorized
		message := "unauthorized"
		var authErr *AuthError
		if errors.As(err, &authErr) {
			status = authErr.Status
			message = authErr.Message
		}
		writeError(w, requestID, status, message)
		return
	}
	if h.rateLimiter != nil {
		h.rateLimiter.ResetFailures(r.RemoteAddr)
	}

	h.mux.ServeHTTP(w, r)
}

type poolInfo struct {
	Key   string `json:"key"`
	Mode  string `json:"mode"`
	Hits  uint64 `json:"hits"`
	Nodes int    `json:"nodes"`
}

// handlePools lists every pool the registry currently holds.
func (h *handler) handlePools(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if r.Method != http.MethodGet {
		writeError(w, requestID, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.actor == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	snaps := h.actor.Snapshots()
	pools := make([]poolInfo, 0, len(snaps))
	for _, s := range snaps {
		pools = append(pools, poolInfo{Key: s.Key, Mode: s.Mode.String(), Hits: s.Hits, Nodes: s.Nodes})
	}
	writeJSON(w, requestID, http.StatusOK, map[string]interface{}{"pools": pools})
}

// handleLookup reports whether a named node is currently subscribed under
// the given key and mode, without affecting round-robin cursor or
// reference counts (it never calls Select).
func (h *handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if r.Method != http.MethodGet {
		writeError(w, requestID, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.actor == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	key := r.URL.Query().Get("key")
	name := r.URL.Query().Get("name")
	mode, err := parseMode(r.URL.Query().Get("mode"))
	if err != nil || key == "" || name == "" {
		writeError(w, requestID, http.StatusBadRequest, "key, name and mode are required")
		return
	}
	handle, ok := h.actor.LookupByName(key, name, mode)
	if !ok {
		writeError(w, requestID, http.StatusNotFound, "node not found")
		return
	}
	modifier1, modifier2 := handle.Modifiers()
	writeJSON(w, requestID, http.StatusOK, map[string]interface{}{
		"key":       key,
		"mode":      mode.String(),
		"name":      handle.Address(),
		"modifier1": modifier1,
		"modifier2": modifier2,
	})
}

type removeRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Mode string `json:"mode"`
}

// handleRemove performs an operator-initiated, immediate removal, rather
// than the lazy hit-path eviction Select performs.
func (h *handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(requestIDHeader)
	if r.Method != http.MethodPost {
		writeError(w, requestID, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.actor == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	var payload removeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid body")
		return
	}
	mode, err := parseMode(payload.Mode)
	if err != nil || payload.Key == "" || payload.Name == "" {
		writeError(w, requestID, http.StatusBadRequest, "key, name and mode are required")
		return
	}
	if !h.actor.Remove(payload.Key, payload.Name, mode) {
		writeError(w, requestID, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, requestID, http.StatusOK, map[string]bool{"removed": true})
}

func parseMode(s string) (subscription.Mode, error) {
	switch s {
	case "literal":
		return subscription.Literal, nil
	case "pattern":
		return subscription.Pattern, nil
	default:
		return subscription.Literal, errors.New("mode must be literal or pattern")
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, message string) {
	writeJSON(w, requestID, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, requestID string, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(requestIDHeader, requestID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
