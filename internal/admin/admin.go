package admin

import (
	"net/http"

	"subscriptiond/internal/subscription"
)

// HandlerConfig wires the admin surface to the registry it reports on:
// read-mostly diagnostics plus one mutating op (remove). There is no TLS
// and no signing key here -- registry lifecycle events (evict, remove) are
// observed at the registry/metrics layer, not in this package.
type HandlerConfig struct {
	Actor       *subscription.Actor
	Auth        *Authenticator
	RateLimiter *RateLimiter
}

func NewHandler(cfg HandlerConfig) http.Handler {
	h := &handler{
		actor:       cfg.Actor,
		auth:        cfg.Auth,
		rateLimiter: cfg.RateLimiter,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/pools", h.handlePools)
	mux.HandleFunc("/admin/lookup", h.handleLookup)
	mux.HandleFunc("/admin/remove", h.handleRemove)
	h.mux = mux
	return h
}
