package dispatcher

import (
	"net"
	"net/http"
	"strings"

	"subscriptiond/internal/config"
	"subscriptiond/internal/subscription"
)

// Router derives a subscription key and lookup mode from a request's Host
// header. Routes are matched by suffix, longest suffix first, so a more
// specific rule (e.g. "api.example.com") outranks a catch-all
// ("example.com").
type Router struct {
	routes []config.Route
}

func NewRouter(routes []config.Route) *Router {
	sorted := append([]config.Route(nil), routes...)
	// longest HostSuffix first
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j].HostSuffix) > len(sorted[j-1].HostSuffix); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Router{routes: sorted}
}

// Match returns the subscription key and mode for req, or ok=false when no
// route's suffix matches the request's Host. The matched route's suffix is
// used only to pick the route; the key returned is the full (port-stripped)
// Host, not the suffix-stripped remainder.
func (r *Router) Match(req *http.Request) (key string, mode subscription.Mode, ok bool) {
	host := req.Host
	if h, _, err := net.SplitHostPort(req.Host); err == nil {
		host = h
	}
	for _, route := range r.routes {
		if route.HostSuffix == "" || strings.HasSuffix(host, route.HostSuffix) {
			m := subscription.Literal
			if route.PoolMode == "pattern" {
				m = subscription.Pattern
			}
			return host, m, true
		}
	}
	return "", subscription.Literal, false
}
