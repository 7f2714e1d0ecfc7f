package dispatcher

import (
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"sync"
	"time"

	"subscriptiond/internal/obs"
	"subscriptiond/internal/runtime"
	"subscriptiond/internal/subscription"
)

// Handler is the request-routing layer: it maps a request's Host to a
// subscription key, selects a node, reverse-proxies to it, and always
// releases the node's reference exactly once.
type Handler struct {
	Router   *Router
	Actor    *subscription.Actor
	Metrics  *obs.Metrics
	Inflight *runtime.InflightTracker

	// DialTimeout and ResponseHeaderTimeout bound the upstream transport.
	// Zero values fall back to sane defaults via transport().
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration

	transportOnce sync.Once
	cachedTransport http.RoundTripper
}

const (
	modifier1Header = "X-Subscription-Modifier1"
	modifier2Header = "X-Subscription-Modifier2"
)

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	recorder := NewResponseRecorder(w)
	start := time.Now()
	if h.Inflight != nil {
		h.Inflight.Inc()
		defer h.Inflight.Dec()
	}

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = NewRequestID()
	}
	recorder.Header().Set(RequestIDHeader, requestID)

	key := "none"
	mode := "none"
	nodeAddr := "none"
	var modifier1, modifier2 byte

	defer func() {
		duration := time.Since(start)
		errorCategory := recorder.ErrorCategory()
		if errorCategory == "" {
			errorCategory = "none"
		}
		obs.LogAccess(obs.RequestContext{
			RequestID:     requestID,
			Method:        r.Method,
			Host:          r.Host,
			Path:          r.URL.Path,
			Key:           key,
			Mode:          mode,
			NodeAddr:      nodeAddr,
			Modifier1:     modifier1,
			Modifier2:     modifier2,
			Status:        recorder.Status(),
			Duration:      duration,
			BytesIn:       r.ContentLength,
			BytesOut:      recorder.BytesWritten(),
			ErrorCategory: errorCategory,
			UserAgent:     r.UserAgent(),
			RemoteAddr:    r.RemoteAddr,
		})
		if h.Metrics != nil {
			h.Metrics.ObserveRequest(key, recorder.Status(), duration)
			if errorCategory != "none" {
				h.Metrics.RecordDispatchError(errorCategory)
			}
		}
	}()

	if h.Router == nil || h.Actor == nil {
		WriteProxyError(recorder, requestID, http.StatusServiceUnavailable, "not_ready", "dispatcher not ready")
		return
	}

	matchedKey, matchedMode, ok := h.Router.Match(r)
	if !ok {
		WriteProxyError(recorder, requestID, http.StatusBadGateway, "no_route", "no route matched host")
		return
	}
	key = matchedKey
	mode = matchedMode.String()

	handle, ok := h.Actor.Select(matchedKey, matchedMode)
	if !ok {
		WriteProxyError(recorder, requestID, http.StatusBadGateway, "no_match", "no subscribed node for key")
		return
	}
	defer h.Actor.Release(handle)

	nodeAddr = handle.Address()
	modifier1, modifier2 = handle.Modifiers()

	r.Header.Set(modifier1Header, strconv.Itoa(int(modifier1)))
	r.Header.Set(modifier2Header, strconv.Itoa(int(modifier2)))

	target := &url.URL{Scheme: "http", Host: nodeAddr}
	proxy := &httputil.ReverseProxy{
		Transport: h.transport(),
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
		},
		ErrorHandler: func(rw http.ResponseWriter, req *http.Request, err error) {
			recorder.SetErrorCategory("upstream_error")
			if h.Metrics != nil {
				h.Metrics.RecordUpstreamError(matchedKey, "upstream_error")
			}
			WriteProxyError(rw, requestID, http.StatusBadGateway, "upstream_error", "upstream request failed")
		},
	}

	roundTripStart := time.Now()
	proxy.ServeHTTP(recorder, r)
	if h.Metrics != nil {
		h.Metrics.ObserveUpstreamRoundTrip(matchedKey, time.Since(roundTripStart))
	}
}

func (h *Handler) transport() http.RoundTripper {
	h.transportOnce.Do(func() {
		dialTimeout := h.DialTimeout
		if dialTimeout <= 0 {
			dialTimeout = 5 * time.Second
		}
		headerTimeout := h.ResponseHeaderTimeout
		if headerTimeout <= 0 {
			headerTimeout = 10 * time.Second
		}
		h.cachedTransport = &http.Transport{
			DialContext:           (&net.Dialer{Timeout: dialTimeout}).DialContext,
			ResponseHeaderTimeout: headerTimeout,
		}
	})
	return h.cachedTransport
}
