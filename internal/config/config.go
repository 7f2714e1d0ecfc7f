package config

import (
	"encoding/json"
	"errors"
)

// Config is the on-disk JSON shape for subscriptiond.
type Config struct {
	SubscriptionToleranceMS int           `json:"subscription_tolerance_ms"`
	RegexpEnabled           bool          `json:"regexp_enabled"`
	UDPListenAddr           string        `json:"udp_listen_addr"`
	HTTPListenAddr          string        `json:"http_listen_addr"`
	AdminListenAddr         string        `json:"admin_listen_addr"`
	AdminToken              string        `json:"admin_token"`
	Routes                  []Route       `json:"routes"`
	Limits                  LimitsConfig  `json:"limits"`
	Shutdown                ShutdownConfig `json:"shutdown"`
	Metrics                 MetricsConfig  `json:"metrics"`
}

// Route maps an inbound Host suffix to a subscription lookup mode. The
// dispatcher matches a request's Host against HostSuffix to pick the
// route, then uses the full (port-stripped) Host as the subscription key
// -- HostSuffix is not stripped off before the lookup.
type Route struct {
	HostSuffix string `json:"host_suffix"`
	PoolMode   string `json:"pool_mode"` // "literal" or "pattern"
}

type LimitsConfig struct {
	MaxHeaderBytes          int    `json:"max_header_bytes"`
	MaxHeaderCount          int    `json:"max_header_count"`
	MaxURLBytes             int    `json:"max_url_bytes"`
	MaxBodyBytes            *int64 `json:"max_body_bytes"`
	ReadHeaderTimeoutMS     int    `json:"read_header_timeout_ms"`
	ReadTimeoutMS           int    `json:"read_timeout_ms"`
	WriteTimeoutMS          int    `json:"write_timeout_ms"`
	IdleTimeoutMS           int    `json:"idle_timeout_ms"`
	ResponseStreamTimeoutMS int    `json:"response_stream_timeout_ms"`
}

type ShutdownConfig struct {
	DrainMS           int `json:"drain_ms"`
	GracefulTimeoutMS int `json:"graceful_timeout_ms"`
	ForceCloseMS      int `json:"force_close_ms"`
}

type MetricsConfig struct {
	KeyTopK           int `json:"key_top_k"`
	RecomputeIntervalMS int `json:"recompute_interval_ms"`
}

func ParseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var ErrNilConfig = errors.New("config is nil")
