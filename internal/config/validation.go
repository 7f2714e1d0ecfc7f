package config

import (
	"fmt"
	"strings"
)

// Validate checks the parsed config for the constraints subscriptiond
// requires before it will bind any listener. Warnings are non-fatal
// (logged at startup, not rejected).
func Validate(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	warnings := []string{}

	if cfg.SubscriptionToleranceMS <= 0 {
		return warnings, fmt.Errorf("subscription_tolerance_ms must be > 0")
	}
	if cfg.UDPListenAddr == "" {
		return warnings, fmt.Errorf("udp_listen_addr is required")
	}
	if cfg.HTTPListenAddr == "" {
		return warnings, fmt.Errorf("http_listen_addr is required")
	}
	if cfg.AdminListenAddr != "" && strings.TrimSpace(cfg.AdminToken) == "" {
		return warnings, fmt.Errorf("admin_token is required when admin_listen_addr is set")
	}

	if err := validateLimits(cfg.Limits); err != nil {
		return warnings, err
	}
	if err := validateRoutes(cfg, &warnings); err != nil {
		return warnings, err
	}
	return warnings, nil
}

func validateLimits(cfg LimitsConfig) error {
	if cfg.MaxBodyBytes != nil && *cfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("limits.max_body_bytes must be > 0")
	}
	if limitsConfigured(cfg) && cfg.ReadHeaderTimeoutMS < 0 {
		return fmt.Errorf("limits.read_header_timeout_ms must be non-negative")
	}
	return nil
}

func validateRoutes(cfg *Config, warnings *[]string) error {
	seen := make(map[string]bool, len(cfg.Routes))
	for _, route := range cfg.Routes {
		switch route.PoolMode {
		case "literal", "pattern":
		default:
			return fmt.Errorf("route with host_suffix %q has invalid pool_mode %q", route.HostSuffix, route.PoolMode)
		}
		if route.PoolMode == "pattern" && !cfg.RegexpEnabled {
			*warnings = append(*warnings, fmt.Sprintf("route %q requests pattern mode but regexp_enabled is false", route.HostSuffix))
		}
		if seen[route.HostSuffix] {
			*warnings = append(*warnings, fmt.Sprintf("duplicate route host_suffix %q, first match wins", route.HostSuffix))
		}
		seen[route.HostSuffix] = true
	}
	return nil
}

func limitsConfigured(cfg LimitsConfig) bool {
	if cfg.MaxHeaderBytes != 0 || cfg.MaxHeaderCount != 0 || cfg.MaxURLBytes != 0 {
		return true
	}
	if cfg.MaxBodyBytes != nil {
		return true
	}
	if cfg.ReadHeaderTimeoutMS != 0 || cfg.ReadTimeoutMS != 0 || cfg.WriteTimeoutMS != 0 {
		return true
	}
	if cfg.IdleTimeoutMS != 0 || cfg.ResponseStreamTimeoutMS != 0 {
		return true
	}
	return false
}
