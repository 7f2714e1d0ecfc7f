package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"subscriptiond/internal/admin"
	"subscriptiond/internal/config"
	"subscriptiond/internal/dispatcher"
	"subscriptiond/internal/limits"
	"subscriptiond/internal/obs"
	"subscriptiond/internal/runtime"
	"subscriptiond/internal/server"
	"subscriptiond/internal/subnet"
	"subscriptiond/internal/subscription"
)

func main() {
	configFile := flag.String("config-file", "", "Path to JSON config")
	adminToken := flag.String("admin-token", "", "Admin API token (overrides config)")
	logJSON := flag.Bool("log-json", true, "Emit JSON logs")
	flag.Parse()

	configureLogging(*logJSON)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *adminToken != "" {
		cfg.AdminToken = *adminToken
	}
	if warnings, err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	} else {
		for _, w := range warnings {
			log.Printf("config warning: %s", w)
		}
	}

	metrics := obs.NewMetrics(obs.MetricsConfig{
		KeyTopK:           cfg.Metrics.KeyTopK,
		RecomputeInterval: time.Duration(cfg.Metrics.RecomputeIntervalMS) * time.Millisecond,
	})

	reg := subscription.NewRegistry(subscription.Config{
		Tolerance:     time.Duration(cfg.SubscriptionToleranceMS) * time.Millisecond,
		RegexpEnabled: cfg.RegexpEnabled,
		OnEvict: func(key string, mode subscription.Mode) {
			obs.LogRegistryEvent(obs.RegistryEvent{Event: "evict", Key: key, Mode: mode.String(), Reason: "stale"})
			metrics.RecordEviction(mode.String())
		},
		OnRemove: func(key string, mode subscription.Mode) {
			obs.LogRegistryEvent(obs.RegistryEvent{Event: "remove", Key: key, Mode: mode.String(), Reason: "admin"})
			metrics.RecordRemoval(mode.String())
		},
	})
	actor := subscription.NewActor(reg)
	defer actor.Stop()

	go reportPoolStats(actor, metrics)

	udpListener, err := subnet.New(cfg.UDPListenAddr, actor, metrics, cfg.RegexpEnabled)
	if err != nil {
		log.Fatalf("udp listener: %v", err)
	}
	go func() {
		if err := udpListener.Serve(); err != nil {
			log.Printf("udp listener stopped: %v", err)
		}
	}()
	defer udpListener.Close()

	limitConfig, err := limits.FromConfig(cfg.Limits)
	if err != nil {
		log.Fatalf("limits: %v", err)
	}
	shutdownConfig, err := runtime.ShutdownFromConfig(cfg.Shutdown)
	if err != nil {
		log.Fatalf("shutdown config: %v", err)
	}
	inflight := runtime.NewInflightTracker()

	router := dispatcher.NewRouter(cfg.Routes)
	dispatchHandler := &dispatcher.Handler{
		Router:   router,
		Actor:    actor,
		Metrics:  metrics,
		Inflight: inflight,
	}

	dispatchServer, err := server.StartServer(dispatchHandler, cfg.HTTPListenAddr, server.Options{
		Limits:   limitConfig,
		Shutdown: shutdownConfig,
		Inflight: inflight,
	})
	if err != nil {
		log.Fatalf("start dispatcher: %v", err)
	}
	log.Printf("dispatching on http://%s", dispatchServer.Addr)
	defer dispatchServer.Close()

	if err := startAdmin(cfg, actor, metrics); err != nil {
		log.Fatalf("admin: %v", err)
	}

	select {}
}

func startAdmin(cfg *config.Config, actor *subscription.Actor, metrics *obs.Metrics) error {
	if cfg.AdminListenAddr == "" {
		return nil
	}
	auth, err := admin.NewAuthenticator(cfg.AdminToken)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", admin.NewHandler(admin.HandlerConfig{
		Actor:       actor,
		Auth:        auth,
		RateLimiter: admin.NewRateLimiter(admin.RateLimitConfig{}),
	}))

	adminServer, err := server.StartServer(mux, cfg.AdminListenAddr, server.Options{
		Limits:   limits.Default(),
		Shutdown: runtime.DefaultShutdownConfig(),
	})
	if err != nil {
		return err
	}
	log.Printf("admin listening on http://%s", adminServer.Addr)
	return nil
}

func reportPoolStats(actor *subscription.Actor, metrics *obs.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		snaps := actor.Snapshots()
		nodes := 0
		for _, s := range snaps {
			nodes += s.Nodes
		}
		metrics.SetPoolStats(len(snaps), nodes)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return config.ParseJSON(data)
}

func configureLogging(jsonEnabled bool) {
	if !jsonEnabled {
		log.SetFlags(log.LstdFlags)
		return
	}
	log.SetFlags(0)
	log.SetOutput(&jsonLogWriter{writer: os.Stdout})
}

type jsonLogWriter struct {
	writer io.Writer
}

func (j *jsonLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}
	entry := map[string]string{
		"ts":  time.Now().UTC().Format(time.RFC3339Nano),
		"msg": msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		_, writeErr := j.writer.Write(p)
		if writeErr != nil {
			return len(p), writeErr
		}
		return len(p), err
	}
	data = append(data, '\n')
	_, writeErr := j.writer.Write(data)
	if writeErr != nil {
		return len(p), writeErr
	}
	return len(p), nil
}
