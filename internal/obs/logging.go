package obs

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

type AccessLogEntry struct {
	Timestamp     string `json:"ts"`
	RequestID     string `json:"request_id"`
	Method        string `json:"method"`
	Host          string `json:"host"`
	Path          string `json:"path"`
	Key           string `json:"key"`
	Mode          string `json:"mode"`
	NodeAddr      string `json:"node_addr"`
	Modifier1     byte   `json:"modifier1"`
	Modifier2     byte   `json:"modifier2"`
	Status        int    `json:"status"`
	DurationMS    int64  `json:"duration_ms"`
	BytesIn       int64  `json:"bytes_in"`
	BytesOut      int64  `json:"bytes_out"`
	ErrorCategory string `json:"error_category"`
	UserAgent     string `json:"user_agent,omitempty"`
	RemoteAddr    string `json:"remote_addr,omitempty"`
}

func LogAccess(ctx RequestContext) {
	entry := AccessLogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:     defaultString(ctx.RequestID, "none"),
		Method:        ctx.Method,
		Host:          ctx.Host,
		Path:          ctx.Path,
		Key:           defaultString(ctx.Key, "none"),
		Mode:          defaultString(ctx.Mode, "none"),
		NodeAddr:      defaultString(ctx.NodeAddr, "none"),
		Modifier1:     ctx.Modifier1,
		Modifier2:     ctx.Modifier2,
		Status:        ctx.Status,
		DurationMS:    ctx.Duration.Milliseconds(),
		BytesIn:       ctx.BytesIn,
		BytesOut:      ctx.BytesOut,
		ErrorCategory: defaultString(ctx.ErrorCategory, "none"),
		UserAgent:     ctx.UserAgent,
		RemoteAddr:    ctx.RemoteAddr,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stdout, "log_marshal_error request_id=%s error=%v\n", entry.RequestID, err)
		return
	}
	_, _ = os.Stdout.Write(append(data, '\n'))
}

// RegistryLogEntry is one lifecycle line for the subscription registry:
// announce (first or repeated), eviction by the sweeper, or explicit
// removal.
type RegistryLogEntry struct {
	Timestamp string `json:"ts"`
	Event     string `json:"event"`
	Key       string `json:"key"`
	Mode      string `json:"mode"`
	NodeAddr  string `json:"node_addr"`
	Reason    string `json:"reason,omitempty"`
	PoolNodes int    `json:"pool_nodes"`
}

func LogRegistryEvent(ev RegistryEvent) {
	entry := RegistryLogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Event:     ev.Event,
		Key:       ev.Key,
		Mode:      defaultString(ev.Mode, "none"),
		NodeAddr:  ev.NodeAddr,
		Reason:    ev.Reason,
		PoolNodes: ev.PoolNodes,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stdout, "log_marshal_error event=%s error=%v\n", entry.Event, err)
		return
	}
	_, _ = os.Stdout.Write(append(data, '\n'))
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func RedactHeaderValue(name, value string) string {
	if name == "" {
		return value
	}
	if isSensitiveHeader(name) {
		return "[redacted]"
	}
	return value
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key", "proxy-authorization":
		return true
	default:
		return false
	}
}
