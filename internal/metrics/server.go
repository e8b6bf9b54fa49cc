package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncStatus reports when the lease registry last matched the provider.
type SyncStatus interface {
	LastSync() (time.Time, bool)
}

// NewServer creates the operator-facing HTTP server: Prometheus metrics on
// /metrics and registry readiness on /readyz. Readiness stays 503 until the
// first reconcile has rebuilt the registry from the provider, since before
// that quota checks run against an empty view.
func NewServer(addr string, sync SyncStatus) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]string{"registry": "pending"}
		status := http.StatusServiceUnavailable
		if at, ok := sync.LastSync(); ok {
			body["registry"] = "synced"
			body["last_reconcile"] = at.UTC().Format(time.RFC3339)
			status = http.StatusOK
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
