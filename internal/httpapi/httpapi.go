package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/TotallyGatsby/brood-flow/internal/config"
	"github.com/TotallyGatsby/brood-flow/internal/registry"
	"github.com/TotallyGatsby/brood-flow/internal/stats"
	"github.com/TotallyGatsby/brood-flow/internal/utils"
)

// broker is the connectivity view the health endpoint reports on.
type broker interface {
	IsConnected() bool
}

func NewMux(reg *registry.Registry, counters *stats.Counters, b broker) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, b)
	registerDevices(mux, reg, counters)
	return mux
}

func NewServer(cfg config.Config, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: requestLogger(mux),
	}
}

func registerHealthcheck(mux *http.ServeMux, b broker) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"mqtt_connected": b.IsConnected(),
		})
	})
}

func registerDevices(mux *http.ServeMux, reg *registry.Registry, counters *stats.Counters) {
	mux.HandleFunc("GET /devices", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"devices":  reg.Snapshot(),
			"counters": counters.Snapshot(),
		})
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
