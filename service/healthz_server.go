package service

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// StatusFunc reports the current run state for /status
type StatusFunc func() (interface{}, error)

type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	status StatusFunc
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	h.ctx = ctx
	h.server = &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	return h.server.ListenAndServe()
}

// Handler returns the routes served by the healthz server
func (h *HealthzServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	r.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.Error(w, "no run", http.StatusServiceUnavailable)
		return
	}
	status, err := h.status()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Warn("Failed to encode status", "err", err)
	}
}
