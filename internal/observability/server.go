// Package observability serves the operational endpoints for the recorder:
// Prometheus metrics plus liveness and readiness endpoints. It listens on its
// own port so the capture API can be fronted separately.
package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server hosts the metrics and health endpoints.
type Server struct {
	server *http.Server
	addr   string
}

// readiness is the /readyz payload. Active session count is included so
// drain tooling can tell an idle instance from a busy one.
type readiness struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"activeSessions"`
}

// newHandler builds the endpoint mux. sessions reports the number of live
// recording sessions; nil means the count is not exposed.
func newHandler(sessions func() int) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		body := readiness{Status: "ready"}
		if sessions != nil {
			body.ActiveSessions = sessions()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(body)
	})

	return mux
}

// NewServer creates the observability server on addr.
func NewServer(addr string, sessions func() int) *Server {
	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      newHandler(sessions),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("observability server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("observability server error")
		}
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
