// Package healthweb serves the node's liveness and introspection surface:
// /healthz for a supervisor's restart probe, /metrics for Prometheus
// scraping, and /status for a human-readable snapshot of pipeline state.
// There is no operator-facing UI or authentication here (out of scope).
package healthweb

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cursedremoteid/edge/internal/adapters/capture"
	"github.com/cursedremoteid/edge/internal/pipeline"
)

// StatusSource reports the live values /status renders. Capture provides
// the only component with a meaningful external state machine; the
// others are fire-and-forget loops.
type StatusSource interface {
	State() capture.State
}

// Status is the JSON body /status returns.
type Status struct {
	CaptureState string `json:"capture_state"`
	ShuttingDown bool   `json:"shutting_down"`
	Sleeping     bool   `json:"sleeping"`
}

// Server serves the health/metrics/status endpoints over plain HTTP.
type Server struct {
	Addr    string
	Capture StatusSource
	Signals *pipeline.Signals

	srv *http.Server
}

// NewServer builds a Server listening on addr.
func NewServer(addr string, capture StatusSource, signals *pipeline.Signals) *Server {
	return &Server{Addr: addr, Capture: capture, Signals: signals}
}

// Run serves until ctx is cancelled, then shuts down gracefully with a
// bounded timeout, matching the teacher's web server's shutdown idiom.
func (s *Server) Run(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("healthweb: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("healthweb: shutdown error: %v", err)
		}
	}()

	log.Printf("healthweb: listening on %s", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		CaptureState: s.Capture.State().String(),
		ShuttingDown: s.Signals.ShuttingDown(),
		Sleeping:     s.Signals.Sleep.IsSet(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
