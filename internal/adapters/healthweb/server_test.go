package healthweb

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cursedremoteid/edge/internal/adapters/capture"
	"github.com/cursedremoteid/edge/internal/pipeline"
)

type fakeStatusSource struct {
	state capture.State
}

func (f fakeStatusSource) State() capture.State { return f.state }

func newTestRouter(s *Server) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return router
}

func TestServer_Healthz(t *testing.T) {
	s := NewServer(":0", fakeStatusSource{state: capture.StateCapturing}, pipeline.NewSignals())
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServer_Status(t *testing.T) {
	signals := pipeline.NewSignals()
	signals.Sleep.Set()
	s := NewServer(":0", fakeStatusSource{state: capture.StateDraining}, signals)
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.CaptureState != "draining" {
		t.Errorf("CaptureState = %q, want %q", got.CaptureState, "draining")
	}
	if !got.ShuttingDown || !got.Sleeping {
		t.Errorf("ShuttingDown=%v Sleeping=%v, want both true", got.ShuttingDown, got.Sleeping)
	}
}

func TestServer_Metrics(t *testing.T) {
	s := NewServer(":0", fakeStatusSource{}, pipeline.NewSignals())
	router := newTestRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
