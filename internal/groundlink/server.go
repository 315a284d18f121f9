// Package groundlink exposes the ground-control HTTP surface: health and
// status endpoints, a websocket telemetry stream, and a JWT-gated abort
// endpoint.
package groundlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relabs-gnc/rocketgnc/internal/allocate"
	"github.com/relabs-gnc/rocketgnc/internal/control"
	"github.com/relabs-gnc/rocketgnc/internal/estimator"
	"github.com/relabs-gnc/rocketgnc/internal/sequencer"
	"github.com/relabs-gnc/rocketgnc/internal/telemetry"
	"github.com/relabs-gnc/rocketgnc/internal/watchtower"
)

// Server owns the ground HTTP listener. It only reads shared state; it
// never drives the flight pipeline directly except through an abort.
type Server struct {
	addr       string
	est        *estimator.Estimator
	law        *control.Law
	alloc      *allocate.Allocator
	seq        *sequencer.Sequencer
	flag       *watchtower.FaultFlag
	httpServer *http.Server
	stream     *telemetryStream
	abortAuth  *abortAuthenticator
}

// New builds a ground link server. abortSecret may be empty, in which
// case the abort endpoint always rejects requests (no key, no remote
// abort).
func New(addr string, est *estimator.Estimator, law *control.Law, alloc *allocate.Allocator, seq *sequencer.Sequencer, flag *watchtower.FaultFlag, abortSecret string) *Server {
	return &Server{
		addr:      addr,
		est:       est,
		law:       law,
		alloc:     alloc,
		seq:       seq,
		flag:      flag,
		stream:    newTelemetryStream(),
		abortAuth: newAbortAuthenticator(abortSecret),
	}
}

// Start wires the mux and launches the listener in the background; it
// returns without waiting for the listener to bind, and a listen failure is
// only recorded in errLog.
func (s *Server) Start(ctx context.Context, errLog *telemetry.ErrorLog) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/api/v1/status", s.statusHandler)
	mux.HandleFunc("/api/v1/abort", s.abortHandler)
	mux.HandleFunc("/ws/telemetry", s.stream.handleWebSocket)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errLog.Log(telemetry.SeverityInfo, "groundlink", fmt.Sprintf("http server stopped: %v", err))
		}
	}()

	go s.broadcastLoop(ctx)
	return nil
}

// Shutdown stops accepting connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": "rocketgnc",
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	att, _ := s.est.Latest.Load()
	demand, _ := s.law.Latest.Load()
	assignment, _ := s.alloc.Latest.Load()
	tripped, reason := s.flag.Tripped()

	json.NewEncoder(w).Encode(map[string]any{
		"state":         s.seq.State().String(),
		"enabled":       s.seq.Enabled(),
		"attitude":      att,
		"demand":        demand,
		"assignment":    assignment,
		"fault_tripped": tripped,
		"fault_reason":  reason,
	})
}

// abortHandler requires a valid bearer JWT before tripping the shared
// fault flag, the only remote-triggerable path to an immediate safe
// shutdown.
func (s *Server) abortHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.abortAuth.authenticate(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	s.flag.Trip("ground abort command")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"status": "abort accepted"})
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			att, ok := s.est.Latest.Load()
			if !ok {
				continue
			}
			s.stream.broadcast(att)
		}
	}
}
