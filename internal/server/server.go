package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/ghostrec/internal/control"
	"github.com/audiolibrelab/ghostrec/internal/dispatcher"
)

// StatusProvider reports the dispatcher state
type StatusProvider interface {
	Status() dispatcher.Status
}

// Server is the HTTP control front-end. It feeds the same mailbox as the
// control channel listener and never touches the capture process itself.
type Server struct {
	addr     string
	mailbox  control.Setter
	status   StatusProvider
	gatherer prometheus.Gatherer
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Success bool              `json:"success"`
	Status  dispatcher.Status `json:"status"`
}

func New(addr string, mailbox control.Setter, status StatusProvider, gatherer prometheus.Gatherer) *Server {
	return &Server{
		addr:     addr,
		mailbox:  mailbox,
		status:   status,
		gatherer: gatherer,
	}
}

// Handler returns the routes served by the front-end
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/command/", s.handleCommand)
	mux.HandleFunc("/api/status", s.handleStatus)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Starting HTTP control server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleCommand queues a control command: POST /api/command/{start|stop|pause|resume|exit}
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/api/command/")
	sig, err := control.ParseSignal(token)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "command")
		return
	}

	s.mailbox.Set(sig)
	slog.Info("Control command received", "command", sig.String(), "source", "http", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Command '%s' queued", sig),
	})
}

// handleStatus returns the current state and session info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		Success: true,
		Status:  s.status.Status(),
	})
}

func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Warn("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}
