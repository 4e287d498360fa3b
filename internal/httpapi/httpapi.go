// Package httpapi is the thin HTTP control plane over internal/service: it
// maps each route to one service call and translates error kinds to status
// codes. It carries no business logic of its own.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"time"

	"github.com/kestrelops/venvorch/internal/orcherrors"
	"github.com/kestrelops/venvorch/internal/service"
)

const shutdownGrace = 10 * time.Second

// Server wires internal/service onto an *http.ServeMux under the /api
// prefix.
type Server struct {
	svc *service.Service
	log *slog.Logger
	mux *http.ServeMux
}

// New builds a Server with every route registered.
func New(svc *service.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{svc: svc, log: log, mux: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler, so Server can be passed straight to
// http.Server or httptest.NewServer.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/run/{cluster_db_id}", s.handleRun)
	s.mux.HandleFunc("POST /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/access_info", s.handleAccessInfo)
	s.mux.HandleFunc("POST /api/restart", s.handleRestart)
	s.mux.HandleFunc("POST /api/stop", s.handleStop)
	s.mux.HandleFunc("POST /api/extend_ttl", s.handleExtendTTL)
	s.mux.HandleFunc("GET /api/running_clusters", s.handleRunningClusters)
	s.mux.HandleFunc("GET /api/resources/summary", s.handleResourcesSummary)
	s.mux.HandleFunc("GET /api/catalog", s.handleCatalog)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeJSONError maps err's concrete type to an HTTP status per §7 of the
// orchestrator's error taxonomy, and always renders {"error": "message"} —
// callers never see a Go stack trace.
func writeJSONError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, new(*orcherrors.ValidationError)):
		status = http.StatusBadRequest
	case errors.As(err, new(*orcherrors.NotFoundError)):
		status = http.StatusNotFound
	case errors.As(err, new(*orcherrors.NoAvailablePortsError)):
		status = http.StatusInternalServerError
	case errors.As(err, new(*orcherrors.DockerEnvError)):
		status = http.StatusInternalServerError
	case errors.As(err, new(*orcherrors.VMEnvError)):
		status = http.StatusInternalServerError
	case errors.As(err, new(*orcherrors.RuntimeError)):
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "error", err, "status", status)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type sessionBody struct {
	SessionID string            `json:"session_id"`
	Variables map[string]string `json:"variables,omitempty"`
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return orcherrors.NewValidation("missing request body")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return orcherrors.NewValidation("malformed JSON body: %v", err)
	}
	return nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	clusterDBID := r.PathValue("cluster_db_id")
	var body sessionBody
	if err := decodeBody(r, &body); err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	result, err := s.svc.Run(r.Context(), clusterDBID, body.Variables, body.SessionID)
	if err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      result.Status,
		"access_info": result.AccessInfo,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if err := decodeBody(r, &body); err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	result, err := s.svc.Status(body.SessionID)
	if err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cluster_id":            result.ClusterID,
		"ttl_remaining_seconds": result.TTLRemainingSecs,
		"statuses":              result.Statuses,
	})
}

func (s *Server) handleAccessInfo(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if err := decodeBody(r, &body); err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	accessInfo, err := s.svc.AccessInfo(body.SessionID)
	if err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_info": accessInfo})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if err := decodeBody(r, &body); err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	status, err := s.svc.Restart(r.Context(), body.SessionID)
	if err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if err := decodeBody(r, &body); err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	status, err := s.svc.Stop(r.Context(), body.SessionID)
	if err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleExtendTTL(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if err := decodeBody(r, &body); err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	result, err := s.svc.ExtendTTL(body.SessionID)
	if err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                result.Status,
		"ttl_remaining_seconds": result.TTLRemainingSecs,
	})
}

func (s *Server) handleRunningClusters(w http.ResponseWriter, r *http.Request) {
	clusters := s.svc.RunningClusters(r.Context())
	out := make([]map[string]string, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, map[string]string{
			"session_id":   c.SessionID,
			"cluster_name": c.ClusterName,
			"cluster_id":   c.ClusterID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResourcesSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.ResourcesSummary(r.Context())
	if err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.svc.Catalog(r.Context())
	if err != nil {
		writeJSONError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"docker_image_tags": catalog.DockerImageTags,
		"vm_images":         catalog.VMImages,
	})
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		log.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
