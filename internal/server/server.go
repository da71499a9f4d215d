// Package server exposes the measurement pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"

	"github.com/menta2k/thread-gauge/internal/logger"
	"github.com/menta2k/thread-gauge/internal/utils"
	"github.com/menta2k/thread-gauge/pkg/pipeline"
	"github.com/menta2k/thread-gauge/pkg/types"
)

// statusClientClosedRequest is nginx's code for a request the client abandoned
const statusClientClosedRequest = 499

// Options configure a Server
type Options struct {
	StaticDir      string
	RequestTimeout time.Duration
	MaxUploadMB    int
	// Health reports detector availability; nil means always healthy
	Health func(ctx context.Context) error
}

// Server serves the analyze endpoint, debug overlays and the static front end
type Server struct {
	orch   atomic.Pointer[pipeline.Orchestrator]
	opts   Options
	log    *logger.Logger
	bundle *i18n.Bundle
}

// New creates a server for orch
func New(orch *pipeline.Orchestrator, opts Options, log *logger.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 20
	}
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{opts: opts, log: log, bundle: newBundle()}
	s.orch.Store(orch)
	return s
}

// SetOrchestrator swaps the pipeline used by new requests
func (s *Server) SetOrchestrator(orch *pipeline.Orchestrator) {
	s.orch.Store(orch)
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /analisar", s.handleAnalyze)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /debug/{name}", s.handleDebugImage)
	for _, page := range []struct{ path, name string }{
		{"/terms", "terms"}, {"/termos", "terms"},
		{"/privacy", "privacy"}, {"/privacidade", "privacy"},
	} {
		name := page.name
		mux.HandleFunc("GET "+page.path, func(w http.ResponseWriter, r *http.Request) { s.handlePage(w, r, name) })
	}
	if s.opts.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.opts.StaticDir)))
	}
	return corsMiddleware(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server starting on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type analyzeResponse struct {
	*types.Report
	Error string `json:"error,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	lang := r.Header.Get("Accept-Language")
	limit := int64(s.opts.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, s.translate(lang, msgUploadTooLarge, map[string]interface{}{"Limit": s.opts.MaxUploadMB}), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, s.translate(lang, msgMissingFile, nil), http.StatusBadRequest)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, s.translate(lang, msgMissingFile, nil), http.StatusBadRequest)
		return
	}
	defer file.Close()

	value := r.FormValue("internal")
	if value == "" {
		value = r.FormValue("interna")
	}
	if value == "" {
		s.respondError(w, s.translate(lang, msgMissingOrientation, nil), http.StatusBadRequest)
		return
	}
	orientation, err := types.ParseOrientation(value)
	if err != nil {
		s.respondError(w, s.translate(lang, msgBadOrientation, map[string]interface{}{"Value": value}), http.StatusBadRequest)
		return
	}

	if !utils.IsImageFile(header.Filename) {
		s.log.Debug("Upload %q has an unrecognized extension, decoding by content", header.Filename)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, s.translate(lang, msgMissingFile, nil), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	report, err := s.orch.Load().Analyze(ctx, data, orientation)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.log.Warning("Analysis of %q timed out after %v", header.Filename, time.Since(start))
			s.respondError(w, s.translate(lang, msgTimeout, nil), http.StatusGatewayTimeout)
			return
		}
		if errors.Is(err, context.Canceled) {
			s.log.Warning("Client went away during analysis of %q after %v", header.Filename, time.Since(start))
			w.WriteHeader(statusClientClosedRequest)
			return
		}
		s.log.Error("Analysis of %q failed: %v", header.Filename, err)
		s.respondError(w, s.translate(lang, msgUnexpected, map[string]interface{}{"Error": err.Error()}), http.StatusInternalServerError)
		return
	}
	s.log.Info("Analyzed %q (%s) in %v: %s %s", header.Filename, orientation, time.Since(start).Round(time.Millisecond), report.Status, report.Reason)

	resp := analyzeResponse{Report: withDebugURL(report)}
	status := http.StatusOK
	if !report.OK() {
		resp.Error = s.translate(lang, string(report.Reason), nil)
		status = http.StatusBadRequest
	}
	respondJSON(w, resp, status)
}

// withDebugURL returns a copy of r whose debug image is a /debug/ URL
func withDebugURL(r *types.Report) *types.Report {
	out := *r
	if out.DebugImagePath != "" {
		out.DebugImagePath = "/debug/" + filepath.Base(out.DebugImagePath)
	}
	return &out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			respondJSON(w, map[string]string{"status": "degraded", "error": err.Error()}, http.StatusServiceUnavailable)
			return
		}
	}
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleDebugImage(w http.ResponseWriter, r *http.Request) {
	dir := s.orch.Load().Options().DebugDir
	name := r.PathValue("name")
	if dir == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(dir, name)
	if !utils.FileExists(path) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept-Language")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"status": string(types.StatusError), "error": message}, status)
}
