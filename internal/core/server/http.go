package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solatis/healthsignals/internal/core/api"
	"github.com/solatis/healthsignals/internal/core/config"
	"github.com/solatis/healthsignals/internal/core/logging"
	"github.com/solatis/healthsignals/internal/core/metrics"
	"github.com/solatis/healthsignals/internal/types"
)

// maxBodyBytes bounds a POST /evaluate body; a full inline rule grid fits.
const maxBodyBytes = 32 << 20

// HTTPServer serves the JSON API, health and Prometheus endpoints.
type HTTPServer struct {
	service *api.EvaluationService
	metrics *metrics.Metrics
	logger  *slog.Logger
	router  *chi.Mux
	server  *http.Server
	config  *config.ServiceConfig
}

// NewHTTPServer creates the HTTP server and its routes. /metrics serves the
// service's own collectors and is absent when the service has none.
func NewHTTPServer(cfg *config.ServiceConfig, service *api.EvaluationService, logger *slog.Logger) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &HTTPServer{
		service: service,
		metrics: service.Metrics(),
		logger:  logger,
		config:  cfg,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *HTTPServer) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if s.config.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.config.RequestTimeout))
		}
		r.Post("/evaluate", s.handleEvaluate)
		r.Get("/rules", s.handleListRules)
		r.Get("/evaluations/{evaluationId}", s.handleGetEvaluation)
	})

	s.router = r
}

// ServeHTTP makes the server usable with httptest.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start binds the configured address and serves until Shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}
	return s.Serve(listener)
}

// Serve serves HTTP requests on an existing listener.
func (s *HTTPServer) Serve(listener net.Listener) error {
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req api.EvaluateRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	resp, err := s.service.Evaluate(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, "evaluation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleListRules(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.service.ListRules(r.Context())
	if err != nil {
		respondServiceError(w, r, "failed to load rules", err)
		return
	}

	etag := `"` + catalog.ETag + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondJSON(w, http.StatusOK, catalog)
}

func (s *HTTPServer) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseEvaluationID(chi.URLParam(r, "evaluationId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid evaluation id", err)
		return
	}

	rec, err := s.service.Lookup(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, "evaluation lookup failed", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// respondServiceError maps service errors to HTTP status codes. Internal
// errors are logged with the request-scoped logger.
func respondServiceError(w http.ResponseWriter, r *http.Request, message string, err error) {
	var code int
	switch api.KindOf(err) {
	case api.KindInvalid:
		code = http.StatusBadRequest
	case api.KindNotFound:
		code = http.StatusNotFound
	case api.KindUnavailable:
		code = http.StatusServiceUnavailable
	case api.KindDeadline:
		code = http.StatusGatewayTimeout
	case api.KindCanceled:
		// Client went away; status is for the access log only
		code = 499
	default:
		code = http.StatusInternalServerError
		logging.FromContext(r.Context()).Error(message, "error", err)
	}
	respondError(w, code, message, err)
}

// requestLogger stores a logger tagged with the request ID in the request
// context and logs each request once it completes.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))
		r = r.WithContext(logging.WithLogger(r.Context(), logger))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
