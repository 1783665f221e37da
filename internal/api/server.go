// Package api provides the HTTP handlers for predictions and actual-price
// submissions.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/fidde/agripredict/internal/schema"
	"github.com/fidde/agripredict/internal/service"
	"github.com/fidde/agripredict/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const maxBodyBytes = 1 << 20

// Config configures the HTTP server.
type Config struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration

	// SubmitRate limits submissions per client IP; zero disables it.
	SubmitRate  float64
	SubmitBurst int

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers; otherwise
	// clients can pick their own rate-limit key.
	TrustProxy bool

	// Static serves the single-page UI. Nil disables it.
	Static http.FileSystem

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server is the REST API server.
type Server struct {
	svc    *service.Service
	router *chi.Mux
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, svc *service.Service) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		svc:    svc,
		router: chi.NewRouter(),
		logger: cfg.Logger,
	}

	// Middleware
	s.router.Use(middleware.RequestID)
	if cfg.TrustProxy {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.SubmitRate > 0 {
		limit = NewRateLimiter(cfg.SubmitRate, cfg.SubmitBurst).Middleware
	}

	// Legacy form endpoints
	s.router.Post("/predict", s.predict)
	s.router.With(limit).Post("/submit_actual_data", s.submitActual)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)
		r.Get("/ready", s.HandleReady)
		r.Get("/schema", s.getSchema)

		r.Post("/predict", s.predict)

		r.With(limit).Post("/observations", s.submitActual)
		r.Get("/observations", s.listObservations)

		r.Post("/admin/reload", s.reload)
	})

	if cfg.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	if cfg.Static != nil {
		s.router.Get("/*", spaHandler(cfg.Static))
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// predict returns a price quote.
// POST /predict, POST /api/v1/predict
func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(w, r)
	if err != nil {
		respondMalformed(w, err)
		return
	}

	quote, err := s.svc.Predict(r.Context(), payload)
	if err != nil {
		s.respondServiceError(w, err, "An error occurred during prediction. Please try again later.")
		return
	}

	respondJSON(w, http.StatusOK, quote)
}

// SubmitResponse acknowledges a stored observation.
type SubmitResponse struct {
	Message    string    `json:"message"`
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
}

// submitActual appends an observed market price.
// POST /submit_actual_data, POST /api/v1/observations
func (s *Server) submitActual(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(w, r)
	if err != nil {
		respondMalformed(w, err)
		return
	}

	obs, err := s.svc.Submit(r.Context(), payload)
	if err != nil {
		s.respondServiceError(w, err, "Failed to save data to CSV file(s).")
		return
	}

	respondJSON(w, http.StatusOK, SubmitResponse{
		Message:    "Data submitted successfully to CSVs!",
		ID:         obs.ID,
		ReceivedAt: obs.ReceivedAt,
	})
}

// ObservationList wraps a page of observations.
type ObservationList struct {
	Data  []*models.Observation `json:"data"`
	Limit int                   `json:"limit"`
}

// listObservations returns recent observations from a queryable mirror.
// GET /api/v1/observations?limit=N
func (s *Server) listObservations(w http.ResponseWriter, r *http.Request) {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxLimit)
	}

	obs, err := s.svc.Observations(r.Context(), limit)
	if err != nil {
		if errors.Is(err, service.ErrNoObservationReader) {
			respondError(w, http.StatusNotImplemented, err.Error())
			return
		}
		s.logger.Error("failed to list observations", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list observations.")
		return
	}
	if obs == nil {
		obs = []*models.Observation{}
	}

	respondJSON(w, http.StatusOK, ObservationList{Data: obs, Limit: limit})
}

// SchemaResponse describes the accepted inputs and feature columns.
type SchemaResponse struct {
	Columns     []string                 `json:"columns"`
	Numeric     []schema.NumericColumn   `json:"numeric"`
	Categorical []CategoricalDescription `json:"categorical"`
	Policy      string                   `json:"unmapped_policy"`
}

// CategoricalDescription is a categorical field with its encoding.
type CategoricalDescription struct {
	schema.CategoricalField
	Unmapped []string `json:"unmapped"`
}

// getSchema returns the feature schema.
// GET /api/v1/schema
func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	sc := s.svc.Schema()

	cats := make([]CategoricalDescription, 0, len(sc.Categorical()))
	for _, c := range sc.Categorical() {
		cats = append(cats, CategoricalDescription{
			CategoricalField: c,
			Unmapped:         sc.Unmapped(c.Field),
		})
	}

	respondJSON(w, http.StatusOK, SchemaResponse{
		Columns:     sc.Columns(),
		Numeric:     sc.Numeric(),
		Categorical: cats,
		Policy:      string(s.svc.Policy()),
	})
}

// reload re-reads the artifacts and swaps them in.
// POST /api/v1/admin/reload
func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	respondBundle(w, s.svc.Reload(), string(s.svc.Policy()))
}

// decodePayload reads a JSON object, keeping numbers as json.Number.
func decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("request body is empty")
		}
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	if dec.More() {
		return nil, errors.New("request body must contain a single JSON object")
	}
	return payload, nil
}

// ErrorResponse is the error body.
type ErrorResponse struct {
	Error    string              `json:"error"`
	Messages map[string][]string `json:"messages,omitempty"`
	Details  string              `json:"details,omitempty"`
}

func respondMalformed(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request data format.",
		Details: err.Error(),
	})
}

// respondServiceError maps the error taxonomy to HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, err error, fallback string) {
	var (
		verr     *models.ValidationError
		unmapped *models.UnmappedCategoryError
		perr     *models.PersistenceError
	)

	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:    "Validation Error",
			Messages: verr.Fields,
		})
	case errors.As(err, &unmapped):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "Unmapped category",
			Messages: map[string][]string{
				unmapped.Field: {fmt.Sprintf("%q has no feature column in the loaded model.", unmapped.Value)},
			},
		})
	case errors.Is(err, models.ErrPipelineNotReady):
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "Prediction models are not loaded. Please check server logs.",
		})
	case errors.As(err, &perr):
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   fallback,
			Details: perr.Error(),
		})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondError(w, http.StatusServiceUnavailable, "Request cancelled.")
	default:
		// ArtifactMismatch, NonFinitePrediction and anything unexpected.
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   fallback,
			Details: err.Error(),
		})
	}
}

// respondJSON writes a JSON response.
// The body is encoded before the status is written, so an unencodable value
// becomes a 500 instead of an empty success.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"Failed to encode response."}`+"\n")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// spaHandler serves files from fsys, falling back to index.html for
// unknown paths so client-side routes resolve.
func spaHandler(fsys http.FileSystem) http.HandlerFunc {
	fileServer := http.FileServer(fsys)
	return func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if name != "/" && !strings.HasPrefix(name, "/api/") {
			if f, err := fsys.Open(name); err == nil {
				stat, statErr := f.Stat()
				f.Close()
				if statErr == nil && !stat.IsDir() {
					fileServer.ServeHTTP(w, r)
					return
				}
			}
		}
		if strings.HasPrefix(name, "/api/") {
			respondError(w, http.StatusNotFound, "not found")
			return
		}

		index, err := fsys.Open("/index.html")
		if err != nil {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		defer index.Close()
		stat, err := index.Stat()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to stat index.html")
			return
		}
		http.ServeContent(w, r, "index.html", stat.ModTime(), index)
	}
}
