// Package http serves the document REST API.
//
//	GET    /api/{collection}           find (where, sort, limit, page)
//	POST   /api/{collection}           create
//	GET    /api/{collection}/{id}      find by ID
//	PATCH  /api/{collection}/{id}      update
//	DELETE /api/{collection}/{id}      delete
//	GET    /api/globals/{slug}         read a global
//	POST   /api/globals/{slug}         update a global
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/contentcore/adapters/metrics"
	"github.com/artpar/contentcore/core/hooks"
	"github.com/artpar/contentcore/core/runtime"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/storage"
)

// maxBodyBytes limits request bodies.
const maxBodyBytes = 10 << 20

// Handler serves documents through a runtime.
type Handler struct {
	rt     *runtime.Runtime
	logger zerolog.Logger
}

// NewHandler creates a document API handler.
func NewHandler(rt *runtime.Runtime, logger zerolog.Logger) *Handler {
	return &Handler{rt: rt, logger: logger}
}

// Routes returns the API routes, to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/globals/{slug}", h.findGlobal)
	r.Post("/globals/{slug}", h.updateGlobal)

	r.Get("/{collection}", h.find)
	r.Post("/{collection}", h.create)
	r.Get("/{collection}/{id}", h.findByID)
	r.Patch("/{collection}/{id}", h.update)
	r.Delete("/{collection}/{id}", h.delete)

	return r
}

// DocResponse is returned by writes.
type DocResponse struct {
	Doc     map[string]any `json:"doc"`
	Message string         `json:"message"`
}

// DeleteResponse is returned by deletes.
type DeleteResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "collection")

	coll, ok := h.rt.Registry().Collection(slug)
	if !ok {
		h.writeError(w, r, runtime.ErrUnknownCollection)
		return
	}

	q, err := ParseQuery(r.URL.Query(), coll.Fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.rt.Find(r.Context(), slug, q, h.request(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) findByID(w http.ResponseWriter, r *http.Request) {
	doc, err := h.rt.FindByID(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), h.request(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "collection")

	data, err := decodeBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err := h.rt.Create(r.Context(), slug, data, h.request(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, DocResponse{
		Doc:     doc,
		Message: h.singular(slug) + " successfully created.",
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "collection")

	data, err := decodeBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err := h.rt.Update(r.Context(), slug, chi.URLParam(r, "id"), data, h.request(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocResponse{Doc: doc, Message: "Updated successfully."})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.rt.Delete(r.Context(), chi.URLParam(r, "collection"), id, h.request(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{ID: id, Message: "Deleted successfully."})
}

func (h *Handler) findGlobal(w http.ResponseWriter, r *http.Request) {
	doc, err := h.rt.FindGlobal(r.Context(), chi.URLParam(r, "slug"), h.request(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) updateGlobal(w http.ResponseWriter, r *http.Request) {
	data, err := decodeBody(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err := h.rt.UpdateGlobal(r.Context(), chi.URLParam(r, "slug"), data, h.request(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocResponse{Doc: doc, Message: "Updated successfully."})
}

// request builds the hook request of an HTTP request.
func (h *Handler) request(r *http.Request) *schema.Request {
	return &schema.Request{
		Locale:         r.URL.Query().Get("locale"),
		FallbackLocale: r.URL.Query().Get("fallback-locale"),
		Context:        map[string]any{},
		Logger: h.logger.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Logger(),
	}
}

func (h *Handler) singular(slug string) string {
	if coll, ok := h.rt.Registry().Collection(slug); ok && coll.Labels.Singular != "" {
		return coll.Labels.Singular
	}
	return slug
}

var errBadBody = errors.New("request body must be a JSON object")

func decodeBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errBadBody
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return map[string]any{}, nil
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil || data == nil {
		return nil, errBadBody
	}
	return data, nil
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Errors []ErrorDetail `json:"errors"`
}

// ErrorDetail describes one error. Data carries field errors for validation failures.
type ErrorDetail struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	var verr *hooks.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, errBadBody),
		errors.Is(err, storage.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, runtime.ErrUnknownCollection),
		errors.Is(err, runtime.ErrUnknownGlobal):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)

	detail := ErrorDetail{Name: http.StatusText(status), Message: err.Error()}
	var verr *hooks.ValidationError
	if errors.As(err, &verr) {
		detail.Name = "ValidationError"
		detail.Data = verr.Errors
	}
	if status == http.StatusInternalServerError {
		h.logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request failed")
		detail.Message = "Something went wrong."
	}

	writeJSON(w, status, ErrorResponse{Errors: []ErrorDetail{detail}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	store HealthChecker
}

// NewHealthHandler creates a new health handler. store may be nil.
func NewHealthHandler(store HealthChecker) *HealthHandler {
	return &HealthHandler{store: store}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness checks that the store answers.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// VersionHandler returns the service version.
func VersionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "contentcore"})
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics     *metrics.Collector
	MetricsPath string              // defaults to /metrics
	Gatherer    prometheus.Gatherer // defaults to the default registry
	Health      *HealthHandler
	Version     string
	Timeout     time.Duration
}

// NewRouter creates the main HTTP router.
func NewRouter(api *Handler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil)
	}
	r.Get("/healthz", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		if cfg.Gatherer != nil {
			r.Handle(path, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
		} else {
			r.Handle(path, promhttp.Handler())
		}
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	r.Get("/version", VersionHandler(version))

	r.Mount("/api", api.Routes())
	return r
}

func skipObservation(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics"
}

// NewMetricsMiddleware creates middleware that records request metrics by route pattern.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipObservation(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := metrics.StatusClass(ww.Status())

			m.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// NewLoggingMiddleware creates middleware that logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if skipObservation(r.URL.Path) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
