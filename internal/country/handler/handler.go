package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"countries/internal/country/models"
	"countries/internal/platform/metrics"
	"countries/internal/platform/middleware"
	dErrors "countries/pkg/domain-errors"
	"countries/pkg/platform/httputil"
)

// Service defines the interface for country operations.
type Service interface {
	Submit(ctx context.Context, req *models.SubmitRequest) error
	List(ctx context.Context, page models.Page) ([]models.Country, error)
	Get(ctx context.Context, name string) (*models.Country, error)
	Update(ctx context.Context, current string, req *models.UpdateRequest) error
	Delete(ctx context.Context, name string) error
}

const defaultMaxPageLimit = 100

// DefaultTimeout is the request deadline applied to the country routes.
const DefaultTimeout = 30 * time.Second

// Handler handles the country record endpoints.
type Handler struct {
	logger       *slog.Logger
	countries    Service
	metrics      *metrics.Metrics
	maxPageLimit int
	timeout      time.Duration
}

type Option func(*Handler)

// WithMaxPageLimit caps the limit query parameter of GET /countries.
func WithMaxPageLimit(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxPageLimit = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithTimeout bounds each request. Zero disables the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

// New creates a new country Handler.
func New(countries Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:       logger,
		countries:    countries,
		maxPageLimit: defaultMaxPageLimit,
		timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the country routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	countryRouter := chi.NewRouter()
	if h.timeout > 0 {
		countryRouter.Use(middleware.Timeout(h.timeout))
	}
	countryRouter.Use(middleware.ContentTypeJSON)
	countryRouter.Use(middleware.LatencyMiddleware(h.metrics))

	countryRouter.Post("/submit", h.handleSubmit)
	countryRouter.Get("/countries", h.handleList)
	countryRouter.Get("/countries/{country}", h.handleGet)
	countryRouter.Put("/countries/{country}", h.handleUpdate)
	countryRouter.Delete("/countries/{country}", h.handleDelete)

	r.Mount("/", countryRouter)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.countries.Submit(ctx, req); err != nil {
		h.writeServiceError(ctx, w, err, "failed to submit country", requestID)
		return
	}

	h.logger.InfoContext(ctx, "country submitted",
		"request_id", requestID,
		"country", req.Country,
	)
	httputil.WriteJSON(w, http.StatusOK, &models.MessageResponse{Message: models.MsgInserted})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	query := r.URL.Query()
	page := models.ParsePage(query.Get("page"), query.Get("limit"), h.maxPageLimit)

	countries, err := h.countries.List(ctx, page)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list countries", requestID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, countries)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	name, ok := h.countryParam(w, r)
	if !ok {
		return
	}

	country, err := h.countries.Get(ctx, name)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to get country", requestID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, country)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	name, ok := h.countryParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.countries.Update(ctx, name, req); err != nil {
		h.writeServiceError(ctx, w, err, "failed to update country", requestID)
		return
	}

	h.logger.InfoContext(ctx, "country updated",
		"request_id", requestID,
		"country", name,
		"new_country", req.NewCountry,
	)
	httputil.WriteJSON(w, http.StatusOK, &models.MessageResponse{Message: models.MsgUpdated})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	name, ok := h.countryParam(w, r)
	if !ok {
		return
	}

	if err := h.countries.Delete(ctx, name); err != nil {
		h.writeServiceError(ctx, w, err, "failed to delete country", requestID)
		return
	}

	h.logger.InfoContext(ctx, "country deleted",
		"request_id", requestID,
		"country", name,
	)
	httputil.WriteJSON(w, http.StatusOK, &models.MessageResponse{Message: models.MsgDeleted})
}

// countryParam returns the decoded {country} path segment.
func (h *Handler) countryParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "country")
	if r.URL.RawPath == "" {
		return raw, true
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid country in path"))
		return "", false
	}
	return name, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg, requestID string) {
	de, ok := dErrors.As(err)
	if ok && dErrors.ToHTTPStatus(de.Code) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestID,
			"error", err,
		)
	} else {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestID,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
