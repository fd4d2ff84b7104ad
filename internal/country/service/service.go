package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"countries/internal/audit"
	"countries/internal/country/metrics"
	"countries/internal/country/models"
	dErrors "countries/pkg/domain-errors"
	"countries/pkg/platform/sentinel"
)

// DefaultMaxOffset bounds how many rows a List call may skip.
const DefaultMaxOffset = 100_000

type Store interface {
	Upsert(ctx context.Context, c models.Country) error
	FindByName(ctx context.Context, name string) (*models.Country, error)
	List(ctx context.Context, offset, limit int) ([]models.Country, error)
	Update(ctx context.Context, current string, c models.Country) error
	Delete(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// Cache is an optional read-through cache for single-country lookups.
// Get reports a miss with sentinel.ErrNotFound. Fill must drop the row when
// name was invalidated after Generation returned gen.
type Cache interface {
	Get(ctx context.Context, name string) (*models.Country, error)
	Generation(ctx context.Context, name string) (int64, error)
	Fill(ctx context.Context, c models.Country, gen int64) error
	Invalidate(ctx context.Context, names ...string) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service validates country requests, runs them against the store and
// translates store failures into domain errors.
type Service struct {
	store          Store
	cache          Cache
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	maxOffset      int
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithCache(cache Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithMaxOffset caps the rows List skips. Windows starting past it are empty
// and never reach the store; the Cassandra store scans every skipped row.
func WithMaxOffset(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxOffset = n
		}
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger:    slog.Default(),
		tracer:    otel.Tracer("countries/internal/country/service"),
		maxOffset: DefaultMaxOffset,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit writes the country described by req, replacing any existing row with the same name.
func (s *Service) Submit(ctx context.Context, req *models.SubmitRequest) error {
	ctx, span := s.tracer.Start(ctx, "country.Submit")
	defer span.End()

	if err := req.Validate(); err != nil {
		return s.fail(span, err)
	}
	country := req.ToCountry()
	span.SetAttributes(attribute.String("country", country.Country))

	start := time.Now()
	err := s.store.Upsert(ctx, country)
	s.observeStore("upsert", start)
	if err != nil {
		return s.fail(span, s.translate("upsert", err, "failed to insert data"))
	}

	s.invalidate(ctx, country.Country)
	s.emit(ctx, audit.Event{
		Action:     audit.ActionCountrySubmitted,
		Country:    country.Country,
		Capital:    country.Capital,
		Population: country.Population,
	})
	if s.metrics != nil {
		s.metrics.IncrementSubmitted()
	}
	return nil
}

// List returns one page of countries in store order. It never returns nil on success.
func (s *Service) List(ctx context.Context, page models.Page) ([]models.Country, error) {
	ctx, span := s.tracer.Start(ctx, "country.List")
	defer span.End()
	span.SetAttributes(attribute.Int("page", page.Page), attribute.Int("limit", page.Limit))
	if page.Offset() > s.maxOffset {
		return []models.Country{}, nil
	}

	start := time.Now()
	countries, err := s.store.List(ctx, page.Offset(), page.Limit)
	s.observeStore("list", start)
	if err != nil {
		return nil, s.fail(span, s.translate("list", err, "failed to fetch data"))
	}
	if countries == nil {
		countries = []models.Country{}
	}
	return countries, nil
}

// Get looks a country up by exact name, consulting the cache first when one is configured.
func (s *Service) Get(ctx context.Context, name string) (*models.Country, error) {
	ctx, span := s.tracer.Start(ctx, "country.Get")
	defer span.End()
	span.SetAttributes(attribute.String("country", name))

	if c := s.cached(ctx, name); c != nil {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return c, nil
	}
	gen, fillable := s.generation(ctx, name)

	start := time.Now()
	country, err := s.store.FindByName(ctx, name)
	s.observeStore("find", start)
	if err != nil {
		return nil, s.fail(span, s.translate("find", err, "failed to fetch country"))
	}

	if fillable {
		if err := s.cache.Fill(ctx, *country, gen); err != nil {
			s.logger.WarnContext(ctx, "failed to cache country", "country", name, "error", err)
		}
	}
	return country, nil
}

// Update rewrites the country stored under current. When req names a different
// country the row is renamed; renaming onto an existing name is a conflict.
func (s *Service) Update(ctx context.Context, current string, req *models.UpdateRequest) error {
	ctx, span := s.tracer.Start(ctx, "country.Update")
	defer span.End()
	span.SetAttributes(attribute.String("country", current))

	if err := req.Validate(); err != nil {
		return s.fail(span, err)
	}
	country := req.ToCountry()

	start := time.Now()
	err := s.store.Update(ctx, current, country)
	s.observeStore("update", start)
	if err != nil {
		return s.fail(span, s.translate("update", err, "failed to update country"))
	}

	s.invalidate(ctx, current, country.Country)
	event := audit.Event{
		Action:     audit.ActionCountryUpdated,
		Country:    country.Country,
		Capital:    country.Capital,
		Population: country.Population,
	}
	if req.Renamed(current) {
		event.PreviousCountry = current
	}
	s.emit(ctx, event)
	if s.metrics != nil {
		s.metrics.IncrementUpdated()
	}
	return nil
}

// Delete removes the country stored under name.
func (s *Service) Delete(ctx context.Context, name string) error {
	ctx, span := s.tracer.Start(ctx, "country.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("country", name))

	start := time.Now()
	err := s.store.Delete(ctx, name)
	s.observeStore("delete", start)
	if err != nil {
		return s.fail(span, s.translate("delete", err, "failed to delete country"))
	}

	s.invalidate(ctx, name)
	s.emit(ctx, audit.Event{Action: audit.ActionCountryDeleted, Country: name})
	if s.metrics != nil {
		s.metrics.IncrementDeleted()
	}
	return nil
}

// Health reports whether the store is reachable.
func (s *Service) Health(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store unavailable")
	}
	return nil
}

// translate maps store errors onto domain errors. Anything that is not a known
// sentinel is a storage failure and is counted.
func (s *Service) translate(op string, err error, internalMsg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "Country not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "a country with that name already exists")
	}
	if s.metrics != nil {
		s.metrics.IncrementStoreErrors(op)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}

func (s *Service) fail(span trace.Span, err error) error {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) cached(ctx context.Context, name string) *models.Country {
	if s.cache == nil {
		return nil
	}
	c, err := s.cache.Get(ctx, name)
	if err == nil {
		if s.metrics != nil {
			s.metrics.IncrementCacheHit()
		}
		return c
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "cache lookup failed", "country", name, "error", err)
	}
	if s.metrics != nil {
		s.metrics.IncrementCacheMiss()
	}
	return nil
}

// generation must be read before the store lookup; without it the row is not cached.
func (s *Service) generation(ctx context.Context, name string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	gen, err := s.cache.Generation(ctx, name)
	if err != nil {
		s.logger.WarnContext(ctx, "cache generation lookup failed", "country", name, "error", err)
		return 0, false
	}
	return gen, true
}

func (s *Service) invalidate(ctx context.Context, names ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, names...); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached countries", "countries", names, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit change event", "action", event.Action, "country", event.Country, "error", err)
	}
}

func (s *Service) observeStore(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStore(op, start)
	}
}
