package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"countries/internal/audit"
	"countries/internal/country/metrics"
	"countries/internal/country/models"
	"countries/internal/country/store"
	dErrors "countries/pkg/domain-errors"
	"countries/pkg/platform/sentinel"
	"countries/pkg/requestcontext"
)

// =============================================================================
// Test doubles
// =============================================================================

type mapCache struct {
	mu          sync.Mutex
	rows        map[string]models.Country
	generations map[string]int64
	invalidated []string
	failGet     bool
}

func newMapCache() *mapCache {
	return &mapCache{rows: make(map[string]models.Country), generations: make(map[string]int64)}
}

func (c *mapCache) Get(_ context.Context, name string) (*models.Country, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, errors.New("connection refused")
	}
	row, ok := c.rows[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &row, nil
}

func (c *mapCache) Generation(_ context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[name], nil
}

func (c *mapCache) Fill(_ context.Context, country models.Country, gen int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[country.Country] == gen {
		c.rows[country.Country] = country
	}
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, names ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		c.generations[name]++
		delete(c.rows, name)
	}
	c.invalidated = append(c.invalidated, names...)
	return nil
}

// brokenStore fails every call with a driver-level error.
type brokenStore struct{}

var errDriver = errors.New("no hosts available in the pool")

func (brokenStore) Upsert(context.Context, models.Country) error { return errDriver }
func (brokenStore) FindByName(context.Context, string) (*models.Country, error) {
	return nil, errDriver
}
func (brokenStore) List(context.Context, int, int) ([]models.Country, error) { return nil, errDriver }
func (brokenStore) Update(context.Context, string, models.Country) error    { return errDriver }
func (brokenStore) Delete(context.Context, string) error                    { return errDriver }
func (brokenStore) Ping(context.Context) error                              { return errDriver }

// pausingStore reads the row, then holds the result until release is closed.
type pausingStore struct {
	*store.InMemory
	read    chan struct{}
	release chan struct{}
}

func newPausingStore(inner *store.InMemory) *pausingStore {
	return &pausingStore{InMemory: inner, read: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausingStore) FindByName(ctx context.Context, name string) (*models.Country, error) {
	c, err := p.InMemory.FindByName(ctx, name)
	close(p.read)
	<-p.release
	return c, err
}

// =============================================================================
// Country Service Test Suite
// =============================================================================

type CountryServiceSuite struct {
	suite.Suite
	store     *store.InMemory
	cache     *mapCache
	publisher *audit.Publisher
	metrics   *metrics.Metrics
	service   *Service
	ctx       context.Context
}

func TestCountryServiceSuite(t *testing.T) {
	suite.Run(t, new(CountryServiceSuite))
}

func (s *CountryServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.cache = newMapCache()
	s.publisher = audit.NewPublisher(32)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store,
		WithCache(s.cache),
		WithAuditPublisher(s.publisher),
		WithMetrics(s.metrics),
	)
	s.ctx = requestcontext.WithRequestID(context.Background(), "req-1")
}

func (s *CountryServiceSuite) drainEvents() []audit.Event {
	var out []audit.Event
	for {
		select {
		case e := <-s.publisher.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func submitReq(country, capital string, population models.PopulationInput) *models.SubmitRequest {
	return &models.SubmitRequest{Country: country, Capital: capital, Population: population}
}

func updateReq(country, capital string, population models.PopulationInput) *models.UpdateRequest {
	return &models.UpdateRequest{NewCountry: country, Capital: capital, Population: population}
}

func (s *CountryServiceSuite) assertCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	de, ok := dErrors.As(err)
	s.Require().True(ok, "expected domain error, got %v", err)
	s.Equal(code, de.Code)
}

// =============================================================================
// Submit
// =============================================================================

func (s *CountryServiceSuite) TestSubmit() {
	s.Run("stores the record and emits an event", func() {
		err := s.service.Submit(s.ctx, submitReq("Testland", "Test City", models.PopulationOf(1000)))
		s.Require().NoError(err)

		got, err := s.service.Get(s.ctx, "Testland")
		s.Require().NoError(err)
		s.Equal(models.Country{Country: "Testland", Capital: "Test City", Population: 1000}, *got)

		events := s.drainEvents()
		s.Require().Len(events, 1)
		s.Equal(audit.ActionCountrySubmitted, events[0].Action)
		s.Equal("Testland", events[0].Country)
		s.Equal("req-1", events[0].RequestID)
		s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.Submitted))
	})

	s.Run("numeric string population is accepted", func() {
		err := s.service.Submit(s.ctx, submitReq("Stringland", "Quoted", models.NewPopulationInput("2500")))
		s.Require().NoError(err)

		got, err := s.store.FindByName(s.ctx, "Stringland")
		s.Require().NoError(err)
		s.Equal(int64(2500), got.Population)
	})

	s.Run("duplicate key overwrites and invalidates the cache", func() {
		_, err := s.service.Get(s.ctx, "Testland")
		s.Require().NoError(err)
		s.Contains(s.cache.rows, "Testland")

		err = s.service.Submit(s.ctx, submitReq("Testland", "Second City", models.PopulationOf(2000)))
		s.Require().NoError(err)
		s.NotContains(s.cache.rows, "Testland")

		got, err := s.service.Get(s.ctx, "Testland")
		s.Require().NoError(err)
		s.Equal("Second City", got.Capital)
	})

	s.Run("missing fields are a validation error and touch nothing", func() {
		s.drainEvents()
		before, _ := s.store.List(s.ctx, 0, 100)

		for _, req := range []*models.SubmitRequest{
			submitReq("", "Capital", models.PopulationOf(1)),
			submitReq("Nowhere", "   ", models.PopulationOf(1)),
			submitReq("Nowhere", "Capital", models.PopulationInput{}),
		} {
			err := s.service.Submit(s.ctx, req)
			s.assertCode(err, dErrors.CodeValidation)
			s.Contains(err.Error(), "all fields (country, capital, population) are required")
		}

		after, _ := s.store.List(s.ctx, 0, 100)
		s.Equal(before, after)
		s.Empty(s.drainEvents())
	})

	s.Run("non positive population is a validation error", func() {
		for _, raw := range []string{"abc", "-5", "0", "0.5"} {
			err := s.service.Submit(s.ctx, submitReq("Nowhere", "Capital", models.NewPopulationInput(raw)))
			s.assertCode(err, dErrors.CodeValidation)
			s.Contains(err.Error(), "population must be a valid positive number")
		}
		_, err := s.store.FindByName(s.ctx, "Nowhere")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// =============================================================================
// List
// =============================================================================

func (s *CountryServiceSuite) TestList() {
	for i, name := range []string{"A", "B", "C", "D", "E"} {
		s.Require().NoError(s.store.Upsert(s.ctx, models.Country{Country: name, Capital: name, Population: int64(i + 1)}))
	}

	s.Run("pages partition the table", func() {
		first, err := s.service.List(s.ctx, models.Page{Page: 1, Limit: 2})
		s.Require().NoError(err)
		second, err := s.service.List(s.ctx, models.Page{Page: 2, Limit: 2})
		s.Require().NoError(err)
		third, err := s.service.List(s.ctx, models.Page{Page: 3, Limit: 2})
		s.Require().NoError(err)

		s.Len(first, 2)
		s.Len(second, 2)
		s.Len(third, 1)
		s.NotEqual(first, second)
	})

	s.Run("empty page is an empty slice", func() {
		page, err := s.service.List(s.ctx, models.Page{Page: 9, Limit: 10})
		s.Require().NoError(err)
		s.NotNil(page)
		s.Empty(page)
	})

	s.Run("window past the offset cap skips the store", func() {
		capped := New(brokenStore{}, WithMaxOffset(4))

		within, err := capped.List(s.ctx, models.Page{Page: 3, Limit: 2})
		s.assertCode(err, dErrors.CodeInternal)
		s.Nil(within)

		beyond, err := capped.List(s.ctx, models.Page{Page: 4, Limit: 2})
		s.Require().NoError(err)
		s.NotNil(beyond)
		s.Empty(beyond)

		huge, err := capped.List(s.ctx, models.Page{Page: 2_000_000, Limit: 100})
		s.Require().NoError(err)
		s.Empty(huge)
	})
}

// =============================================================================
// Get
// =============================================================================

func (s *CountryServiceSuite) TestGet() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.Country{Country: "Chad", Capital: "N'Djamena", Population: 17000000}))

	s.Run("miss falls through to the store and fills the cache", func() {
		got, err := s.service.Get(s.ctx, "Chad")
		s.Require().NoError(err)
		s.Equal("N'Djamena", got.Capital)
		s.Contains(s.cache.rows, "Chad")
		s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.CacheMisses))
	})

	s.Run("hit is served from the cache", func() {
		s.cache.rows["Chad"] = models.Country{Country: "Chad", Capital: "Cached", Population: 1}
		got, err := s.service.Get(s.ctx, "Chad")
		s.Require().NoError(err)
		s.Equal("Cached", got.Capital)
		s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.CacheHits))
	})

	s.Run("cache failure is bypassed", func() {
		s.cache.failGet = true
		defer func() { s.cache.failGet = false }()

		got, err := s.service.Get(s.ctx, "Chad")
		s.Require().NoError(err)
		s.Equal("N'Djamena", got.Capital)
	})

	s.Run("unknown country is not found", func() {
		_, err := s.service.Get(s.ctx, "Atlantis")
		s.assertCode(err, dErrors.CodeNotFound)
	})
}

func (s *CountryServiceSuite) TestGetDoesNotCacheRowChangedDuringLookup() {
	mutations := map[string]func() error{
		"update": func() error {
			return s.service.Update(s.ctx, "Testland", updateReq("Testland", "New", models.PopulationOf(2000)))
		},
		"delete": func() error {
			return s.service.Delete(s.ctx, "Testland")
		},
	}
	for name, mutate := range mutations {
		s.Run(name, func() {
			s.SetupTest()
			s.Require().NoError(s.store.Upsert(s.ctx, models.Country{Country: "Testland", Capital: "Old", Population: 1000}))
			paused := newPausingStore(s.store)
			reader := New(paused, WithCache(s.cache))

			var read *models.Country
			var readErr error
			done := make(chan struct{})
			go func() {
				defer close(done)
				read, readErr = reader.Get(s.ctx, "Testland")
			}()

			<-paused.read
			s.Require().NoError(mutate())
			close(paused.release)
			<-done

			s.Require().NoError(readErr)
			s.Equal("Old", read.Capital)
			s.NotContains(s.cache.rows, "Testland")

			got, err := s.service.Get(s.ctx, "Testland")
			if name == "delete" {
				s.assertCode(err, dErrors.CodeNotFound)
				return
			}
			s.Require().NoError(err)
			s.Equal("New", got.Capital)
		})
	}
}

// =============================================================================
// Update
// =============================================================================

func (s *CountryServiceSuite) TestUpdate() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.Country{Country: "Testland", Capital: "Test City", Population: 1000}))
	s.Require().NoError(s.store.Upsert(s.ctx, models.Country{Country: "Otherland", Capital: "Other City", Population: 10}))

	s.Run("rename moves the record", func() {
		err := s.service.Update(s.ctx, "Testland", updateReq("Newland", "New City", models.PopulationOf(2000)))
		s.Require().NoError(err)

		_, err = s.service.Get(s.ctx, "Testland")
		s.assertCode(err, dErrors.CodeNotFound)
		got, err := s.service.Get(s.ctx, "Newland")
		s.Require().NoError(err)
		s.Equal(models.Country{Country: "Newland", Capital: "New City", Population: 2000}, *got)

		s.Subset(s.cache.invalidated, []string{"Testland", "Newland"})
		events := s.drainEvents()
		s.Require().Len(events, 1)
		s.Equal(audit.ActionCountryUpdated, events[0].Action)
		s.Equal("Testland", events[0].PreviousCountry)
		s.Equal("Newland", events[0].Country)
	})

	s.Run("same name updates in place", func() {
		err := s.service.Update(s.ctx, "Newland", updateReq("Newland", "Capital Two", models.NewPopulationInput("3000")))
		s.Require().NoError(err)

		got, err := s.store.FindByName(s.ctx, "Newland")
		s.Require().NoError(err)
		s.Equal("Capital Two", got.Capital)
		s.Equal(int64(3000), got.Population)

		events := s.drainEvents()
		s.Require().Len(events, 1)
		s.Empty(events[0].PreviousCountry)
	})

	s.Run("unknown country is not found", func() {
		err := s.service.Update(s.ctx, "Nowhere", updateReq("X", "Y", models.PopulationOf(1)))
		s.assertCode(err, dErrors.CodeNotFound)
		s.Empty(s.drainEvents())
	})

	s.Run("rename onto an existing country conflicts", func() {
		err := s.service.Update(s.ctx, "Newland", updateReq("Otherland", "Y", models.PopulationOf(1)))
		s.assertCode(err, dErrors.CodeConflict)

		other, err := s.store.FindByName(s.ctx, "Otherland")
		s.Require().NoError(err)
		s.Equal("Other City", other.Capital)
	})

	s.Run("invalid body is a validation error", func() {
		err := s.service.Update(s.ctx, "Newland", updateReq("", "Y", models.PopulationOf(1)))
		s.assertCode(err, dErrors.CodeValidation)
		s.Contains(err.Error(), "all fields (newCountry, capital, population) are required")

		err = s.service.Update(s.ctx, "Newland", updateReq("Newland", "Y", models.NewPopulationInput("abc")))
		s.assertCode(err, dErrors.CodeValidation)
	})

	s.Run("nil body is a bad request", func() {
		err := s.service.Update(s.ctx, "Newland", nil)
		s.assertCode(err, dErrors.CodeBadRequest)
	})
}

// =============================================================================
// Delete
// =============================================================================

func (s *CountryServiceSuite) TestDelete() {
	s.Require().NoError(s.store.Upsert(s.ctx, models.Country{Country: "Tuvalu", Capital: "Funafuti", Population: 11000}))

	s.Require().NoError(s.service.Delete(s.ctx, "Tuvalu"))
	_, err := s.service.Get(s.ctx, "Tuvalu")
	s.assertCode(err, dErrors.CodeNotFound)

	events := s.drainEvents()
	s.Require().Len(events, 1)
	s.Equal(audit.ActionCountryDeleted, events[0].Action)
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.Deleted))

	err = s.service.Delete(s.ctx, "Tuvalu")
	s.assertCode(err, dErrors.CodeNotFound)
}

// =============================================================================
// Storage failures
// =============================================================================

func (s *CountryServiceSuite) TestStoreFailuresAreInternal() {
	svc := New(brokenStore{}, WithMetrics(s.metrics), WithAuditPublisher(s.publisher))

	err := svc.Submit(s.ctx, submitReq("Chad", "N'Djamena", models.PopulationOf(1)))
	s.assertCode(err, dErrors.CodeInternal)
	s.ErrorIs(err, errDriver)

	_, err = svc.List(s.ctx, models.Page{Page: 1, Limit: 10})
	s.assertCode(err, dErrors.CodeInternal)

	_, err = svc.Get(s.ctx, "Chad")
	s.assertCode(err, dErrors.CodeInternal)

	err = svc.Update(s.ctx, "Chad", updateReq("Chad", "x", models.PopulationOf(1)))
	s.assertCode(err, dErrors.CodeInternal)

	err = svc.Delete(s.ctx, "Chad")
	s.assertCode(err, dErrors.CodeInternal)

	s.Error(svc.Health(s.ctx))
	s.Empty(s.drainEvents())
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.StoreErrors.WithLabelValues("upsert")))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.StoreErrors.WithLabelValues("delete")))
}

func (s *CountryServiceSuite) TestFullEventBufferDoesNotFailRequests() {
	publisher := audit.NewPublisher(1)
	svc := New(s.store, WithAuditPublisher(publisher))

	s.Require().NoError(svc.Submit(s.ctx, submitReq("A", "a", models.PopulationOf(1))))
	s.Require().NoError(svc.Submit(s.ctx, submitReq("B", "b", models.PopulationOf(1))))
	s.Equal(int64(1), publisher.Dropped())
}

func (s *CountryServiceSuite) TestHealth() {
	s.NoError(s.service.Health(s.ctx))
}
