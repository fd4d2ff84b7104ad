package store

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/suite"

	"countries/internal/country/models"
	"countries/pkg/platform/sentinel"
)

type countryStore interface {
	Upsert(ctx context.Context, c models.Country) error
	FindByName(ctx context.Context, name string) (*models.Country, error)
	List(ctx context.Context, offset, limit int) ([]models.Country, error)
	Update(ctx context.Context, current string, c models.Country) error
	Delete(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// contractSuite is the behavior every store implementation must share.
// Embedding suites provide store and reset it in SetupTest.
type contractSuite struct {
	suite.Suite
	store countryStore
	ctx   context.Context
}

func (s *contractSuite) seed(names ...string) {
	for i, name := range names {
		s.Require().NoError(s.store.Upsert(s.ctx, models.Country{
			Country:    name,
			Capital:    name + " City",
			Population: int64(1000 * (i + 1)),
		}))
	}
}

func (s *contractSuite) TestUpsertAndFind() {
	s.Run("stored values round trip", func() {
		want := models.Country{Country: "Testland", Capital: "Test City", Population: 1000}
		s.Require().NoError(s.store.Upsert(s.ctx, want))

		got, err := s.store.FindByName(s.ctx, "Testland")
		s.Require().NoError(err)
		s.Equal(want, *got)
	})

	s.Run("upsert overwrites existing key", func() {
		s.Require().NoError(s.store.Upsert(s.ctx, models.Country{Country: "Testland", Capital: "New Test City", Population: 2000}))

		got, err := s.store.FindByName(s.ctx, "Testland")
		s.Require().NoError(err)
		s.Equal("New Test City", got.Capital)
		s.Equal(int64(2000), got.Population)

		all, err := s.store.List(s.ctx, 0, 100)
		s.Require().NoError(err)
		s.Len(all, 1)
	})

	s.Run("lookup is exact match", func() {
		_, err := s.store.FindByName(s.ctx, "testland")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("upsert recreates a deleted key", func() {
		s.Require().NoError(s.store.Delete(s.ctx, "Testland"))
		s.Require().NoError(s.store.Upsert(s.ctx, models.Country{Country: "Testland", Capital: "Again", Population: 3}))

		got, err := s.store.FindByName(s.ctx, "Testland")
		s.Require().NoError(err)
		s.Equal("Again", got.Capital)
	})
}

func (s *contractSuite) TestList() {
	names := []string{"Albania", "Bhutan", "Chad", "Denmark", "Ecuador"}
	s.seed(names...)

	s.Run("pages are bounded and disjoint", func() {
		seen := map[string]bool{}
		for offset, wantLen := range map[int]int{0: 2, 2: 2, 4: 1} {
			page, err := s.store.List(s.ctx, offset, 2)
			s.Require().NoError(err)
			s.Len(page, wantLen, "offset %d", offset)
			for _, c := range page {
				s.False(seen[c.Country], "country %s returned twice", c.Country)
				seen[c.Country] = true
			}
		}
		s.Len(seen, len(names))
	})

	s.Run("past the end is empty not nil", func() {
		page, err := s.store.List(s.ctx, 10, 2)
		s.Require().NoError(err)
		s.NotNil(page)
		s.Empty(page)
	})

	s.Run("zero limit is empty", func() {
		page, err := s.store.List(s.ctx, 0, 0)
		s.Require().NoError(err)
		s.Empty(page)
	})
}

func (s *contractSuite) TestUpdate() {
	s.seed("Czech Republic", "Slovakia")

	s.Run("in place update keeps key", func() {
		err := s.store.Update(s.ctx, "Slovakia", models.Country{Country: "Slovakia", Capital: "Bratislava", Population: 5400000})
		s.Require().NoError(err)

		got, err := s.store.FindByName(s.ctx, "Slovakia")
		s.Require().NoError(err)
		s.Equal("Bratislava", got.Capital)
		s.Equal(int64(5400000), got.Population)
	})

	s.Run("rename moves the row", func() {
		err := s.store.Update(s.ctx, "Czech Republic", models.Country{Country: "Czechia", Capital: "Prague", Population: 10500000})
		s.Require().NoError(err)

		_, err = s.store.FindByName(s.ctx, "Czech Republic")
		s.ErrorIs(err, sentinel.ErrNotFound)

		got, err := s.store.FindByName(s.ctx, "Czechia")
		s.Require().NoError(err)
		s.Equal(models.Country{Country: "Czechia", Capital: "Prague", Population: 10500000}, *got)

		all, err := s.store.List(s.ctx, 0, 100)
		s.Require().NoError(err)
		s.Len(all, 2)
	})

	s.Run("rename onto existing key conflicts", func() {
		err := s.store.Update(s.ctx, "Czechia", models.Country{Country: "Slovakia", Capital: "Prague", Population: 1})
		s.ErrorIs(err, sentinel.ErrConflict)

		czechia, err := s.store.FindByName(s.ctx, "Czechia")
		s.Require().NoError(err)
		s.Equal("Prague", czechia.Capital)
		slovakia, err := s.store.FindByName(s.ctx, "Slovakia")
		s.Require().NoError(err)
		s.Equal("Bratislava", slovakia.Capital)
	})

	s.Run("missing row is not found", func() {
		err := s.store.Update(s.ctx, "Atlantis", models.Country{Country: "Atlantis", Capital: "Poseidonia", Population: 1})
		s.ErrorIs(err, sentinel.ErrNotFound)

		err = s.store.Update(s.ctx, "Atlantis", models.Country{Country: "Lemuria", Capital: "Poseidonia", Population: 1})
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindByName(s.ctx, "Lemuria")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *contractSuite) TestDelete() {
	s.seed("Tuvalu")

	s.Require().NoError(s.store.Delete(s.ctx, "Tuvalu"))
	_, err := s.store.FindByName(s.ctx, "Tuvalu")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(s.ctx, "Tuvalu"), sentinel.ErrNotFound)
}

func (s *contractSuite) TestPing() {
	s.NoError(s.store.Ping(s.ctx))
}

func (s *contractSuite) TestManyRows() {
	for i := 0; i < 30; i++ {
		s.Require().NoError(s.store.Upsert(s.ctx, models.Country{
			Country: fmt.Sprintf("Country %02d", i), Capital: "Capital", Population: int64(i + 1),
		}))
	}
	page, err := s.store.List(s.ctx, 25, 10)
	s.Require().NoError(err)
	s.Len(page, 5)
}
