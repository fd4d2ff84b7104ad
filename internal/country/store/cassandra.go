package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gocql/gocql"

	"countries/internal/country/models"
)

const (
	cqlInsertIfAbsent = `INSERT INTO countries (country, capital, population) VALUES (?, ?, ?) IF NOT EXISTS`
	cqlSelectOne      = `SELECT country, capital, population FROM countries WHERE country = ?`
	cqlSelectPage     = `SELECT country, capital, population FROM countries LIMIT ?`
	cqlUpdateIfExists = `UPDATE countries SET capital = ?, population = ? WHERE country = ? IF EXISTS`
	cqlDeleteIfExists = `DELETE FROM countries WHERE country = ? IF EXISTS`
	cqlPing           = `SELECT release_version FROM system.local`
)

// CassandraSchema creates the countries table in the session keyspace.
// The service never runs it; integration tests and operators do.
const CassandraSchema = `CREATE TABLE IF NOT EXISTS countries (
	country text PRIMARY KEY,
	capital text,
	population bigint
)`

const (
	defaultCassandraPageSize = 500
	upsertAttempts           = 5
)

// Cassandra stores countries in a single partition-per-row table. Existence
// checks ride on lightweight transactions so check-and-mutate is one round trip.
// Every write goes through a lightweight transaction: plain writes are not
// ordered against Paxos writes on the same partition.
type Cassandra struct {
	session  *gocql.Session
	pageSize int
}

// CassandraOption configures a Cassandra store.
type CassandraOption func(*Cassandra)

// WithPageSize sets the driver page size used while scanning for List.
func WithPageSize(n int) CassandraOption {
	return func(s *Cassandra) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewCassandra(session *gocql.Session, opts ...CassandraOption) *Cassandra {
	s := &Cassandra{session: session, pageSize: defaultCassandraPageSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert claims the key with INSERT IF NOT EXISTS and overwrites it with
// UPDATE IF EXISTS when it is taken. A delete landing between the two starts over.
func (s *Cassandra) Upsert(ctx context.Context, c models.Country) error {
	for range upsertAttempts {
		applied, err := s.cas(ctx, cqlInsertIfAbsent, c.Country, c.Capital, c.Population)
		if err != nil {
			return fmt.Errorf("insert country: %w", err)
		}
		if applied {
			return nil
		}
		applied, err = s.cas(ctx, cqlUpdateIfExists, c.Capital, c.Population, c.Country)
		if err != nil {
			return fmt.Errorf("overwrite country: %w", err)
		}
		if applied {
			return nil
		}
	}
	return fmt.Errorf("upsert country %q: key changed under %d attempts", c.Country, upsertAttempts)
}

func (s *Cassandra) FindByName(ctx context.Context, name string) (*models.Country, error) {
	var c models.Country
	err := s.session.Query(cqlSelectOne, name).WithContext(ctx).Scan(&c.Country, &c.Capital, &c.Population)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select country: %w", err)
	}
	return &c, nil
}

// List reads offset+limit rows in token order and drops the first offset.
// CQL has no OFFSET clause, so deep pages cost proportionally more.
func (s *Cassandra) List(ctx context.Context, offset, limit int) ([]models.Country, error) {
	out := make([]models.Country, 0, limit)
	if offset < 0 || limit <= 0 {
		return out, nil
	}
	// CQL LIMIT is a 32-bit int.
	scan := offset + limit
	if scan > math.MaxInt32 || scan < 0 {
		scan = math.MaxInt32
	}
	iter := s.session.Query(cqlSelectPage, scan).
		WithContext(ctx).
		PageSize(s.pageSize).
		Iter()

	var (
		c       models.Country
		skipped int
	)
	for len(out) < limit && iter.Scan(&c.Country, &c.Capital, &c.Population) {
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, c)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return out, nil
}

// Update rewrites the row stored under current. A rename claims the new key
// with INSERT IF NOT EXISTS and then removes the old key with DELETE IF EXISTS.
// If the second step fails both keys exist until the caller retries.
func (s *Cassandra) Update(ctx context.Context, current string, c models.Country) error {
	if c.Country == current {
		applied, err := s.cas(ctx, cqlUpdateIfExists, c.Capital, c.Population, current)
		if err != nil {
			return fmt.Errorf("update country: %w", err)
		}
		if !applied {
			return ErrNotFound
		}
		return nil
	}

	if _, err := s.FindByName(ctx, current); err != nil {
		return err
	}
	applied, err := s.cas(ctx, cqlInsertIfAbsent, c.Country, c.Capital, c.Population)
	if err != nil {
		return fmt.Errorf("rename country: claim new key: %w", err)
	}
	if !applied {
		return ErrConflict
	}
	if _, err := s.cas(ctx, cqlDeleteIfExists, current); err != nil {
		return fmt.Errorf("rename country: delete previous key: %w", err)
	}
	return nil
}

func (s *Cassandra) Delete(ctx context.Context, name string) error {
	applied, err := s.cas(ctx, cqlDeleteIfExists, name)
	if err != nil {
		return fmt.Errorf("delete country: %w", err)
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

func (s *Cassandra) Ping(ctx context.Context) error {
	var version string
	if err := s.session.Query(cqlPing).WithContext(ctx).Scan(&version); err != nil {
		return fmt.Errorf("cassandra ping: %w", err)
	}
	return nil
}

// cas runs a conditional statement and reports whether it was applied.
func (s *Cassandra) cas(ctx context.Context, stmt string, values ...any) (bool, error) {
	previous := make(map[string]any)
	return s.session.Query(stmt, values...).WithContext(ctx).MapScanCAS(previous)
}
