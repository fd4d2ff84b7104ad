package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"countries/internal/country/models"
)

// PostgresSchema is the relational equivalent of CassandraSchema.
const PostgresSchema = `CREATE TABLE IF NOT EXISTS countries (
	country    TEXT PRIMARY KEY,
	capital    TEXT NOT NULL,
	population BIGINT NOT NULL CHECK (population > 0)
)`

const pqUniqueViolation = pq.ErrorCode("23505")

// Postgres persists countries in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Upsert(ctx context.Context, c models.Country) error {
	query := `
		INSERT INTO countries (country, capital, population)
		VALUES ($1, $2, $3)
		ON CONFLICT (country) DO UPDATE SET
			capital = EXCLUDED.capital,
			population = EXCLUDED.population
	`
	if _, err := s.db.ExecContext(ctx, query, c.Country, c.Capital, c.Population); err != nil {
		return fmt.Errorf("upsert country: %w", err)
	}
	return nil
}

func (s *Postgres) FindByName(ctx context.Context, name string) (*models.Country, error) {
	var c models.Country
	err := s.db.QueryRowContext(ctx,
		`SELECT country, capital, population FROM countries WHERE country = $1`, name,
	).Scan(&c.Country, &c.Capital, &c.Population)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select country: %w", err)
	}
	return &c, nil
}

// List pages by primary key so consecutive pages never overlap.
func (s *Postgres) List(ctx context.Context, offset, limit int) ([]models.Country, error) {
	out := make([]models.Country, 0, limit)
	if offset < 0 || limit <= 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT country, capital, population FROM countries ORDER BY country LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.Country, &c.Capital, &c.Population); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return out, nil
}

// Update renames and rewrites in one statement keyed on the old value.
func (s *Postgres) Update(ctx context.Context, current string, c models.Country) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE countries SET country = $1, capital = $2, population = $3 WHERE country = $4`,
		c.Country, c.Capital, c.Population, current)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("update country: %w", err)
	}
	return expectOneRow(res)
}

func (s *Postgres) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM countries WHERE country = $1`, name)
	if err != nil {
		return fmt.Errorf("delete country: %w", err)
	}
	return expectOneRow(res)
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
