package reftable

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppiankov/riskwatch/internal/model"
)

// Schema creates the tables PostgresSource reads
const Schema = `
CREATE TABLE IF NOT EXISTS advisors (
	registration_number TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'unknown',
	registered_entity   TEXT,
	jurisdiction        TEXT
);

CREATE TABLE IF NOT EXISTS domains (
	domain        TEXT PRIMARY KEY,
	registrar     TEXT,
	creation_date DATE,
	country       TEXT,
	flags         TEXT[] NOT NULL DEFAULT '{}'
);
`

// Querier is the subset of *pgxpool.Pool the source needs
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ Querier = (*pgxpool.Pool)(nil)

// PostgresSource reads the registry and domain table from PostgreSQL.
// A zero AsOf means today (UTC).
type PostgresSource struct {
	Pool Querier
	AsOf time.Time
}

// Connect opens a pgx pool and verifies it with a ping
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func (s PostgresSource) Load(ctx context.Context) (*Tables, error) {
	advisors, err := s.loadAdvisors(ctx)
	if err != nil {
		return nil, &model.CatalogError{Source: "postgres", Err: err}
	}
	domains, err := s.loadDomains(ctx)
	if err != nil {
		return nil, &model.CatalogError{Source: "postgres", Err: err}
	}
	return New("postgres", advisors, domains, asOfOrToday(s.AsOf))
}

func (s PostgresSource) loadAdvisors(ctx context.Context) ([]model.AdvisorRecord, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT registration_number, name, status,
		       COALESCE(registered_entity, ''), COALESCE(jurisdiction, '')
		FROM advisors
		ORDER BY registration_number`)
	if err != nil {
		return nil, fmt.Errorf("query advisors: %w", err)
	}
	defer rows.Close()

	var out []model.AdvisorRecord
	for rows.Next() {
		var a model.AdvisorRecord
		var status string
		if err := rows.Scan(&a.RegistrationNumber, &a.Name, &status, &a.RegisteredEntity, &a.Jurisdiction); err != nil {
			return nil, fmt.Errorf("scan advisor: %w", err)
		}
		a.Status = model.ParseAdvisorStatus(status)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate advisors: %w", err)
	}
	return out, nil
}

func (s PostgresSource) loadDomains(ctx context.Context) ([]model.DomainRecord, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT domain, COALESCE(registrar, ''), creation_date, COALESCE(country, ''), flags
		FROM domains
		ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("query domains: %w", err)
	}
	defer rows.Close()

	var out []model.DomainRecord
	for rows.Next() {
		var d model.DomainRecord
		var created *time.Time
		var flags []string
		if err := rows.Scan(&d.Domain, &d.Registrar, &created, &d.Country, &flags); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		if created != nil {
			d.CreationDate = created.UTC()
		}
		d.Flags = normalizeFlags(flags)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return out, nil
}
