package dbclean

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const dropMatviewsSQL = `
DO $$
DECLARE r RECORD;
BEGIN
    FOR r IN (SELECT schemaname, matviewname FROM pg_matviews WHERE schemaname = 'public')
    LOOP
        EXECUTE 'DROP MATERIALIZED VIEW IF EXISTS ' || quote_ident(r.schemaname) || '.' || quote_ident(r.matviewname) || ' CASCADE';
    END LOOP;
END $$;`

const truncateTablesSQL = `
DO $$
DECLARE r RECORD;
BEGIN
    FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public')
    LOOP
        EXECUTE 'TRUNCATE TABLE public.' || quote_ident(r.tablename) || ' RESTART IDENTITY CASCADE';
    END LOOP;
END $$;`

// Postgres empties the public schema of the benchmark database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a lazy connection pool for dsn.
func NewPostgres(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(time.Minute)
	return &Postgres{db: db}, nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Clean drops materialized views, truncates every table and runs
// VACUUM ANALYZE so the next run starts with fresh statistics.
func (p *Postgres) Clean(ctx context.Context) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"drop materialized views", dropMatviewsSQL},
		{"truncate tables", truncateTablesSQL},
		// must run outside a transaction block
		{"vacuum analyze", "VACUUM ANALYZE"},
	}
	for _, s := range steps {
		if _, err := p.db.ExecContext(ctx, s.sql); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (p *Postgres) Close(context.Context) error {
	return p.db.Close()
}

// isPostgresAuthError matches SQLSTATE class 28 (invalid authorization).
func isPostgresAuthError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "28"
	}
	return false
}

const listTablesSQL = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public'
ORDER BY table_name`

// Inspect counts the rows of every table in the public schema.
func (p *Postgres) Inspect(ctx context.Context) (*Inventory, error) {
	rows, err := p.db.QueryContext(ctx, listTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	inv := &Inventory{DB: p.Name(), Method: "count(*)", Counts: make([]Count, 0, len(tables))}
	for _, table := range tables {
		var n int64
		query := "SELECT count(*) FROM public." + pq.QuoteIdentifier(table)
		if err := p.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		inv.Counts = append(inv.Counts, Count{Group: GroupTable, Name: table, Value: n})
	}
	return inv, nil
}
