package product

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second

	// serializes id assignment across instances sharing the table
	createLockKey int64 = 0x70726f64
)

//go:embed schema.sql
var schemaSQL string

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PostgresStore keeps insertion order in the position column. id is not
// unique at the table level, matching MemStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		for _, stmt := range strings.Split(schemaSQL, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := s.pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.pool.Ping(ctx)
	})
}

func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	var out []Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, name, description, price
			FROM products
			ORDER BY position ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	})
	return n, err
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Product, bool, error) {
	var p Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		p, err = scanProduct(s.pool.QueryRow(ctx, `
			SELECT id, name, description, price
			FROM products
			WHERE id = $1
			ORDER BY position ASC
			LIMIT 1
		`, id))
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, d Draft) (Product, error) {
	var p Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, createLockKey); err != nil {
				return err
			}

			var id int64
			err := tx.QueryRow(ctx, `
				INSERT INTO products (id, name, description, price)
				SELECT COALESCE(MAX(id), 0) + 1, $1, $2, $3
				FROM products
				RETURNING id
			`, d.Name, d.Description, d.Price).Scan(&id)
			if err != nil {
				return err
			}
			p = d.withID(id)
			return nil
		})
	})

	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (s *PostgresStore) Replace(ctx context.Context, id int64, p Product) (Replacement, bool, error) {
	var (
		old   Product
		found bool
	)

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			var pos int64
			err := tx.QueryRow(ctx, `
				SELECT position, id, name, description, price
				FROM products
				WHERE id = $1
				ORDER BY position ASC
				LIMIT 1
				FOR UPDATE
			`, id).Scan(&pos, &old.ID, &old.Name, &old.Description, &old.Price)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}

			_, err = tx.Exec(ctx, `
				UPDATE products
				SET id = $2, name = $3, description = $4, price = $5
				WHERE position = $1
			`, pos, p.ID, p.Name, p.Description, p.Price)
			if err != nil {
				return err
			}
			found = true
			return nil
		})
	})

	if err != nil || !found {
		return Replacement{}, false, err
	}
	return Replacement{Old: old, New: p}, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) (Product, bool, error) {
	var p Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		p, err = scanProduct(s.pool.QueryRow(ctx, `
			DELETE FROM products
			WHERE position = (
				SELECT position FROM products
				WHERE id = $1
				ORDER BY position ASC
				LIMIT 1
			)
			RETURNING id, name, description, price
		`, id))
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price)
	return p, err
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
