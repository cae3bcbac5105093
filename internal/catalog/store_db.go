package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
	pgUniqueCode = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	position    BIGSERIAL,
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	code        TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	stock       INTEGER NOT NULL,
	category    TEXT NOT NULL,
	thumbnails  JSONB NOT NULL DEFAULT '[]'::jsonb,
	status      BOOLEAN NOT NULL DEFAULT TRUE
)`

const productColumns = `id, title, description, code, price, stock, category, thumbnails, status`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the products table if it is missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, schema)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	var out []Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+productColumns+`
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

func (s *PostgresStore) Get(ctx context.Context, id string) (Product, bool, error) {
	var p Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		p, err = scanProduct(s.db.QueryRowContext(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE id = $1
		`, id))
		return err
	})

	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) Add(ctx context.Context, p Product) error {
	thumbs, err := encodeThumbnails(p.Thumbnails)
	if err != nil {
		return err
	}

	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
		`, p.ID, p.Title, p.Description, p.Code, p.Price, p.Stock, p.Category, thumbs, p.Status)

		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return err
	})
}

// Update locks the row for the read-merge-write so concurrent patches to the
// same product serialize instead of losing each other.
func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	found := false

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		cur, err := scanProduct(tx.QueryRowContext(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		next := patch.apply(cur)
		thumbs, err := encodeThumbnails(next.Thumbnails)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET title = $2, description = $3, code = $4, price = $5,
			    stock = $6, category = $7, thumbnails = $8::jsonb, status = $9
			WHERE id = $1
		`, id, next.Title, next.Description, next.Code, next.Price, next.Stock, next.Category, thumbs, next.Status)
		if err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		found = true
		return nil
	})

	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	var affected int64

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})

	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p      Product
		thumbs []byte
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Code, &p.Price, &p.Stock, &p.Category, &thumbs, &p.Status); err != nil {
		return Product{}, err
	}
	if err := json.Unmarshal(thumbs, &p.Thumbnails); err != nil {
		return Product{}, fmt.Errorf("decode thumbnails for %s: %w", p.ID, err)
	}
	return p.clone(), nil
}

func encodeThumbnails(t []string) (string, error) {
	if t == nil {
		t = []string{}
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode thumbnails: %w", err)
	}
	return string(raw), nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}
