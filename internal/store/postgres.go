package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       JSONB NOT NULL,
	update_time TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);`

// EnsureSchema creates the documents table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schemaPostgres); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Postgres keeps all collections in one documents table with a JSONB body.
type Postgres[T any] struct {
	key        KeyFunc[T]
	db         DB
	collection string
}

func NewPostgres[T any](db DB, collection string, key KeyFunc[T]) *Postgres[T] {
	return &Postgres[T]{
		key:        key,
		db:         db,
		collection: collection,
	}
}

func (s *Postgres[T]) List(ctx context.Context) ([]T, error) {
	const stmt = `SELECT id, body FROM documents WHERE collection = $1 ORDER BY id;`

	rows, err := s.db.Query(ctx, stmt, s.collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.collection, err)
	}

	docs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (document, error) {
		var d document
		err := r.Scan(&d.id, &d.body)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.collection, err)
	}

	return decodeAll[T](docs)
}

func (s *Postgres[T]) Get(ctx context.Context, id string) (T, error) {
	const stmt = `SELECT body FROM documents WHERE collection = $1 AND id = $2;`

	var zero T
	d := document{id: id}
	err := s.db.QueryRow(ctx, stmt, s.collection, id).Scan(&d.body)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("get %s %s: %w", s.collection, id, err)
	}

	return decode[T](d)
}

func (s *Postgres[T]) Put(ctx context.Context, v T) error {
	const stmt = `
INSERT INTO documents (collection, id, body, update_time)
VALUES ($1, $2, $3, now())
ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, update_time = EXCLUDED.update_time;`

	d, err := encode(s.key, v)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, stmt, s.collection, d.id, d.body); err != nil {
		return fmt.Errorf("put %s %s: %w", s.collection, d.id, err)
	}

	return nil
}

func (s *Postgres[T]) Delete(ctx context.Context, id string) error {
	const stmt = `DELETE FROM documents WHERE collection = $1 AND id = $2;`

	if _, err := s.db.Exec(ctx, stmt, s.collection, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", s.collection, id, err)
	}

	return nil
}
