// Package postgres stores presence and reports in PostgreSQL and reads
// rosters, academy settings and courses from the same database.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"attendance-service/pkg/response"
)

//go:embed schema.sql
var schema string

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

// NewFromDB wraps an already opened database.
func NewFromDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Migrate creates the tables when they do not exist yet.
func (s *Storage) Migrate(ctx context.Context) error {
	const op = "storage.postgres.Migrate"

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// mapError turns constraint violations into response sentinels.
func mapError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503":
			return fmt.Errorf("%s: %s: %w", op, pqErr.Constraint, response.ErrNotFound)
		case "23514", "22P02":
			return fmt.Errorf("%s: %s: %w", op, pqErr.Message, response.ErrBadRequest)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
