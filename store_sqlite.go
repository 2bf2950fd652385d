package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	"github.com/goccy/go-json"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS game (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	step       INTEGER NOT NULL,
	grid       TEXT    NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

type sqliteStore struct {
	db *sql.DB
}

func newSQLiteStore(path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single writer keeps the WAL simple
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (Grid, int64, error) {
	var (
		step int64
		raw  string
	)
	err := s.db.QueryRowContext(ctx, `SELECT step, grid FROM game WHERE id = 1`).Scan(&step, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNoGrid
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query grid: %w", err)
	}

	var grid Grid
	if err := json.Unmarshal([]byte(raw), &grid); err != nil {
		return nil, 0, fmt.Errorf("decode stored grid: %w", err)
	}
	return grid, step, nil
}

func (s *sqliteStore) Save(ctx context.Context, grid Grid, step int64) error {
	raw, err := json.Marshal(grid)
	if err != nil {
		return fmt.Errorf("encode grid: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO game (id, step, grid, updated_at) VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET step = excluded.step, grid = excluded.grid, updated_at = excluded.updated_at`,
		step, string(raw))
	if err != nil {
		return fmt.Errorf("save grid: %w", err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
