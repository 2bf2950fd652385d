package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sasha-s/go-deadlock"
)

// ErrNoGrid is returned by GridStore.Load when nothing was saved yet.
var ErrNoGrid = errors.New("no grid stored")

// GridStore persists the current grid together with its step number.
type GridStore interface {
	Load(ctx context.Context) (Grid, int64, error)
	Save(ctx context.Context, grid Grid, step int64) error
	Close() error
}

func openStore(kind, dataDir string) (GridStore, error) {
	if kind == "memory" {
		return newMemoryStore(), nil
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	switch kind {
	case "sqlite":
		return newSQLiteStore(filepath.Join(dataDir, "grid.sqlite"))
	case "bolt":
		return newBoltStore(filepath.Join(dataDir, "grid.db"))
	default:
		return nil, fmt.Errorf("unknown store %q (want sqlite, bolt or memory)", kind)
	}
}

type memoryStore struct {
	lock  deadlock.Mutex
	grid  Grid
	step  int64
	saved bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (m *memoryStore) Load(context.Context) (Grid, int64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if !m.saved {
		return nil, 0, ErrNoGrid
	}
	return m.grid.Clone(), m.step, nil
}

func (m *memoryStore) Save(_ context.Context, grid Grid, step int64) error {
	m.lock.Lock()
	m.grid = grid.Clone()
	m.step = step
	m.saved = true
	m.lock.Unlock()

	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
