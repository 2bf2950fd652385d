package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

var (
	gameBucket = []byte("game")
	gridKey    = []byte("grid")
	stepKey    = []byte("step")
)

type boltStore struct {
	db *bolt.DB
}

func newBoltStore(path string) (*boltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(gameBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) Load(context.Context) (Grid, int64, error) {
	var (
		grid Grid
		step int64
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(gameBucket)
		raw := b.Get(gridKey)
		if raw == nil {
			return ErrNoGrid
		}
		if err := json.Unmarshal(raw, &grid); err != nil {
			return fmt.Errorf("decode stored grid: %w", err)
		}
		if v := b.Get(stepKey); len(v) == 8 {
			step = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return grid, step, nil
}

func (s *boltStore) Save(_ context.Context, grid Grid, step int64) error {
	raw, err := json.Marshal(grid)
	if err != nil {
		return fmt.Errorf("encode grid: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(gameBucket)
		if err := b.Put(gridKey, raw); err != nil {
			return err
		}
		return b.Put(stepKey, binary.BigEndian.AppendUint64(nil, uint64(step)))
	})
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
