package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStores(t *testing.T) {
	for _, kind := range []string{"memory", "sqlite", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			store, err := openStore(kind, t.TempDir())
			if err != nil {
				t.Fatalf("open %s store: %v", kind, err)
			}
			defer store.Close()

			if _, _, err := store.Load(ctx); !errors.Is(err, ErrNoGrid) {
				t.Fatalf("expected ErrNoGrid from empty store, got %v", err)
			}

			first := Grid{{true, false, true}, {false, false, false}}
			if err := store.Save(ctx, first, 1); err != nil {
				t.Fatalf("save: %v", err)
			}
			second := Grid{{false}, {true}}
			if err := store.Save(ctx, second, 2); err != nil {
				t.Fatalf("save: %v", err)
			}

			grid, step, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if step != 2 {
				t.Fatalf("expected step 2, got %d", step)
			}
			if diff := cmp.Diff(second, grid); diff != "" {
				t.Fatalf("grid mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPersistentStoresSurviveReopen(t *testing.T) {
	for _, kind := range []string{"sqlite", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			store, err := openStore(kind, dir)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			want := Grid{{true, true}, {false, true}}
			if err := store.Save(ctx, want, 7); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			store, err = openStore(kind, dir)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer store.Close()

			grid, step, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if step != 7 {
				t.Fatalf("expected step 7, got %d", step)
			}
			if diff := cmp.Diff(want, grid); diff != "" {
				t.Fatalf("grid mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOpenStoreUnknownKind(t *testing.T) {
	if _, err := openStore("redis", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatal("expected error for unknown store kind")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	g := Grid{{true}}
	store.Save(ctx, g, 1)
	g[0][0] = false

	got, _, _ := store.Load(ctx)
	if !got[0][0] {
		t.Fatal("memory store should keep its own copy of the grid")
	}
}
