package main

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGridLocate(t *testing.T) {
	g := Grid{{true, false}, {true}, {}, {false, false, true}}

	tests := []struct {
		id       int
		col, row int
		ok       bool
	}{
		{id: 0, col: 0, row: 0, ok: true},
		{id: 1, col: 0, row: 1, ok: true},
		{id: 2, col: 1, row: 0, ok: true},
		{id: 3, col: 3, row: 0, ok: true},
		{id: 5, col: 3, row: 2, ok: true},
		{id: 6, ok: false},
		{id: -1, ok: false},
	}
	for _, tt := range tests {
		col, row, ok := g.Locate(tt.id)
		if ok != tt.ok || (ok && (col != tt.col || row != tt.row)) {
			t.Errorf("Locate(%d) = (%d, %d, %v), want (%d, %d, %v)", tt.id, col, row, ok, tt.col, tt.row, tt.ok)
		}
	}

	if g.CellCount() != 6 {
		t.Fatalf("expected 6 cells, got %d", g.CellCount())
	}
}

func TestGridToggle(t *testing.T) {
	g := Grid{{true, false}, {true, true}}

	if err := g.Toggle([]int{1, 3, 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Grid{{true, true}, {true, false}}
	if diff := cmp.Diff(want, g); diff != "" {
		t.Fatalf("grid mismatch (-want +got):\n%s", diff)
	}
}

func TestGridToggleOutOfRangeLeavesGrid(t *testing.T) {
	g := Grid{{true, false}, {true, true}}
	before := g.Clone()

	err := g.Toggle([]int{0, 4})
	if !errors.Is(err, ErrCellOutOfRange) {
		t.Fatalf("expected ErrCellOutOfRange, got %v", err)
	}
	if diff := cmp.Diff(before, g); diff != "" {
		t.Fatalf("grid changed (-before +after):\n%s", diff)
	}
}

func TestGridClone(t *testing.T) {
	g := Grid{{true}, {false}}
	cp := g.Clone()
	cp[0][0] = false

	if !g[0][0] {
		t.Fatal("Clone should return a copy, not a reference")
	}
	if Grid(nil).Clone() != nil {
		t.Fatal("clone of nil grid should be nil")
	}
}

func TestRandomGrid(t *testing.T) {
	g := RandomGrid(5, 7, rand.New(rand.NewPCG(1, 2)))

	if len(g) != 5 {
		t.Fatalf("expected 5 columns, got %d", len(g))
	}
	for c, col := range g {
		if len(col) != 7 {
			t.Fatalf("column %d: expected 7 rows, got %d", c, len(col))
		}
	}
}
