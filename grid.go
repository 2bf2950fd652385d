package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var ErrCellOutOfRange = errors.New("cell index out of range")

// Grid is a list of columns, each a list of cell states. Cells are addressed
// by a flattened index: column 0 top to bottom, then column 1 and so on.
type Grid [][]bool

func NewGrid(cols, rows int) Grid {
	g := make(Grid, cols)
	for c := range g {
		g[c] = make([]bool, rows)
	}
	return g
}

// RandomGrid returns a cols x rows grid where each cell is enabled with
// probability 1/2.
func RandomGrid(cols, rows int, rnd *rand.Rand) Grid {
	g := NewGrid(cols, rows)
	for _, col := range g {
		for r := range col {
			col[r] = rnd.IntN(2) == 1
		}
	}
	return g
}

// CellCount returns the number of cells, summing the actual column lengths.
func (g Grid) CellCount() int {
	n := 0
	for _, col := range g {
		n += len(col)
	}
	return n
}

// Locate maps a flattened index to its column and row.
func (g Grid) Locate(id int) (col, row int, ok bool) {
	if id < 0 {
		return 0, 0, false
	}
	for c, column := range g {
		if id < len(column) {
			return c, id, true
		}
		id -= len(column)
	}
	return 0, 0, false
}

func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	cp := make(Grid, len(g))
	for c, col := range g {
		cp[c] = make([]bool, len(col))
		copy(cp[c], col)
	}
	return cp
}

// Toggle flips every distinct index in ids once. If any index is invalid the
// grid is left untouched.
func (g Grid) Toggle(ids []int) error {
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, _, ok := g.Locate(id); !ok {
			return fmt.Errorf("%w: %d (grid has %d cells)", ErrCellOutOfRange, id, g.CellCount())
		}
		seen[id] = struct{}{}
	}

	for id := range seen {
		c, r, _ := g.Locate(id)
		g[c][r] = !g[c][r]
	}
	return nil
}

func (g Grid) Enabled() int {
	n := 0
	for _, col := range g {
		for _, v := range col {
			if v {
				n++
			}
		}
	}
	return n
}
