package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/sasha-s/go-deadlock"
)

type OnStepCallback = func(grid Grid, step int64)
type callbackContainer struct {
	id int64
	cb OnStepCallback
}

// Game is the server side of the toggle grid. Every successful change bumps
// the step counter, is written to the store and then announced to the
// OnStep callbacks.
type Game struct {
	lock deadlock.Mutex

	grid       Grid
	cols, rows int
	steps      int64
	store      GridStore
	rnd        *rand.Rand

	cbs []callbackContainer
}

func NewGame(ctx context.Context, cols, rows int, store GridStore) (*Game, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("invalid grid size %dx%d", cols, rows)
	}

	g := &Game{
		cols:  cols,
		rows:  rows,
		store: store,
		rnd:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x746f67676c65)),
	}

	grid, step, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoGrid):
		g.grid = NewGrid(cols, rows)
		log.Printf("no stored grid, starting with empty %dx%d grid", cols, rows)
	case err != nil:
		return nil, fmt.Errorf("load grid: %w", err)
	default:
		g.grid = grid
		g.steps = step
		log.Printf("restored grid at step %d (%d cells, %d enabled)", step, grid.CellCount(), grid.Enabled())
	}

	return g, nil
}

func (g *Game) notifyCallbacks() {
	for _, cc := range g.cbs {
		cc.cb(g.grid.Clone(), g.steps)
	}
}

// Snapshot returns a copy of the current grid and its step.
func (g *Game) Snapshot() (Grid, int64) {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.grid.Clone(), g.steps
}

// Toggle flips the cells with the given flattened indices. Out of range
// indices reject the whole patch.
func (g *Game) Toggle(ctx context.Context, ids []int) (Grid, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if len(ids) == 0 {
		return g.grid.Clone(), nil
	}

	next := g.grid.Clone()
	if err := next.Toggle(ids); err != nil {
		return nil, err
	}

	if err := g.commit(ctx, next); err != nil {
		return nil, err
	}
	log.Printf("%d. game step: toggled %d cells", g.steps, len(ids))

	return next.Clone(), nil
}

// Reset replaces the grid with a freshly generated one.
func (g *Game) Reset(ctx context.Context) (Grid, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	next := RandomGrid(g.cols, g.rows, g.rnd)
	if err := g.commit(ctx, next); err != nil {
		return nil, err
	}
	log.Printf("%d. game step: reset (%d enabled)", g.steps, next.Enabled())

	return next.Clone(), nil
}

// commit must be called with the lock held.
func (g *Game) commit(ctx context.Context, next Grid) error {
	step := g.steps + 1
	if err := g.store.Save(ctx, next, step); err != nil {
		return fmt.Errorf("store grid: %w", err)
	}

	g.grid = next
	g.steps = step
	g.notifyCallbacks()

	return nil
}

func (g *Game) OnStep(cb OnStepCallback) func() {
	g.lock.Lock()
	defer g.lock.Unlock()

	n := int64(0)
	for i := range g.cbs {
		if g.cbs[i].id > n {
			n = g.cbs[i].id
		}
	}
	n++

	g.cbs = append(g.cbs, callbackContainer{
		cb: cb,
		id: n,
	})

	return func() {
		g.lock.Lock()
		defer g.lock.Unlock()

		for i := range g.cbs {
			if g.cbs[i].id == n {
				g.cbs[i].cb = nil
				copy(g.cbs[i:], g.cbs[i+1:])
				g.cbs = g.cbs[:len(g.cbs)-1]
				break
			}
		}
	}
}
