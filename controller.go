package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/semaphore"
)

// Cell is one rendered grid cell. OnClick is bound to the cell's ID and must
// be invoked by the host on interaction, never from inside View.Render.
type Cell struct {
	ID       int
	Col, Row int
	Enabled  bool
	Selected bool
	OnClick  func()
}

// View is the rendering layer a Controller drives.
type View interface {
	// Render replaces every previously rendered cell with cells.
	Render(cells []Cell)
	// SetSelected updates the selection mark of a single rendered cell.
	SetSelected(id int, selected bool)
}

// Controller owns the client side of one game session: the grid last
// rendered and the set of cells marked for toggling since the last save.
//
// Network operations are serialized, so overlapping saves and resets finish
// in the order they were issued and the last one issued decides the final
// state.
type Controller struct {
	api  GridAPI
	view View
	net  *semaphore.Weighted

	lock    deadlock.Mutex
	grid    Grid
	pending map[int]struct{}
}

func NewController(api GridAPI, view View) *Controller {
	return &Controller{
		api:     api,
		view:    view,
		net:     semaphore.NewWeighted(1),
		pending: make(map[int]struct{}),
	}
}

// Load fetches the current grid and renders it. On error nothing changes.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.net.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.net.Release(1)

	grid, err := c.api.Fetch(ctx)
	if err != nil {
		return err
	}

	c.Render(grid)
	return nil
}

// Render replaces the rendered grid. Cells get sequential ids in column
// order; pending ids that no longer exist are dropped.
func (c *Controller) Render(grid Grid) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.render(grid)
}

func (c *Controller) render(grid Grid) {
	c.grid = grid
	total := grid.CellCount()
	for id := range c.pending {
		if id >= total {
			delete(c.pending, id)
		}
	}

	cells := layoutCells(grid)
	for i := range cells {
		id := cells[i].ID
		_, cells[i].Selected = c.pending[id]
		cells[i].OnClick = func() { c.Click(id) }
	}

	c.view.Render(cells)
}

// layoutCells flattens grid column by column into cells numbered from 0.
func layoutCells(grid Grid) []Cell {
	cells := make([]Cell, 0, grid.CellCount())
	for col, column := range grid {
		for row, enabled := range column {
			cells = append(cells, Cell{
				ID:      len(cells),
				Col:     col,
				Row:     row,
				Enabled: enabled,
			})
		}
	}
	return cells
}

// Click flips the pending mark of a cell and returns whether it is now
// selected. It never touches the network.
func (c *Controller) Click(id int) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if id < 0 || id >= c.grid.CellCount() {
		return false, fmt.Errorf("%w: %d", ErrCellOutOfRange, id)
	}

	_, selected := c.pending[id]
	if selected {
		delete(c.pending, id)
	} else {
		c.pending[id] = struct{}{}
	}
	c.view.SetSelected(id, !selected)

	return !selected, nil
}

// Save submits the pending cells. On success the pending set is cleared and
// the server's grid is rendered; on failure nothing changes.
func (c *Controller) Save(ctx context.Context) error {
	if err := c.net.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.net.Release(1)

	grid, err := c.api.Save(ctx, c.Pending())
	if err != nil {
		return err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	clear(c.pending)
	c.render(grid)

	return nil
}

// Reset asks the server for a fresh grid and drops every pending mark.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.net.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.net.Release(1)

	grid, err := c.api.Reset(ctx)
	if err != nil {
		return err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	clear(c.pending)
	c.render(grid)

	return nil
}

// Pending returns the pending cell ids in ascending order.
func (c *Controller) Pending() []int {
	c.lock.Lock()
	defer c.lock.Unlock()

	ids := make([]int, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Controller) Grid() Grid {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.grid.Clone()
}
