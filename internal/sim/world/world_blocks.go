package world

import (
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
	"wirecraft.ai/internal/sim/propagate"
)

// The synchronous API below drives the world directly. It must not be mixed with a
// running Run loop; use it from tests, tools, or the loop goroutine itself.

// Place puts b into an empty cell and schedules the cell and its neighbors.
// It returns false when the cell is occupied, b is malformed, or the cell's chunk
// could not be loaded.
func (w *World) Place(pos grid.Coord, b block.Block) bool {
	if b == nil || !block.Valid(b) {
		return false
	}
	if err := w.ensureLoaded(pos); err != nil {
		return false
	}
	return w.place(pos, b)
}

// Remove clears pos and schedules its neighbors.
func (w *World) Remove(pos grid.Coord) (block.Block, bool) {
	if err := w.ensureLoaded(pos); err != nil {
		return nil, false
	}
	return w.remove(pos)
}

func (w *World) Query(pos grid.Coord) (block.Block, bool) {
	e, ok := w.grid.Get(pos)
	if !ok {
		return nil, false
	}
	return e.Block, true
}

// Tick runs one full step with no edits and returns the engine's wave stats.
func (w *World) Tick() propagate.Stats {
	return w.stepInternal(nil)
}

// Pending reports how many cells are queued for the next wave.
func (w *World) Pending() int { return w.queue.Len() }

func (w *World) place(pos grid.Coord, b block.Block) bool {
	if _, ok := w.grid.Get(pos); ok {
		return false
	}
	w.nextHandle++
	w.grid.Set(pos, grid.Entry{Handle: grid.Handle(w.nextHandle), Block: b})
	w.queue.PushWithNeighbors(pos)
	w.markDirty(pos)
	return true
}

func (w *World) remove(pos grid.Coord) (block.Block, bool) {
	e, ok := w.grid.Remove(pos)
	if !ok {
		return nil, false
	}
	w.queue.PushWithNeighbors(pos)
	w.markDirty(pos)
	return e.Block, true
}
