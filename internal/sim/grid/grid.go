package grid

import (
	"sort"

	"wirecraft.ai/internal/sim/block"
)

// Handle is an opaque token owned by whoever renders a cell. The grid passes it through untouched.
type Handle uint64

type Entry struct {
	Handle Handle
	Block  block.Block
}

// Grid is a sparse map from coordinate to block. It owns no scheduling logic.
// Accessed only from the world loop goroutine.
type Grid struct {
	cells map[Coord]Entry
}

func New() *Grid {
	return &Grid{cells: map[Coord]Entry{}}
}

func (g *Grid) Get(c Coord) (Entry, bool) {
	e, ok := g.cells[c]
	return e, ok
}

// Block returns the block at c, or nil when the cell is empty.
func (g *Grid) Block(c Coord) block.Block {
	e, ok := g.cells[c]
	if !ok {
		return nil
	}
	return e.Block
}

func (g *Grid) Set(c Coord, e Entry) {
	g.cells[c] = e
}

// SetBlock replaces the block at an occupied cell, keeping its handle.
// It reports false when c is empty.
func (g *Grid) SetBlock(c Coord, b block.Block) bool {
	e, ok := g.cells[c]
	if !ok {
		return false
	}
	e.Block = b
	g.cells[c] = e
	return true
}

func (g *Grid) Remove(c Coord) (Entry, bool) {
	e, ok := g.cells[c]
	if !ok {
		return Entry{}, false
	}
	delete(g.cells, c)
	return e, true
}

func (g *Grid) Len() int { return len(g.cells) }

// Coords returns every occupied coordinate in a stable order.
func (g *Grid) Coords() []Coord {
	out := make([]Coord, 0, len(g.cells))
	for c := range g.cells {
		out = append(out, c)
	}
	sortCoords(out)
	return out
}

// InChunk returns the occupied coordinates of chunk k in a stable order.
func (g *Grid) InChunk(k ChunkKey, size int) []Coord {
	var out []Coord
	for c := range g.cells {
		if k.Contains(c, size) {
			out = append(out, c)
		}
	}
	sortCoords(out)
	return out
}

// Chunks returns the keys of every chunk holding at least one block.
func (g *Grid) Chunks(size int) []ChunkKey {
	seen := map[ChunkKey]bool{}
	for c := range g.cells {
		seen[ChunkOf(c, size)] = true
	}
	out := make([]ChunkKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CX != out[j].CX {
			return out[i].CX < out[j].CX
		}
		return out[i].CY < out[j].CY
	})
	return out
}

func sortCoords(cs []Coord) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
}
