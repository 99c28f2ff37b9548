package grid

import (
	"fmt"

	"wirecraft.ai/internal/sim/block"
)

// Coord identifies a grid cell on the unbounded lattice.
type Coord struct {
	X int
	Y int
}

func (c Coord) Step(d block.Dir) Coord {
	dx, dy := d.Delta()
	return Coord{X: c.X + dx, Y: c.Y + dy}
}

// Neighbors returns the four axis neighbors in direction order (+Y, +X, -Y, -X).
func (c Coord) Neighbors() [4]Coord {
	var out [4]Coord
	for i, d := range block.Dirs {
		out[i] = c.Step(d)
	}
	return out
}

func (c Coord) ToArray() [2]int { return [2]int{c.X, c.Y} }

func FromArray(a [2]int) Coord { return Coord{X: a[0], Y: a[1]} }

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Less orders coordinates by X, then Y.
func (c Coord) Less(o Coord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Y < o.Y
}

// DirBetween returns the axis direction that best points from `from` to `to`.
// Vertical wins ties, so a target on a diagonal is treated as above/below.
func DirBetween(from, to Coord) block.Dir {
	dx := to.X - from.X
	dy := to.Y - from.Y
	if absInt(dx) <= absInt(dy) {
		if dy >= 0 {
			return block.North
		}
		return block.South
	}
	if dx >= 0 {
		return block.East
	}
	return block.West
}

// ChunkKey addresses a square chunk of cells.
type ChunkKey struct {
	CX int
	CY int
}

func (k ChunkKey) String() string { return fmt.Sprintf("%d_%d", k.CX, k.CY) }

// ChunkOf returns the chunk containing c for chunks of side `size` (size > 0).
func ChunkOf(c Coord, size int) ChunkKey {
	return ChunkKey{CX: floorDiv(c.X, size), CY: floorDiv(c.Y, size)}
}

// Contains reports whether c lies inside chunk k.
func (k ChunkKey) Contains(c Coord, size int) bool {
	return ChunkOf(c, size) == k
}

func floorDiv(a, b int) int {
	q := a / b
	if r := a % b; r < 0 {
		q--
	}
	return q
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
