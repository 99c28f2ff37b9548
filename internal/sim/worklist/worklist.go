package worklist

import "wirecraft.ai/internal/sim/grid"

// Entry is either a cell to re-evaluate or the wave boundary marker.
type Entry struct {
	Cell     grid.Coord
	Boundary bool
}

// Queue is the global FIFO of pending cell updates. It may hold duplicates and
// stale coordinates; consumers treat absent cells as no-ops.
// Accessed only from the world loop goroutine.
type Queue struct {
	buf  []Entry
	head int
}

func New() *Queue { return &Queue{} }

func (q *Queue) Push(c grid.Coord) {
	q.buf = append(q.buf, Entry{Cell: c})
}

// PushWithNeighbors enqueues c followed by its four axis neighbors.
func (q *Queue) PushWithNeighbors(c grid.Coord) {
	q.Push(c)
	for _, n := range c.Neighbors() {
		q.Push(n)
	}
}

// PushBoundary appends the wave boundary marker.
func (q *Queue) PushBoundary() {
	q.buf = append(q.buf, Entry{Boundary: true})
}

func (q *Queue) Pop() (Entry, bool) {
	if q.head >= len(q.buf) {
		return Entry{}, false
	}
	e := q.buf[q.head]
	q.buf[q.head] = Entry{}
	q.head++
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	} else if q.head >= 1024 && q.head*2 >= len(q.buf) {
		n := copy(q.buf, q.buf[q.head:])
		q.buf = q.buf[:n]
		q.head = 0
	}
	return e, true
}

func (q *Queue) Len() int { return len(q.buf) - q.head }

// Pending returns the queued cells in order, skipping boundary markers.
func (q *Queue) Pending() []grid.Coord {
	out := make([]grid.Coord, 0, q.Len())
	for _, e := range q.buf[q.head:] {
		if !e.Boundary {
			out = append(out, e.Cell)
		}
	}
	return out
}

// Drain pops one wave: a boundary marker is appended and entries are handed to fn
// until the marker comes back out. Entries fn pushes land behind the marker and
// wait for the next call.
func (q *Queue) Drain(fn func(grid.Coord)) int {
	q.PushBoundary()
	n := 0
	for {
		e, ok := q.Pop()
		if !ok || e.Boundary {
			return n
		}
		n++
		fn(e.Cell)
	}
}
