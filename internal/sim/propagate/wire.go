package propagate

import (
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
)

// relaxWire flood-fills power through the wire network touching start. It runs on
// its own local queue and never consumes entries from the global worklist; cells that
// may depend on the network (gates, solids, empty cells) are handed to the next wave.
func (e *Engine) relaxWire(start grid.Coord, st *Stats) {
	st.Relaxations++

	local := []grid.Coord{start}
	notify := newNotifySet()

	head := 0
	for head < len(local) {
		if e.opts.RelaxBudget > 0 && head >= e.opts.RelaxBudget {
			// Out of budget: resume from the unvisited frontier next wave.
			st.BudgetHits++
			seen := map[grid.Coord]bool{}
			for _, p := range local[head:] {
				if seen[p] {
					continue
				}
				seen[p] = true
				e.queue.Push(p)
			}
			break
		}
		pos := local[head]
		head++

		cur, ok := e.grid.Block(pos).(block.Wire)
		if !ok {
			continue
		}
		if p := e.wireInput(pos); p != cur.Power {
			e.write(pos, cur, block.Wire{Power: p})
			st.WireWrites++
			local = append(local, pos)
			for _, n := range pos.Neighbors() {
				local = append(local, n)
				notify.add(n)
			}
		}
		notify.remove(pos)
	}

	for _, c := range notify.list() {
		e.queue.Push(c)
		st.Notified++
	}
}

// wireInput is the strongest contribution any neighbor makes to the wire at pos.
func (e *Engine) wireInput(pos grid.Coord) int {
	best := 0
	for _, d := range block.Dirs {
		switch v := e.grid.Block(pos.Step(d)).(type) {
		case block.Stone:
			return block.MaxPower
		case block.Wire:
			if v.Power-1 > best {
				best = v.Power - 1
			}
		case block.Repeater:
			best = maxInt(best, e.gateContribution(v.Power, v.Facing, d))
		case block.Inverter:
			best = maxInt(best, e.gateContribution(v.Power, v.Facing, d))
		}
	}
	return best
}

// gateContribution is what a gate with the given state feeds a wire that sees it in
// direction d.
func (e *Engine) gateContribution(power int, facing, d block.Dir) int {
	var feeds bool
	switch e.opts.GateRule {
	case GateRuleFacing:
		feeds = facing == d.Opposite()
	default:
		feeds = facing != d.Opposite()
	}
	if !feeds {
		return 0
	}
	return minInt(block.MaxPower, block.MaxPower*power)
}

// notifySet keeps insertion order so that replays enqueue follow-ups identically.
type notifySet struct {
	order []grid.Coord
	in    map[grid.Coord]bool
}

func newNotifySet() *notifySet {
	return &notifySet{in: map[grid.Coord]bool{}}
}

func (s *notifySet) add(c grid.Coord) {
	if s.in[c] {
		return
	}
	s.in[c] = true
	s.order = append(s.order, c)
}

func (s *notifySet) remove(c grid.Coord) {
	delete(s.in, c)
}

func (s *notifySet) list() []grid.Coord {
	out := make([]grid.Coord, 0, len(s.in))
	for _, c := range s.order {
		if s.in[c] {
			out = append(out, c)
			delete(s.in, c)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
