package propagate

import (
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
)

// evalGate samples the single cell behind a repeater/inverter and updates its output.
func (e *Engine) evalGate(pos grid.Coord, st *Stats) {
	cur := e.grid.Block(pos)
	power, facing, ok := block.GateState(cur)
	if !ok {
		return
	}
	in := e.grid.Block(pos.Step(facing.Opposite()))

	var next block.Block
	switch g := cur.(type) {
	case block.Repeater:
		g.Power = repeaterOutput(in)
		next = g
	case block.Inverter:
		g.Power = inverterOutput(in, facing)
		next = g
	}
	if block.Power(next) == power {
		return
	}
	e.write(pos, cur, next)
	st.GateWrites++
	e.queue.PushWithNeighbors(pos)
}

// inputHigh reports whether a gate input cell reads as powered.
func inputHigh(in block.Block) bool {
	switch v := in.(type) {
	case block.Stone:
		return true
	case block.Wire:
		return v.Power >= 1
	}
	return false
}

func repeaterOutput(in block.Block) int {
	if inputHigh(in) {
		return 1
	}
	return 0
}

func inverterOutput(in block.Block, facing block.Dir) int {
	// A repeater chained straight into the inverter drives it directly.
	if r, ok := in.(block.Repeater); ok && r.Facing == facing {
		return 1 - r.Power
	}
	if inputHigh(in) {
		return 0
	}
	return 1
}
