// Package propagate resolves power across wire networks and gates, one worklist wave per tick.
package propagate

import (
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
	"wirecraft.ai/internal/sim/worklist"
)

// GateRule decides when a powered gate feeds an adjacent wire.
type GateRule int

const (
	// GateRuleLiteral feeds the wire unless the gate faces straight back at it
	// (facing != opposite of the wire->gate direction).
	GateRuleLiteral GateRule = iota
	// GateRuleFacing feeds only the wire the gate faces.
	GateRuleFacing
)

func (r GateRule) String() string {
	switch r {
	case GateRuleLiteral:
		return "literal"
	case GateRuleFacing:
		return "facing"
	}
	return "unknown"
}

func ParseGateRule(s string) (GateRule, bool) {
	switch s {
	case "", "literal":
		return GateRuleLiteral, true
	case "facing":
		return GateRuleFacing, true
	}
	return 0, false
}

type Options struct {
	GateRule GateRule
	// RelaxBudget caps local-queue pops per wire relaxation. 0 means unbounded.
	RelaxBudget int
	// OnChange observes every block the engine rewrites.
	OnChange func(pos grid.Coord, from, to block.Block)
}

// Stats summarizes one wave.
type Stats struct {
	Popped      int `json:"popped"`
	Stale       int `json:"stale"`
	Relaxations int `json:"relaxations"`
	WireWrites  int `json:"wire_writes"`
	GateWrites  int `json:"gate_writes"`
	Notified    int `json:"notified"`
	BudgetHits  int `json:"budget_hits"`
}

func (s Stats) Mutations() int { return s.WireWrites + s.GateWrites }

// Engine resolves power levels. It mutates the grid in place and feeds follow-up
// work back into the worklist for the next wave.
// Accessed only from the world loop goroutine.
type Engine struct {
	grid  *grid.Grid
	queue *worklist.Queue
	opts  Options
}

func New(g *grid.Grid, q *worklist.Queue, opts Options) *Engine {
	if opts.RelaxBudget < 0 {
		opts.RelaxBudget = 0
	}
	return &Engine{grid: g, queue: q, opts: opts}
}

func (e *Engine) SetOnChange(fn func(pos grid.Coord, from, to block.Block)) { e.opts.OnChange = fn }

// Tick drains exactly one wave of the worklist.
func (e *Engine) Tick() Stats {
	var st Stats
	e.queue.Drain(func(pos grid.Coord) {
		st.Popped++
		switch e.grid.Block(pos).(type) {
		case nil:
			st.Stale++
		case block.Wire:
			e.relaxWire(pos, &st)
		case block.Repeater, block.Inverter:
			e.evalGate(pos, &st)
		}
	})
	return st
}

func (e *Engine) write(pos grid.Coord, from, to block.Block) {
	e.grid.SetBlock(pos, to)
	if e.opts.OnChange != nil {
		e.opts.OnChange(pos, from, to)
	}
}
