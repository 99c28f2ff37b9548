package main

import (
	"testing"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
	"wirecraft.ai/internal/sim/propagate"
	"wirecraft.ai/internal/sim/world"
)

func TestBuildRun(t *testing.T) {
	ops := buildRun(10, -3, 4)
	if len(ops) != 1+4+3 {
		t.Fatalf("ops = %d", len(ops))
	}
	seen := map[string]bool{}
	for i, op := range ops {
		if seen[op.ID] {
			t.Fatalf("duplicate op id %s", op.ID)
		}
		seen[op.ID] = true
		if op.Pos == nil || op.Pos[1] != -3 || op.Pos[0] != 10+i {
			t.Fatalf("op %d pos = %v", i, op.Pos)
		}
		if _, err := blocktext.KindFromInts(op.Kind, op.Fields); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}
}

func TestBuildRun_SettlesUnderEitherGateRule(t *testing.T) {
	for _, rule := range []propagate.GateRule{propagate.GateRuleLiteral, propagate.GateRuleFacing} {
		t.Run(rule.String(), func(t *testing.T) {
			w := world.New(world.WorldConfig{GateRule: rule})
			var edits []world.RecordedEdit
			for _, op := range buildRun(0, 0, 3) {
				edits = append(edits, world.RecordedEdit{ClientID: "bot", Op: op})
			}
			w.StepOnce(edits)
			for i := 0; i < 50 && w.Pending() > 0; i++ {
				w.Tick()
			}
			if w.Pending() != 0 {
				t.Fatalf("run did not settle")
			}
			if b, _ := w.Query(grid.Coord{X: 4, Y: 0}); b != (block.Repeater{Power: 1, Facing: block.East}) {
				t.Fatalf("repeater = %#v", b)
			}
			if b, _ := w.Query(grid.Coord{X: 5, Y: 0}); b != (block.Inverter{Power: 0, Facing: block.East}) {
				t.Fatalf("inverter = %#v", b)
			}
			if b, _ := w.Query(grid.Coord{X: 6, Y: 0}); b != (block.Wire{Power: 0}) {
				t.Fatalf("last wire = %#v", b)
			}
			// Settled means further ticks change nothing.
			d := w.StateDigest()
			w.Tick()
			if w.StateDigest() != d || w.Pending() != 0 {
				t.Fatalf("state moved after settling")
			}
		})
	}
}
