package world

import (
	"fmt"

	"wirecraft.ai/internal/sim/propagate"
	"wirecraft.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	ChunkSize  int

	// Propagation.
	RelaxBudget int
	GateRule    propagate.GateRule

	// Operational parameters. These are included in snapshots for deterministic replay/resume.
	SnapshotEveryTicks int
	MaxEditsPerTick    int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 16
	}
	if c.RelaxBudget < 0 {
		c.RelaxBudget = 0
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
	if c.MaxEditsPerTick < 0 {
		c.MaxEditsPerTick = 0
	}
}

// ConfigFromTuning maps a loaded tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) (WorldConfig, error) {
	rule, ok := propagate.ParseGateRule(t.GateOutput)
	if !ok {
		return WorldConfig{}, fmt.Errorf("unknown gate_output %q", t.GateOutput)
	}
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		ChunkSize:          t.ChunkSize,
		RelaxBudget:        t.RelaxBudget,
		GateRule:           rule,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		MaxEditsPerTick:    t.MaxEditsPerTick,
	}, nil
}
