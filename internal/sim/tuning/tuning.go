package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	ChunkSize          int `yaml:"chunk_size"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	// Propagation.
	RelaxBudget int    `yaml:"relax_budget"`
	GateOutput  string `yaml:"gate_output"`

	MaxEditsPerTick int `yaml:"max_edits_per_tick"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         5,
		ChunkSize:          16,
		SnapshotEveryTicks: 3000,
		RelaxBudget:        262144,
		GateOutput:         "literal",
		MaxEditsPerTick:    1024,
	}
}

// Load reads a tuning file on top of Defaults, so omitted keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.RelaxBudget < 0 {
		return fmt.Errorf("relax_budget must be >= 0")
	}
	if t.MaxEditsPerTick < 0 {
		return fmt.Errorf("max_edits_per_tick must be >= 0")
	}
	switch t.GateOutput {
	case "", "literal", "facing":
	default:
		return fmt.Errorf("unknown gate_output %q", t.GateOutput)
	}
	return nil
}
