package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := "tick_rate_hz: 20\nchunk_size: 32\ngate_output: facing\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 20 || got.ChunkSize != 32 || got.GateOutput != "facing" {
		t.Fatalf("overrides not applied: %+v", got)
	}
	def := Defaults()
	if got.RelaxBudget != def.RelaxBudget || got.SnapshotEveryTicks != def.SnapshotEveryTicks {
		t.Fatalf("omitted keys lost their defaults: %+v", got)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"rate":   "tick_rate_hz: 0\n",
		"chunk":  "chunk_size: -1\n",
		"gate":   "gate_output: sideways\n",
		"budget": "relax_budget: -5\n",
		"yaml":   "tick_rate_hz: [\n",
	}
	for name, raw := range cases {
		path := filepath.Join(t.TempDir(), "tuning.yaml")
		if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "tuning.yaml") {
			t.Fatalf("%s: expected tuning.yaml error, got %v", name, err)
		}
	}
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}
