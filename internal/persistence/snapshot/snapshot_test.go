package snapshot

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "42.snap.zst")
	in := SnapshotV1{
		Header:             Header{Version: Version, WorldID: "w1", Tick: 42},
		TickRate:           5,
		ChunkSize:          16,
		RelaxBudget:        100,
		GateOutput:         "literal",
		SnapshotEveryTicks: 3000,
		Blocks:             []string{"stone 0 0 0", "wire 1 0 128", "repeater 2 0 1 1"},
		Pending:            [][2]int{{1, 0}, {3, 0}},
		Loaded:             []ChunkKeyV1{{CX: -1, CY: 0}, {CX: 0, CY: 0}},
		NextHandle:         7,
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("roundtrip mismatch:\nin=%s\nout=%s", spew.Sdump(in), spew.Sdump(out))
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header = %+v want %+v", h, in.Header)
	}
}

func TestReadSnapshot_RejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := WriteSnapshot(path, SnapshotV1{Header: Header{Version: 9, WorldID: "w", Tick: 1}}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected version error")
	}
}
