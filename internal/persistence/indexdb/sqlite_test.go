package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/propagate"
	"wirecraft.ai/internal/sim/tuning"
	"wirecraft.ai/internal/sim/world"
)

func TestSQLiteIndex_WritesTables(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "world.sqlite"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()

	if err := idx.UpsertTuning("w1", tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}

	pos := [2]int{1, 0}
	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   5,
		Digest: "d5",
		Stats:  propagate.Stats{Popped: 10, WireWrites: 2, GateWrites: 1},
		Edits: []world.RecordedEdit{
			{ClientID: "C1", Op: protocol.EditOp{Op: protocol.OpPlace, Pos: &pos, Kind: "wire"}},
			{ClientID: "C1", Op: protocol.EditOp{Op: protocol.OpRemove, Pos: &pos}},
		},
	})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 5, Actor: "C1", Action: "PLACE", Pos: pos, To: "wire 1 0 0"})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 5, Actor: "C1", Action: "REMOVE", Pos: pos, From: "wire 1 0 0"})
	idx.RecordSnapshot("/data/snapshots/3000.snap.zst", snapshot.SnapshotV1{
		Header:  snapshot.Header{Version: snapshot.Version, WorldID: "w1", Tick: 3000},
		Blocks:  []string{"stone 0 0 0", "wire 1 0 128", "bogus"},
		Pending: [][2]int{{1, 0}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	count := func(q string) int {
		t.Helper()
		var n int
		if err := idx.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		return n
	}
	if n := count(`SELECT COUNT(*) FROM ticks WHERE tick=5 AND mutations=3`); n != 1 {
		t.Fatalf("ticks rows = %d", n)
	}
	if n := count(`SELECT COUNT(*) FROM edits WHERE tick=5`); n != 2 {
		t.Fatalf("edits rows = %d", n)
	}
	if n := count(`SELECT COUNT(*) FROM audits WHERE tick=5 AND x=1 AND y=0`); n != 2 {
		t.Fatalf("audit rows = %d", n)
	}
	if n := count(`SELECT COUNT(*) FROM snapshot_blocks WHERE kind='wire' AND x=1`); n != 1 {
		t.Fatalf("snapshot_blocks wire rows = %d", n)
	}
	if n := count(`SELECT COUNT(*) FROM snapshot_blocks`); n != 2 {
		t.Fatalf("snapshot_blocks rows = %d", n)
	}
	if n := count(`SELECT COUNT(*) FROM meta WHERE key='tuning_digest'`); n != 1 {
		t.Fatalf("meta tuning digest missing")
	}

	tick, path, ok, err := idx.LatestSnapshot(ctx, 5000)
	if err != nil || !ok || tick != 3000 || path != "/data/snapshots/3000.snap.zst" {
		t.Fatalf("LatestSnapshot = %d %q %v %v", tick, path, ok, err)
	}
	if _, _, ok, err := idx.LatestSnapshot(ctx, 10); err != nil || ok {
		t.Fatalf("LatestSnapshot before first = ok:%v err:%v", ok, err)
	}
	if st := idx.Stats(); st.WriteErrorTotal != 0 {
		t.Fatalf("write errors: %+v", st)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop stats = %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
