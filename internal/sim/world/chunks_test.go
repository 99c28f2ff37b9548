package world

import (
	"testing"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
)

func TestChunks_UnloadThenLoad(t *testing.T) {
	store := newMemChunkStore()
	w := New(WorldConfig{ChunkSize: 4})
	w.SetChunkStore(store)

	w.Place(grid.Coord{X: 0, Y: 0}, block.Stone{})
	w.Place(grid.Coord{X: 1, Y: 0}, block.Wire{})
	w.Place(grid.Coord{X: 5, Y: 0}, block.Wood{})
	settle(t, w, 16)

	k := grid.ChunkKey{CX: 0, CY: 0}
	if got := w.LoadedChunks(); len(got) != 2 {
		t.Fatalf("loaded = %v", got)
	}

	n, err := w.UnloadChunk(k)
	if err != nil || n != 2 {
		t.Fatalf("UnloadChunk = %d %v", n, err)
	}
	if w.Pending() != 0 {
		t.Fatalf("unload scheduled work: pending=%d", w.Pending())
	}
	if _, ok := w.Query(grid.Coord{X: 1, Y: 0}); ok {
		t.Fatalf("unloaded cell still present")
	}
	saved := store.chunks[k]
	if len(saved) != 2 || saved[1] != (blocktext.Placed{Pos: grid.Coord{X: 1, Y: 0}, Block: block.Wire{Power: 128}}) {
		t.Fatalf("saved = %#v", saved)
	}

	// Reload through an edit that lands in the chunk.
	w.step(nil, nil, []EditEnvelope{{Ops: []protocol.EditOp{placeOp("", 2, 0, "wire")}}})
	if b, ok := w.Query(grid.Coord{X: 1, Y: 0}); !ok || b != (block.Wire{Power: 128}) {
		t.Fatalf("reloaded wire = %#v %v", b, ok)
	}
	settle(t, w, 16)
	if b, _ := w.Query(grid.Coord{X: 2, Y: 0}); b != (block.Wire{Power: 127}) {
		t.Fatalf("new wire = %#v", b)
	}
}

func TestChunks_UnloadUntouchedKeepsStoredCopy(t *testing.T) {
	store := newMemChunkStore()
	k := grid.ChunkKey{CX: 3, CY: -1}
	store.chunks[k] = []blocktext.Placed{{Pos: grid.Coord{X: 48, Y: -16}, Block: block.Wood{}}}

	w := New(WorldConfig{ChunkSize: 16})
	w.SetChunkStore(store)
	if n, err := w.UnloadChunk(k); err != nil || n != 0 {
		t.Fatalf("UnloadChunk = %d %v", n, err)
	}
	if store.saves != 0 || len(store.chunks[k]) != 1 {
		t.Fatalf("stored chunk clobbered")
	}

	n, err := w.LoadChunk(k)
	if err != nil || n != 1 {
		t.Fatalf("LoadChunk = %d %v", n, err)
	}
	if w.Pending() != 5 {
		t.Fatalf("load should schedule the block and its neighbors, pending=%d", w.Pending())
	}
	if n, _ := w.LoadChunk(k); n != 0 {
		t.Fatalf("second load placed %d blocks", n)
	}
}

func TestChunks_UnloadAll(t *testing.T) {
	store := newMemChunkStore()
	w := New(WorldConfig{ChunkSize: 8})
	w.SetChunkStore(store)
	for _, c := range []grid.Coord{{X: -1, Y: -1}, {X: 0, Y: 0}, {X: 20, Y: 3}} {
		w.Place(c, block.Wood{})
	}
	if err := w.UnloadAll(); err != nil {
		t.Fatalf("UnloadAll: %v", err)
	}
	if len(store.chunks) != 3 || w.Metrics().LoadedChunks != 0 {
		t.Fatalf("stored %d chunks", len(store.chunks))
	}
	if len(w.LoadedChunks()) != 0 {
		t.Fatalf("chunks still resident: %v", w.LoadedChunks())
	}
}

func TestChunks_EditOps(t *testing.T) {
	store := newMemChunkStore()
	k := grid.ChunkKey{CX: 1, CY: 0}
	store.chunks[k] = []blocktext.Placed{{Pos: grid.Coord{X: 16, Y: 0}, Block: block.Stone{}}}
	w := New(WorldConfig{})
	w.SetChunkStore(store)
	audits := &memAuditLog{}
	w.SetAuditLogger(audits)

	w.step(nil, nil, []EditEnvelope{{ClientID: "C1", Ops: []protocol.EditOp{
		{Op: protocol.OpLoadChunk, Chunk: at(1, 0)},
	}}})
	if _, ok := w.Query(grid.Coord{X: 16, Y: 0}); !ok {
		t.Fatalf("LOAD_CHUNK did not place stored block")
	}
	w.step(nil, nil, []EditEnvelope{{ClientID: "C1", Ops: []protocol.EditOp{
		{Op: protocol.OpUnloadChunk, Chunk: at(1, 0)},
	}}})
	if _, ok := w.Query(grid.Coord{X: 16, Y: 0}); ok {
		t.Fatalf("UNLOAD_CHUNK left block resident")
	}
	if len(audits.entries) != 2 || audits.entries[0].Reason != "blocks=1" || audits.entries[1].Action != protocol.OpUnloadChunk {
		t.Fatalf("audits = %+v", audits.entries)
	}
}

func TestChunks_RestartKeepsEditsAfterPeriodicSnapshot(t *testing.T) {
	store := newMemChunkStore()
	w := New(WorldConfig{ChunkSize: 16})
	w.SetChunkStore(store)

	w.step(nil, nil, []EditEnvelope{{ClientID: "C1", Ops: []protocol.EditOp{placeOp("a", 0, 0, "stone")}}})
	periodic := w.ExportSnapshot(w.CurrentTick() - 1)
	w.step(nil, nil, []EditEnvelope{{ClientID: "C1", Ops: []protocol.EditOp{placeOp("b", 1, 0, "wire")}}})
	settle(t, w, 8)

	var final snapshot.SnapshotV1
	var writes int
	if err := w.Shutdown(func(s snapshot.SnapshotV1) error {
		final = s
		writes++
		return nil
	}); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if writes != 1 || final.Header.Tick <= periodic.Header.Tick {
		t.Fatalf("final snapshot tick %d, periodic %d, writes %d", final.Header.Tick, periodic.Header.Tick, writes)
	}
	if len(w.LoadedChunks()) != 0 {
		t.Fatalf("chunks still resident after shutdown")
	}

	want := []blocktext.Placed{
		{Pos: grid.Coord{X: 0, Y: 0}, Block: block.Stone{}},
		{Pos: grid.Coord{X: 1, Y: 0}, Block: block.Wire{Power: block.MaxPower}},
	}
	k := grid.ChunkKey{}
	if got := store.chunks[k]; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("chunk file after shutdown = %v", got)
	}

	// Restart from the final snapshot against the same store, then shut down again.
	w2 := New(WorldConfig{ChunkSize: 16})
	w2.SetChunkStore(store)
	if err := w2.ImportSnapshot(final); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	settle(t, w2, 8)
	if b, ok := w2.Query(grid.Coord{X: 1, Y: 0}); !ok || b != want[1].Block {
		t.Fatalf("wire after restart = %#v %v", b, ok)
	}
	w2.step(nil, nil, []EditEnvelope{{ClientID: "C1", Ops: []protocol.EditOp{placeOp("c", 5, 5, "wood")}}})
	if err := w2.Shutdown(nil); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	got := store.chunks[k]
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("chunk file after second shutdown = %v", got)
	}
}
