package world

import (
	"errors"
	"fmt"
	"sort"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/sim/grid"
)

var errNoChunkStore = errors.New("chunk store not configured")

// LoadChunk places every stored block of k. Each placement schedules the cell and
// its neighbors exactly as a PLACE edit would. Loading a resident chunk is a no-op.
func (w *World) LoadChunk(k grid.ChunkKey) (int, error) {
	if w.store == nil {
		return 0, errNoChunkStore
	}
	if w.loaded[k] {
		return 0, nil
	}
	blocks, _, err := w.store.Load(k)
	if err != nil {
		return 0, fmt.Errorf("load chunk %s: %w", k, err)
	}
	w.loaded[k] = true
	n := 0
	for _, p := range blocks {
		if p.Block == nil {
			continue
		}
		if w.place(p.Pos, p.Block) {
			n++
		}
	}
	return n, nil
}

// UnloadChunk writes the blocks of k to the store and drops them from the grid
// without scheduling anything.
func (w *World) UnloadChunk(k grid.ChunkKey) (int, error) {
	if w.store == nil {
		return 0, errNoChunkStore
	}
	coords := w.grid.InChunk(k, w.cfg.ChunkSize)
	if !w.loaded[k] && len(coords) == 0 {
		// Never loaded: the stored copy is still authoritative.
		return 0, nil
	}
	blocks := make([]blocktext.Placed, 0, len(coords))
	for _, c := range coords {
		blocks = append(blocks, blocktext.Placed{Pos: c, Block: w.grid.Block(c)})
	}
	if err := w.store.Save(k, blocks); err != nil {
		return 0, fmt.Errorf("save chunk %s: %w", k, err)
	}
	for _, c := range coords {
		w.grid.Remove(c)
		w.markDirty(c)
	}
	delete(w.loaded, k)
	return len(blocks), nil
}

// UnloadAll unloads every resident chunk, continuing past failures.
func (w *World) UnloadAll() error {
	if w.store == nil {
		return nil
	}
	keys := map[grid.ChunkKey]bool{}
	for k := range w.loaded {
		keys[k] = true
	}
	for _, k := range w.grid.Chunks(w.cfg.ChunkSize) {
		keys[k] = true
	}
	ordered := make([]grid.ChunkKey, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sortChunkKeys(ordered)

	var errs []error
	for _, k := range ordered {
		if _, err := w.UnloadChunk(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown hands a snapshot of the last completed tick to write, then unloads every
// chunk. The snapshot is taken while chunks are resident, so on resume it agrees with
// the chunk files written here. Call only after Run has returned.
func (w *World) Shutdown(write func(snapshot.SnapshotV1) error) error {
	var errs []error
	if write != nil {
		tick := w.tick.Load()
		if tick > 0 {
			tick--
		}
		if err := write(w.ExportSnapshot(tick)); err != nil {
			errs = append(errs, fmt.Errorf("final snapshot: %w", err))
		}
	}
	if err := w.UnloadAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadedChunks lists resident chunks in key order.
func (w *World) LoadedChunks() []grid.ChunkKey {
	out := make([]grid.ChunkKey, 0, len(w.loaded))
	for k := range w.loaded {
		out = append(out, k)
	}
	sortChunkKeys(out)
	return out
}

func (w *World) ensureLoaded(pos grid.Coord) error {
	if w.store == nil {
		return nil
	}
	k := grid.ChunkOf(pos, w.cfg.ChunkSize)
	if w.loaded[k] {
		return nil
	}
	_, err := w.LoadChunk(k)
	return err
}

func sortChunkKeys(ks []grid.ChunkKey) {
	sort.Slice(ks, func(i, j int) bool {
		if ks[i].CX != ks[j].CX {
			return ks[i].CX < ks[j].CX
		}
		return ks[i].CY < ks[j].CY
	})
}
