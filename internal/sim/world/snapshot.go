package world

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/grid"
	"wirecraft.ai/internal/sim/propagate"
	"wirecraft.ai/internal/sim/worklist"
)

// ExportSnapshot captures the state after nowTick has been simulated.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	coords := w.grid.Coords()
	blocks := make([]string, 0, len(coords))
	for _, c := range coords {
		blocks = append(blocks, blocktext.Encode(blocktext.Placed{Pos: c, Block: w.grid.Block(c)}))
	}
	pendingCells := w.queue.Pending()
	pending := make([][2]int, 0, len(pendingCells))
	for _, c := range pendingCells {
		pending = append(pending, c.ToArray())
	}
	loaded := make([]snapshot.ChunkKeyV1, 0, len(w.loaded))
	for _, k := range w.LoadedChunks() {
		loaded = append(loaded, snapshot.ChunkKeyV1{CX: k.CX, CY: k.CY})
	}
	var backlog []snapshot.EditV1
	for _, e := range w.backlog {
		op, _ := json.Marshal(e.Op)
		backlog = append(backlog, snapshot.EditV1{ClientID: e.ClientID, Op: op})
	}

	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRate:           w.cfg.TickRateHz,
		ChunkSize:          w.cfg.ChunkSize,
		RelaxBudget:        w.cfg.RelaxBudget,
		GateOutput:         w.cfg.GateRule.String(),
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		Blocks:             blocks,
		Pending:            pending,
		Loaded:             loaded,
		Backlog:            backlog,
		NextHandle:         w.nextHandle,
	}
}

// ImportSnapshot replaces the current in-memory world state with the snapshot.
// It sets the world's tick to snapshotTick+1 (the next tick to simulate).
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	rule, ok := propagate.ParseGateRule(s.GateOutput)
	if !ok {
		return fmt.Errorf("snapshot gate_output %q", s.GateOutput)
	}

	g := grid.New()
	var handle uint64
	for i, line := range s.Blocks {
		p, err := blocktext.Decode(line)
		if err != nil {
			return fmt.Errorf("snapshot block %d: %w", i, err)
		}
		if _, dup := g.Get(p.Pos); dup {
			return fmt.Errorf("snapshot block %d: duplicate cell %s", i, p.Pos)
		}
		handle++
		g.Set(p.Pos, grid.Entry{Handle: grid.Handle(handle), Block: p.Block})
	}
	var backlog []RecordedEdit
	for i, e := range s.Backlog {
		var op protocol.EditOp
		if err := json.Unmarshal(e.Op, &op); err != nil {
			return fmt.Errorf("snapshot backlog %d: %w", i, err)
		}
		backlog = append(backlog, RecordedEdit{ClientID: e.ClientID, Op: op})
	}
	q := worklist.New()
	for _, c := range s.Pending {
		q.Push(grid.FromArray(c))
	}

	cfg := w.cfg
	if s.Header.WorldID != "" {
		cfg.ID = s.Header.WorldID
	}
	if s.TickRate > 0 {
		cfg.TickRateHz = s.TickRate
	}
	if s.ChunkSize > 0 {
		cfg.ChunkSize = s.ChunkSize
	}
	cfg.RelaxBudget = s.RelaxBudget
	cfg.GateRule = rule
	cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	cfg.applyDefaults()

	w.cfg = cfg
	w.grid = g
	w.queue = q
	w.engine = propagate.New(g, q, propagate.Options{
		GateRule:    cfg.GateRule,
		RelaxBudget: cfg.RelaxBudget,
		OnChange:    w.onEngineChange,
	})
	w.nextHandle = s.NextHandle
	if w.nextHandle < handle {
		w.nextHandle = handle
	}
	w.loaded = map[grid.ChunkKey]bool{}
	for _, k := range s.Loaded {
		w.loaded[grid.ChunkKey{CX: k.CX, CY: k.CY}] = true
	}
	w.dirty = map[grid.Coord]struct{}{}
	w.backlog = backlog
	w.tick.Store(s.Header.Tick + 1)
	return nil
}

type adminSnapshotReq struct {
	Resp chan snapshotResult
}

type snapshotResult struct {
	Tick uint64
	Err  error
}

var (
	errNoSnapshotSink  = errors.New("snapshot sink not configured")
	errSnapshotBackoff = errors.New("snapshot sink backpressure")
)

// RequestSnapshot asks the world loop to export the last completed tick to the
// snapshot sink. Safe to call from other goroutines.
func (w *World) RequestSnapshot(ctx context.Context) (uint64, error) {
	resp := make(chan snapshotResult, 1)
	select {
	case w.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.Tick, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// handleAdminSnapshotRequests runs right after a step, so one export serves every
// request collected during the tick.
func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	res := snapshotResult{}
	if cur := w.tick.Load(); cur > 0 {
		res.Tick = cur - 1
	}
	if w.snapshotSink == nil {
		res.Err = errNoSnapshotSink
	} else {
		select {
		case w.snapshotSink <- w.ExportSnapshot(res.Tick):
		default:
			res.Err = errSnapshotBackoff
		}
	}
	for _, r := range reqs {
		select {
		case r.Resp <- res:
		default:
			// Requester gave up; never block the loop.
		}
	}
}
