package world

import (
	"encoding/json"
	"time"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/grid"
	"wirecraft.ai/internal/sim/propagate"
)

func (w *World) stepInternal(edits []RecordedEdit) propagate.Stats {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Apply edits in server receive order (the inbox order).
	results := make([]editResult, len(edits))
	for i, e := range edits {
		results[i] = w.applyEdit(nowTick, e)
	}

	stats := w.engine.Tick()

	for i, e := range edits {
		cl := w.clients[e.ClientID]
		if cl == nil {
			continue
		}
		r := results[i]
		b, err := json.Marshal(protocol.EditResultMsg{
			Type:            protocol.TypeEditResult,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			ID:              e.Op.ID,
			OK:              r.OK,
			Code:            r.Code,
			Message:         r.Message,
		})
		if err != nil {
			continue
		}
		sendLatest(cl.Out, b)
	}
	w.broadcastDelta(nowTick)

	digest := w.StateDigest()
	if w.tickLogger != nil {
		_ = w.tickLogger.WriteTick(TickLogEntry{Tick: nowTick, Edits: edits, Stats: stats, Digest: digest})
	}

	// Snapshot every N ticks (default 3000), starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		every := uint64(w.cfg.SnapshotEveryTicks)
		if nowTick%every == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)

	w.metrics.Store(WorldMetrics{
		Tick:         nextTick,
		Blocks:       w.grid.Len(),
		Pending:      w.queue.Len(),
		Backlog:      len(w.backlog),
		Clients:      len(w.clients),
		LoadedChunks: len(w.loaded),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
			Query: len(w.query),
		},
		StepMS: stepMS,
		Engine: stats,
	})
	return stats
}

// broadcastDelta sends the cells touched this tick to every client and resets the set.
func (w *World) broadcastDelta(nowTick uint64) {
	if len(w.dirty) == 0 {
		return
	}
	coords := make([]grid.Coord, 0, len(w.dirty))
	for c := range w.dirty {
		coords = append(coords, c)
	}
	w.dirty = map[grid.Coord]struct{}{}
	if len(w.clients) == 0 {
		return
	}
	sortCoords(coords)

	msg := protocol.TickMsg{Type: protocol.TypeTick, ProtocolVersion: protocol.Version, Tick: nowTick}
	for _, c := range coords {
		if b := w.grid.Block(c); b != nil {
			msg.Changed = append(msg.Changed, blocktext.Encode(blocktext.Placed{Pos: c, Block: b}))
		} else {
			msg.Removed = append(msg.Removed, c.ToArray())
		}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, cl := range w.clients {
		sendLatest(cl.Out, b)
	}
}
