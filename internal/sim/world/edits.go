package world

import (
	"fmt"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
)

type editResult struct {
	OK      bool
	Code    string
	Message string
}

func editOK() editResult { return editResult{OK: true} }

func editFail(code, format string, args ...any) editResult {
	return editResult{Code: code, Message: fmt.Sprintf(format, args...)}
}

// applyEdit applies a single op. Ops are applied in arrival order within a tick.
func (w *World) applyEdit(nowTick uint64, e RecordedEdit) editResult {
	op := e.Op
	switch op.Op {
	case protocol.OpPlace:
		if op.Pos == nil {
			return editFail(protocol.ErrBadRequest, "missing pos")
		}
		pos := grid.FromArray(*op.Pos)
		b, err := editBlock(op, pos)
		if err != nil {
			return editFail(protocol.ErrBadRequest, "%v", err)
		}
		if err := w.ensureLoaded(pos); err != nil {
			return editFail(protocol.ErrInternal, "load chunk: %v", err)
		}
		if !w.place(pos, b) {
			return editFail(protocol.ErrConflict, "cell %s occupied", pos)
		}
		w.audit(nowTick, e.ClientID, op.Op, pos.ToArray(), "", blocktext.Encode(blocktext.Placed{Pos: pos, Block: b}), "")
		return editOK()

	case protocol.OpRemove:
		if op.Pos == nil {
			return editFail(protocol.ErrBadRequest, "missing pos")
		}
		pos := grid.FromArray(*op.Pos)
		if err := w.ensureLoaded(pos); err != nil {
			return editFail(protocol.ErrInternal, "load chunk: %v", err)
		}
		old, ok := w.remove(pos)
		if !ok {
			return editFail(protocol.ErrInvalidTarget, "cell %s empty", pos)
		}
		w.audit(nowTick, e.ClientID, op.Op, pos.ToArray(), blocktext.Encode(blocktext.Placed{Pos: pos, Block: old}), "", "")
		return editOK()

	case protocol.OpLoadChunk, protocol.OpUnloadChunk:
		if op.Chunk == nil {
			return editFail(protocol.ErrBadRequest, "missing chunk")
		}
		if w.store == nil {
			return editFail(protocol.ErrBadRequest, "chunk streaming disabled")
		}
		k := grid.ChunkKey{CX: op.Chunk[0], CY: op.Chunk[1]}
		var (
			n   int
			err error
		)
		if op.Op == protocol.OpLoadChunk {
			n, err = w.LoadChunk(k)
		} else {
			n, err = w.UnloadChunk(k)
		}
		if err != nil {
			return editFail(protocol.ErrInternal, "%v", err)
		}
		w.audit(nowTick, e.ClientID, op.Op, *op.Chunk, "", "", fmt.Sprintf("blocks=%d", n))
		return editOK()
	}
	return editFail(protocol.ErrBadRequest, "unknown op %q", op.Op)
}

// editBlock builds the block a PLACE op describes.
func editBlock(op protocol.EditOp, pos grid.Coord) (block.Block, error) {
	b, err := blocktext.KindFromInts(op.Kind, op.Fields)
	if err != nil {
		return nil, err
	}
	if op.Pristine {
		b = block.Pristine(b)
	}
	// Without an explicit facing the gate's input side turns toward the actor.
	if op.From != nil && block.IsGate(b) && len(op.Fields) < 2 {
		b = block.WithFacing(b, grid.DirBetween(grid.FromArray(*op.From), pos))
	}
	return b, nil
}

func (w *World) audit(nowTick uint64, actor, action string, pos [2]int, from, to, reason string) {
	if w.auditLogger == nil {
		return
	}
	_ = w.auditLogger.WriteAudit(AuditEntry{
		Tick:   nowTick,
		Actor:  actor,
		Action: action,
		Pos:    pos,
		From:   from,
		To:     to,
		Reason: reason,
	})
}
