package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEdits []EditEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.query:
			w.handleQuery(req)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case env := <-w.inbox:
			pendingEdits = append(pendingEdits, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingEdits)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingEdits = pendingEdits[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// step applies session changes, then at most MaxEditsPerTick ops (oldest first,
// the rest carried over), then one propagation wave.
func (w *World) step(joins []JoinRequest, leaves []string, envs []EditEnvelope) {
	nowTick := w.tick.Load()
	for _, id := range leaves {
		delete(w.clients, id)
	}
	for _, req := range joins {
		resp := w.joinClient(req.Name, req.Out, nowTick)
		if req.Resp != nil {
			select {
			case req.Resp <- resp:
			default:
			}
		}
	}

	ops := w.backlog
	for _, env := range envs {
		for _, op := range env.Ops {
			ops = append(ops, RecordedEdit{ClientID: env.ClientID, Op: op})
		}
	}
	n := len(ops)
	if limit := w.cfg.MaxEditsPerTick; limit > 0 && n > limit {
		n = limit
	}
	w.backlog = append([]RecordedEdit(nil), ops[n:]...)
	w.stepInternal(ops[:n])
}

// StepOnce advances the world by a single tick applying exactly the given edits.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(edits []RecordedEdit) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.stepInternal(edits)
	return tick, w.StateDigest()
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
