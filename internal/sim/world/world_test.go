package world

import (
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
	"wirecraft.ai/internal/sim/propagate"
	"wirecraft.ai/internal/sim/tuning"
)

func TestWorld_PlaceRemoveQuery(t *testing.T) {
	w := New(WorldConfig{})
	if !w.Place(grid.Coord{X: 0, Y: 0}, block.Stone{}) {
		t.Fatalf("place stone failed")
	}
	if !w.Place(grid.Coord{X: 1, Y: 0}, block.Wire{}) {
		t.Fatalf("place wire failed")
	}
	if w.Place(grid.Coord{X: 1, Y: 0}, block.Wood{}) {
		t.Fatalf("place on occupied cell succeeded")
	}
	if w.Place(grid.Coord{X: 9, Y: 9}, block.Wire{Power: 500}) {
		t.Fatalf("malformed block accepted")
	}

	w.Tick()
	if b, ok := w.Query(grid.Coord{X: 1, Y: 0}); !ok || b != (block.Wire{Power: 128}) {
		t.Fatalf("wire = %#v %v", b, ok)
	}

	old, ok := w.Remove(grid.Coord{X: 0, Y: 0})
	if !ok || old != (block.Stone{}) {
		t.Fatalf("Remove = %#v %v", old, ok)
	}
	if _, ok := w.Remove(grid.Coord{X: 0, Y: 0}); ok {
		t.Fatalf("second remove succeeded")
	}
	settle(t, w, 16)
	if b, _ := w.Query(grid.Coord{X: 1, Y: 0}); b != (block.Wire{Power: 0}) {
		t.Fatalf("wire after source removal = %#v", b)
	}
	if _, ok := w.Query(grid.Coord{X: 0, Y: 0}); ok {
		t.Fatalf("removed cell still present")
	}
}

func TestWorld_ChainSettles(t *testing.T) {
	w := New(WorldConfig{})
	w.Place(grid.Coord{X: 0, Y: 0}, block.Stone{})
	for x := 1; x <= 4; x++ {
		w.Place(grid.Coord{X: x, Y: 0}, block.Wire{})
	}
	settle(t, w, 32)
	for x := 1; x <= 4; x++ {
		b, _ := w.Query(grid.Coord{X: x, Y: 0})
		if want := (block.Wire{Power: 129 - x}); b != want {
			t.Fatalf("wire at x=%d = %#v want %#v\n%s", x, b, want, spew.Sdump(w.ExportSnapshot(0).Blocks))
		}
	}
}

func TestWorld_StepSendsResultsAndDelta(t *testing.T) {
	w := New(WorldConfig{})
	audits := &memAuditLog{}
	w.SetAuditLogger(audits)
	id, out := joinTestClient(t, w)
	drain(out)

	w.step(nil, nil, []EditEnvelope{{ClientID: id, Ops: []protocol.EditOp{
		placeOp("a", 0, 0, "stone"),
		placeOp("b", 1, 0, "wire"),
		placeOp("c", 0, 0, "wire"),
		removeOp("d", 9, 9),
		placeOp("e", 2, 2, "lava"),
		{ID: "f", Op: protocol.OpLoadChunk, Chunk: at(0, 0)},
	}}})

	msgs := drain(out)
	if len(msgs) != 7 {
		t.Fatalf("got %d messages want 7", len(msgs))
	}
	wantCodes := map[string]string{
		"a": "",
		"b": "",
		"c": protocol.ErrConflict,
		"d": protocol.ErrInvalidTarget,
		"e": protocol.ErrBadRequest,
		"f": protocol.ErrBadRequest,
	}
	for _, b := range msgs[:6] {
		if typ := decodeType(t, b); typ != protocol.TypeEditResult {
			t.Fatalf("unexpected message type %q", typ)
		}
		var r protocol.EditResultMsg
		mustUnmarshal(t, b, &r)
		want, ok := wantCodes[r.ID]
		if !ok {
			t.Fatalf("unexpected result id %q", r.ID)
		}
		if r.Code != want || r.OK != (want == "") {
			t.Fatalf("result %s = ok:%v code:%q want code %q", r.ID, r.OK, r.Code, want)
		}
	}

	var tick protocol.TickMsg
	mustUnmarshal(t, msgs[6], &tick)
	if tick.Type != protocol.TypeTick {
		t.Fatalf("last message type = %q", tick.Type)
	}
	changed := map[string]bool{}
	for _, l := range tick.Changed {
		changed[l] = true
	}
	if !changed["stone 0 0 0"] || !changed["wire 1 0 128"] || len(tick.Removed) != 0 {
		t.Fatalf("tick delta = %+v", tick)
	}

	if len(audits.entries) != 2 || audits.entries[0].Action != protocol.OpPlace || audits.entries[1].To != "wire 1 0 0" {
		t.Fatalf("audits = %s", spew.Sdump(audits.entries))
	}
}

func TestWorld_MaxEditsCarryOver(t *testing.T) {
	w := New(WorldConfig{MaxEditsPerTick: 2})
	w.step(nil, nil, []EditEnvelope{{Ops: []protocol.EditOp{
		placeOp("1", 0, 0, "wood"),
		placeOp("2", 1, 0, "wood"),
		placeOp("3", 2, 0, "wood"),
	}}})
	if _, ok := w.Query(grid.Coord{X: 2, Y: 0}); ok {
		t.Fatalf("third edit applied in the first tick")
	}
	if m := w.Metrics(); m.Backlog != 1 || m.Blocks != 2 {
		t.Fatalf("metrics = %+v", m)
	}
	w.step(nil, nil, nil)
	if _, ok := w.Query(grid.Coord{X: 2, Y: 0}); !ok {
		t.Fatalf("carried edit not applied")
	}
}

func TestWorld_PendingMatchesQueue(t *testing.T) {
	w := New(WorldConfig{})
	w.Place(grid.Coord{X: 0, Y: 0}, block.Stone{})
	w.Place(grid.Coord{X: 1, Y: 0}, block.Wire{})
	for i := 0; i < 10; i++ {
		if got, want := w.Pending(), len(w.queue.Pending()); got != want {
			t.Fatalf("tick %d: Pending() = %d, queued cells = %d", i, got, want)
		}
		w.Tick()
	}
	if w.Pending() != 0 {
		t.Fatalf("pending = %d after settling", w.Pending())
	}
}

func TestWorld_JoinNeverBlocksOnResponse(t *testing.T) {
	w := New(WorldConfig{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nobody receives on Resp.
		w.step([]JoinRequest{{Name: "slow", Out: make(chan []byte, 1), Resp: make(chan JoinResponse)}}, nil, nil)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("step blocked on an unread join response")
	}
	if m := w.Metrics(); m.Clients != 1 {
		t.Fatalf("clients = %d", m.Clients)
	}
}

func TestWorld_PlaceFacingFromActor(t *testing.T) {
	w := New(WorldConfig{})
	w.step(nil, nil, []EditEnvelope{{Ops: []protocol.EditOp{
		{Op: protocol.OpPlace, Pos: at(0, 0), Kind: "repeater", From: at(0, -3)},
		{Op: protocol.OpPlace, Pos: at(5, 0), Kind: "inverter", Fields: []int{0, 1}, From: at(0, 0)},
		{Op: protocol.OpPlace, Pos: at(9, 0), Kind: "repeater", Fields: []int{1, 3}, Pristine: true},
	}}})

	if b, _ := w.Query(grid.Coord{X: 0, Y: 0}); b != (block.Repeater{Power: 0, Facing: block.North}) {
		t.Fatalf("repeater = %#v", b)
	}
	// Explicit facing wins over the actor position.
	if b, _ := w.Query(grid.Coord{X: 5, Y: 0}); b != (block.Inverter{Power: 1, Facing: block.East}) {
		t.Fatalf("inverter = %#v", b)
	}
	if b, _ := w.Query(grid.Coord{X: 9, Y: 0}); b != (block.Repeater{Power: 0, Facing: block.West}) {
		t.Fatalf("pristine repeater = %#v", b)
	}
}

func TestConfigFromTuning(t *testing.T) {
	tu := tuning.Defaults()
	tu.GateOutput = "facing"
	cfg, err := ConfigFromTuning("w9", tu)
	if err != nil {
		t.Fatalf("ConfigFromTuning: %v", err)
	}
	if cfg.ID != "w9" || cfg.GateRule != propagate.GateRuleFacing || cfg.RelaxBudget != tu.RelaxBudget {
		t.Fatalf("cfg = %+v", cfg)
	}
	tu.GateOutput = "sideways"
	if _, err := ConfigFromTuning("w9", tu); err == nil {
		t.Fatalf("expected error for unknown gate rule")
	}
}
