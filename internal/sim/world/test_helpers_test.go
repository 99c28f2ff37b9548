package world

import (
	"encoding/json"
	"testing"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/grid"
)

func at(x, y int) *[2]int { return &[2]int{x, y} }

func placeOp(id string, x, y int, kind string, fields ...int) protocol.EditOp {
	return protocol.EditOp{ID: id, Op: protocol.OpPlace, Pos: at(x, y), Kind: kind, Fields: fields}
}

func removeOp(id string, x, y int) protocol.EditOp {
	return protocol.EditOp{ID: id, Op: protocol.OpRemove, Pos: at(x, y)}
}

// settle ticks until nothing is pending, failing after maxTicks.
func settle(t *testing.T, w *World, maxTicks int) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		if w.Pending() == 0 {
			return
		}
		w.Tick()
	}
	if w.Pending() != 0 {
		t.Fatalf("world did not settle within %d ticks (pending=%d)", maxTicks, w.Pending())
	}
}

func joinTestClient(t *testing.T, w *World) (string, chan []byte) {
	t.Helper()
	out := make(chan []byte, 64)
	resp := make(chan JoinResponse, 1)
	w.step([]JoinRequest{{Name: "tester", Out: out, Resp: resp}}, nil, nil)
	r := <-resp
	if r.Welcome.ClientID == "" {
		t.Fatalf("join returned empty client id")
	}
	return r.Welcome.ClientID, out
}

func drain(out chan []byte) [][]byte {
	var msgs [][]byte
	for {
		select {
		case b := <-out:
			msgs = append(msgs, b)
		default:
			return msgs
		}
	}
}

func decodeType(t *testing.T, b []byte) string {
	t.Helper()
	base, err := protocol.DecodeBase(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return base.Type
}

func mustUnmarshal(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
}

type memChunkStore struct {
	chunks map[grid.ChunkKey][]blocktext.Placed
	saves  int
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{chunks: map[grid.ChunkKey][]blocktext.Placed{}}
}

func (m *memChunkStore) Load(k grid.ChunkKey) ([]blocktext.Placed, bool, error) {
	b, ok := m.chunks[k]
	return append([]blocktext.Placed(nil), b...), ok, nil
}

func (m *memChunkStore) Save(k grid.ChunkKey, blocks []blocktext.Placed) error {
	m.saves++
	m.chunks[k] = append([]blocktext.Placed(nil), blocks...)
	return nil
}

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memAuditLog struct{ entries []AuditEntry }

func (m *memAuditLog) WriteAudit(e AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}
