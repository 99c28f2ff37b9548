package world

import (
	"encoding/json"
	"fmt"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/grid"
)

func (w *World) joinClient(name string, out chan []byte, nowTick uint64) JoinResponse {
	id := fmt.Sprintf("C%d", w.nextClientNum.Add(1))
	w.clients[id] = &clientState{Name: name, Out: out}
	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ClientID:        id,
		WorldID:         w.cfg.ID,
		Tick:            nowTick,
		TickRateHz:      w.cfg.TickRateHz,
		ChunkSize:       w.cfg.ChunkSize,
	}}
}

// handleQuery answers between ticks, so the result reflects the last completed tick.
func (w *World) handleQuery(req QueryRequest) {
	cl := w.clients[req.ClientID]
	if cl == nil {
		return
	}
	pos := grid.FromArray(req.Query.Pos)
	res := protocol.QueryResultMsg{
		Type:            protocol.TypeQueryResult,
		ProtocolVersion: protocol.Version,
		ID:              req.Query.ID,
		Tick:            w.tick.Load(),
	}
	if b, ok := w.Query(pos); ok {
		res.Found = true
		res.Block = blocktext.Encode(blocktext.Placed{Pos: pos, Block: b})
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	sendLatest(cl.Out, b)
}
