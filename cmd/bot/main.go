package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wirecraft.ai/internal/protocol"
)

// The bot lays a powered wire run (stone source, wires, a repeater driving an
// inverter) and then watches the far end until it reaches a steady value.
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "client name")
		x      = flag.Int("x", 0, "origin x")
		y      = flag.Int("y", 0, "origin y")
		length = flag.Int("len", 12, "wire cells before the gates")
		every  = flag.Uint64("query_every", 5, "query the far end every N ticks")
	)
	flag.Parse()

	log := logrus.New().WithField("bot", *name)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	// gorilla allows one concurrent writer.
	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		MaxQueue:        64,
	}
	if err := send(hello); err != nil {
		log.WithError(err).Fatal("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		writeMu.Unlock()
		_ = conn.Close()
	}()

	ops := buildRun(*x, *y, *length)
	end := *ops[len(ops)-1].Pos
	var lastEnd string

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			log.Infof("WELCOME client_id=%s world=%s tick=%d tick_rate=%d", w.ClientID, w.WorldID, w.Tick, w.TickRateHz)
			if err := send(protocol.EditMsg{Type: protocol.TypeEdit, ProtocolVersion: protocol.Version, Ops: ops}); err != nil {
				log.WithError(err).Fatal("send EDIT")
			}

		case protocol.TypeEditResult:
			var r protocol.EditResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			if !r.OK {
				log.Warnf("edit %s rejected: %s %s", r.ID, r.Code, r.Message)
			}

		case protocol.TypeTick:
			var t protocol.TickMsg
			if err := json.Unmarshal(msg, &t); err != nil {
				continue
			}
			log.Debugf("TICK %d changed=%d removed=%d", t.Tick, len(t.Changed), len(t.Removed))
			if *every > 0 && t.Tick%*every == 0 {
				q := protocol.QueryMsg{Type: protocol.TypeQuery, ProtocolVersion: protocol.Version, ID: fmt.Sprintf("Q%d", t.Tick), Pos: end}
				_ = send(q)
			}

		case protocol.TypeQueryResult:
			var r protocol.QueryResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			if r.Block != lastEnd {
				log.Infof("tick %d end=%q", r.Tick, r.Block)
				lastEnd = r.Block
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				log.Warnf("ERROR %s: %s", e.Code, e.Message)
			}
		}
	}
}

// buildRun returns PLACE ops for a stone at (x,y), n wires running east, an
// east-facing repeater, an east-facing inverter fed straight by the repeater and a
// final wire. The inverter reads the repeater directly, so the run settles under
// either gate output rule with the final wire unpowered.
func buildRun(x, y, n int) []protocol.EditOp {
	if n < 1 {
		n = 1
	}
	var ops []protocol.EditOp
	add := func(dx int, kind string, fields ...int) {
		pos := [2]int{x + dx, y}
		ops = append(ops, protocol.EditOp{
			ID:     fmt.Sprintf("P%d", len(ops)),
			Op:     protocol.OpPlace,
			Pos:    &pos,
			Kind:   kind,
			Fields: fields,
		})
	}
	add(0, "stone")
	for i := 1; i <= n; i++ {
		add(i, "wire")
	}
	add(n+1, "repeater", 0, 1)
	add(n+2, "inverter", 1, 1)
	add(n+3, "wire")
	return ops
}
