package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/world"
)

func startServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	w := world.New(world.WorldConfig{ID: "w_test", TickRateHz: 50})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := httptest.NewServer(NewServer(w, v, logger).Handler())
	return srv, func() {
		srv.Close()
		cancel()
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads messages until fn reports done.
func readUntil(t *testing.T, conn *websocket.Conn, fn func(typ string, b []byte) bool) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if fn(base.Type, b) {
			return
		}
	}
}

func TestServer_EditQueryFlow(t *testing.T) {
	srv, stop := startServer(t)
	defer stop()
	conn := dial(t, srv)
	defer conn.Close()

	send(t, conn, `{"type":"HELLO","protocol_version":"1.0","client_name":"t1"}`)
	var welcome protocol.WelcomeMsg
	readUntil(t, conn, func(typ string, b []byte) bool {
		if typ != protocol.TypeWelcome {
			t.Fatalf("expected WELCOME, got %s", typ)
		}
		return json.Unmarshal(b, &welcome) == nil
	})
	if welcome.ClientID == "" || welcome.WorldID != "w_test" || welcome.TickRateHz != 50 {
		t.Fatalf("welcome = %+v", welcome)
	}

	send(t, conn, `{"type":"EDIT","protocol_version":"1.0","ops":[
		{"id":"s","op":"PLACE","pos":[0,0],"kind":"stone"},
		{"id":"w","op":"PLACE","pos":[1,0],"kind":"wire"}]}`)
	results := map[string]bool{}
	sawWire := false
	readUntil(t, conn, func(typ string, b []byte) bool {
		switch typ {
		case protocol.TypeEditResult:
			var r protocol.EditResultMsg
			_ = json.Unmarshal(b, &r)
			results[r.ID] = r.OK
		case protocol.TypeTick:
			var tm protocol.TickMsg
			_ = json.Unmarshal(b, &tm)
			for _, l := range tm.Changed {
				if l == "wire 1 0 128" {
					sawWire = true
				}
			}
		}
		return len(results) == 2 && sawWire
	})
	if !results["s"] || !results["w"] {
		t.Fatalf("edit results = %v", results)
	}

	send(t, conn, `{"type":"QUERY","protocol_version":"1.0","id":"q","pos":[1,0]}`)
	readUntil(t, conn, func(typ string, b []byte) bool {
		if typ != protocol.TypeQueryResult {
			return false
		}
		var q protocol.QueryResultMsg
		_ = json.Unmarshal(b, &q)
		if q.ID != "q" || !q.Found || q.Block != "wire 1 0 128" {
			t.Fatalf("query result = %+v", q)
		}
		return true
	})

	send(t, conn, `{"type":"EDIT","protocol_version":"1.0","ops":[]}`)
	readUntil(t, conn, func(typ string, b []byte) bool {
		if typ != protocol.TypeError {
			return false
		}
		var e protocol.ErrorMsg
		_ = json.Unmarshal(b, &e)
		if e.Code != protocol.ErrProtoBadRequest {
			t.Fatalf("error code = %q", e.Code)
		}
		return true
	})
}

func TestServer_RejectsBadHandshake(t *testing.T) {
	srv, stop := startServer(t)
	defer stop()

	for _, hello := range []string{
		`{"type":"QUERY","protocol_version":"1.0","pos":[0,0]}`,
		`{"type":"HELLO","protocol_version":"0.9"}`,
	} {
		conn := dial(t, srv)
		send(t, conn, hello)
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("hello %s: expected policy close, got %v", hello, err)
		}
		conn.Close()
	}
}
