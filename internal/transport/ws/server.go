package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/world"
)

const (
	defaultMaxQueue = 64
	maxMaxQueue     = 1024
)

type Server struct {
	world    *world.World
	log      logrus.FieldLogger
	validate *protocol.Validator

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, v *protocol.Validator, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		world:    w,
		log:      logger.WithField("component", "ws"),
		validate: v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.log.WithError(err).WithField("remote", r.RemoteAddr).Debug("upgrade failed")
			return
		}
		defer conn.Close()

		clientID, out := s.handshake(conn)
		if clientID == "" {
			return
		}
		log := s.log.WithFields(logrus.Fields{"client": clientID, "remote": r.RemoteAddr})
		log.Info("client joined")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine: the only writer on conn after the handshake.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.route(ctx, clientID, out, msg, log)
		}

		s.world.Leave() <- clientID
		log.Info("client left")
	}
}

func (s *Server) route(ctx context.Context, clientID string, out chan []byte, msg []byte, log logrus.FieldLogger) {
	base, err := s.validate.Validate(msg)
	if err != nil {
		reply(out, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	if base.ProtocolVersion != protocol.Version {
		reply(out, protocol.NewError(protocol.ErrProtoBadRequest, "bad protocol_version"))
		return
	}

	switch base.Type {
	case protocol.TypeEdit:
		var edit protocol.EditMsg
		if err := json.Unmarshal(msg, &edit); err != nil {
			reply(out, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		select {
		case s.world.Inbox() <- world.EditEnvelope{ClientID: clientID, Ops: edit.Ops}:
		case <-ctx.Done():
		default:
			log.Warn("world inbox full")
			for _, op := range edit.Ops {
				reply(out, protocol.EditResultMsg{
					Type:            protocol.TypeEditResult,
					ProtocolVersion: protocol.Version,
					ID:              op.ID,
					Code:            protocol.ErrWorldBusy,
					Message:         "world inbox full",
				})
			}
		}
	case protocol.TypeQuery:
		var q protocol.QueryMsg
		if err := json.Unmarshal(msg, &q); err != nil {
			reply(out, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		select {
		case s.world.Queries() <- world.QueryRequest{ClientID: clientID, Query: q}:
		case <-ctx.Done():
		default:
			reply(out, protocol.NewError(protocol.ErrWorldBusy, "query queue full"))
		}
	default:
		reply(out, protocol.NewError(protocol.ErrProtoBadRequest, "unexpected "+base.Type))
	}
}

func (s *Server) handshake(conn *websocket.Conn) (clientID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := s.validate.Validate(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = defaultMaxQueue
	}
	if maxQ > maxMaxQueue {
		maxQ = maxMaxQueue
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{Name: hello.ClientName, Out: out, Resp: respCh}
	resp := <-respCh

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- resp.Welcome.ClientID
		return "", nil
	}
	return resp.Welcome.ClientID, out
}

func reply(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
		// Client is lagging.
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
