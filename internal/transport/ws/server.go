package ws

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"seeyuj.sim/internal/protocol"
	"seeyuj.sim/internal/sim/world"
)

// Submitter is the part of a running world session the command socket needs.
type Submitter interface {
	ID() string
	CurrentTick() uint64
	Submit(c world.Command) error
}

// Server accepts commands over a websocket and queues them for the next tick.
// Acks only confirm queueing; results arrive through the committed tick.
type Server struct {
	sub Submitter
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(sub Submitter, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		sub: sub,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			// Mounted loopback-only by the host.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.log.Printf("command client connected: %s (%s)", client, r.RemoteAddr)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeSubmit {
				continue
			}
			if err := writeJSON(conn, s.submit(msg)); err != nil {
				return
			}
		}
	}
}

func (s *Server) submit(msg []byte) protocol.AckMsg {
	ack := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version}
	var m protocol.SubmitMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		ack.Code, ack.Message = protocol.ErrProtoBadRequest, err.Error()
		return ack
	}
	ack.Seq = m.Seq
	if m.ProtocolVersion != protocol.Version {
		ack.Code, ack.Message = protocol.ErrProtoBadRequest, "bad protocol_version"
		return ack
	}
	cmd, err := world.CommandFromMsg(m.Command)
	if err != nil {
		ack.Code, ack.Message = protocol.ErrProtoBadRequest, err.Error()
		var ce *world.CommandError
		if errors.As(err, &ce) {
			ack.Code = ce.Code
		}
		return ack
	}
	if err := s.sub.Submit(cmd); err != nil {
		ack.Code, ack.Message = protocol.ErrBusy, err.Error()
		return ack
	}
	ack.Accepted = true
	return ack
}

func (s *Server) handshake(conn *websocket.Conn) (client string, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", false
	}
	if hello.Client == "" {
		hello.Client = "client"
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		WorldID:         s.sub.ID(),
		Tick:            s.sub.CurrentTick(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	return hello.Client, true
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
