package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"seeyuj.sim/internal/observerproto"
	"seeyuj.sim/internal/sim/world"
)

// Source is the live world being observed. *engine.Session satisfies it.
type Source interface {
	View(fn func(w *world.World))
}

// Server streams committed ticks to loopback websocket clients. It is a
// world.TickLogger: register it as a tick sink and every WriteTick fans out
// to subscribers without blocking the tick loop.
type Server struct {
	src Source
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.RWMutex
	subs map[string]*subscriber
}

type subscriber struct {
	mu      sync.Mutex
	filter  observerproto.SubscribeMsg
	out     chan []byte
	dropped atomic.Uint64
}

func NewServer(src Source, logger *log.Logger) *Server {
	return &Server{
		src:  src,
		log:  logger,
		subs: map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
}

func (s *Server) bootstrap() observerproto.BootstrapResponse {
	var resp observerproto.BootstrapResponse
	s.src.View(func(w *world.World) {
		m := w.Meta()
		resp = observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			WorldID:         m.WorldID,
			Name:            m.Name,
			Seed:            m.Seed,
			Tick:            m.CurrentTick,
			Entities:        w.EntityCount(),
			Zones:           w.ZoneCount(),
			Digest:          w.StateDigest(),
		}
	})
	return resp
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.bootstrap())
	}
}

// Subscribers is the number of connected observers.
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// WriteTick implements world.TickLogger.
func (s *Server) WriteTick(entry world.TickLogEntry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		sub.mu.Lock()
		f := sub.filter
		sub.mu.Unlock()
		msg := tickMsg(entry, f)
		msg.Dropped = sub.dropped.Load()
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if !sendLatest(sub.out, b) {
			sub.dropped.Add(1)
		}
	}
	return nil
}

func tickMsg(entry world.TickLogEntry, f observerproto.SubscribeMsg) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            entry.Tick,
		Digest:          entry.Digest,
		Commands:        len(entry.Commands),
		EventCount:      len(entry.Events),
	}
	for _, r := range entry.Rejected {
		msg.Rejected = append(msg.Rejected, observerproto.Rejected{Index: r.Index, Code: r.Code, Message: r.Message})
	}
	if !f.Events {
		return msg
	}
	for _, ev := range entry.Events {
		kind := string(ev.Data.EventKind())
		if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, kind) {
			continue
		}
		eid, _ := world.EventEntityID(ev.Data)
		if f.EntityID != 0 && uint64(eid) != f.EntityID {
			continue
		}
		data, err := json.Marshal(ev.Data)
		if err != nil {
			continue
		}
		msg.Events = append(msg.Events, observerproto.EventMsg{EventID: ev.ID, Type: kind, EntityID: uint64(eid), Data: data})
	}
	return msg
}

// sendLatest queues b, dropping the oldest queued message when full. It
// reports false when something was dropped.
func sendLatest(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
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
	return false
}

func readSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		first, ok := readSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sub := &subscriber{filter: first, out: make(chan []byte, 64)}

		s.mu.Lock()
		s.subs[sid] = sub
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.subs, sid)
			s.mu.Unlock()
		}()

		// Ticks committed from here on queue behind the welcome.
		welcome, _ := json.Marshal(observerproto.WelcomeMsg{
			Type:            "WELCOME",
			ProtocolVersion: observerproto.Version,
			SessionID:       sid,
			World:           s.bootstrap(),
		})
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}

		if s.log != nil {
			s.log.Printf("observer %s connected from %s", sid, r.RemoteAddr)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			next, ok := readSubscribe(msg)
			if !ok {
				continue
			}
			sub.mu.Lock()
			sub.filter = next
			sub.mu.Unlock()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsLoopbackRemote reports whether an http.Request.RemoteAddr is a loopback
// address. Admin handlers share it.
func IsLoopbackRemote(remoteAddr string) bool { return isLoopbackRemote(remoteAddr) }
