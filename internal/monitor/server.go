// Package monitor broadcasts sync session events over WebSocket.
//
// An external GUI or status widget can connect to ws://host:port/ws to
// follow phase changes, conflicts, and queue activity while a session
// runs. The feed is fire-and-forget: slow or absent clients never slow
// down the sync cycle.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// EventType labels a broadcast event.
type EventType string

const (
	// EventPhaseChange reports the orchestrator entering a new phase.
	EventPhaseChange EventType = "phase_change"

	// EventConflict reports a conflict set being detected or resolved.
	EventConflict EventType = "conflict"

	// EventQueue reports offline queue activity.
	EventQueue EventType = "queue"

	// EventSessionDone reports the final session outcome.
	EventSessionDone EventType = "session_done"
)

// Event is one broadcast message.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an Event, encoding data as its JSON payload.
func NewEvent(t EventType, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw = nil
	}
	return Event{Type: t, Timestamp: time.Now().UTC(), Data: raw}
}

// Server manages WebSocket clients and event broadcasting.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex

	broadcast chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer builds a monitor server listening on the given port.
func NewServer(port int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      fmt.Sprintf("127.0.0.1:%d", port),
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Event, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start begins serving. Non-blocking; call Stop to shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("monitor listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Monitor listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Monitor server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, useful when port 0 was requested.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop closes client connections and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("monitor shutdown: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Publish queues an event for broadcast. Never blocks; events are
// dropped when the buffer is full.
func (s *Server) Publish(ev Event) {
	select {
	case s.broadcast <- ev:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Monitor broadcast buffer full, dropping event")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Printf("Monitor encode error: %v", err)
				continue
			}

			s.clientsMu.Lock()
			for conn := range s.clients {
				writeCtx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
				if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
					_ = conn.Close(websocket.StatusInternalError, "write failed")
					delete(s.clients, conn)
				}
				cancel()
			}
			s.clientsMu.Unlock()
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Printf("Monitor accept error: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	s.clientsMu.Unlock()

	// Drain reads so pings and close frames are processed; the feed
	// itself is one-way.
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, conn)
			s.clientsMu.Unlock()
			_ = conn.CloseNow()
		}()
		for {
			if _, _, err := conn.Read(s.ctx); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.clientsMu.Lock()
	n := len(s.clients)
	s.clientsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","clients":%d}`, n)
}
