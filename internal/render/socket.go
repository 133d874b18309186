package render

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
)

// socketSendBuffer is how many frames a slow client can fall behind by
// before broadcast starts dropping for it (adapted from the teacher's
// per-worker SendCh pattern).
const socketSendBuffer = 128

// wireMessage is the JSON shape written to every connected client, framed
// with a 4-byte big-endian length prefix (adapted from the teacher's
// IpcBridge wire format).
type wireMessage struct {
	Kind      string    `json:"kind"` // "internal" | "command"
	Text      string    `json:"text"`
	Verbosity string    `json:"verbosity,omitempty"`
	Command   string    `json:"command,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Socket serves every message over a Unix domain socket as length-prefixed
// JSON frames, for an external process to consume (spec.md §6 renderer
// "socket" type; no analogue in original_source — this is an enrichment
// grounded on the teacher's IpcBridge framing/broadcast design).
type Socket struct {
	base
	path string

	mu       sync.RWMutex
	clients  map[net.Conn]chan wireMessage
	listener net.Listener
}

func NewSocket(messages *fanout.Fanout[message.Message], path string) *Socket {
	return &Socket{
		base:    newBase(messages),
		path:    path,
		clients: make(map[net.Conn]chan wireMessage),
	}
}

func (s *Socket) AvailableProcessWidth(config.CommandConfig) int {
	if w, _, err := term.GetSize(0); err == nil && w > 0 {
		return w
	}
	return 80
}

// Mount binds the socket and starts accepting clients.
func (s *Socket) Mount(ctx context.Context) error {
	_ = os.Remove(s.path)

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("render: bind socket %q: %w", s.path, err)
	}
	s.listener = listener

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			s.addClient(conn)
		}
	}()

	return nil
}

// Unmount closes the listener and every connected client.
func (s *Socket) Unmount() {
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[net.Conn]chan wireMessage)
	s.mu.Unlock()

	for conn, ch := range clients {
		close(ch)
		conn.Close()
	}
}

func (s *Socket) addClient(conn net.Conn) {
	ch := make(chan wireMessage, socketSendBuffer)

	s.mu.Lock()
	s.clients[conn] = ch
	s.mu.Unlock()

	go func() {
		defer conn.Close()
		for msg := range ch {
			if err := writeFrame(conn, msg); err != nil {
				s.removeClient(conn)
				return
			}
		}
	}()
}

func (s *Socket) removeClient(conn net.Conn) {
	s.mu.Lock()
	ch, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
	}
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (s *Socket) broadcast(msg wireMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn, ch := range s.clients {
		select {
		case ch <- msg:
		default:
			log.Printf("render: socket client %s send buffer full, dropping frame", conn.RemoteAddr())
		}
	}
}

func writeFrame(conn net.Conn, msg wireMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := binary.Write(conn, binary.BigEndian, uint32(len(payload))); err != nil {
		return err
	}
	_, err = conn.Write(payload)
	return err
}

func (s *Socket) Run(ctx context.Context, drain bool) error {
	return s.base.run(ctx, drain, func(m message.Message) {
		switch v := m.(type) {
		case message.InternalMessage:
			s.broadcast(wireMessage{Kind: "internal", Text: v.Text(), Verbosity: v.Verbosity.String(), Timestamp: v.At})
		case message.CommandMessage:
			s.broadcast(wireMessage{Kind: "command", Text: v.Text(), Command: v.CommandConfig.Name, Timestamp: v.At})
		}
	})
}
