package network

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asynkron/protoactor-go/actor"

	sessionactor "github.com/phuhao00/scriptbridge/server/internal/actor" // Alias for the actor package
	"github.com/phuhao00/scriptbridge/server/internal/actor/messages"
	"github.com/phuhao00/scriptbridge/server/internal/metrics"
	"github.com/phuhao00/scriptbridge/server/internal/packet"
	"github.com/phuhao00/scriptbridge/server/internal/transport"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

const (
	// MaxMessageSize defines the maximum allowed size for a single message payload.
	MaxMessageSize = 1 * 1024 * 1024
	// LengthPrefixSize is the size in bytes of the message length prefix.
	LengthPrefixSize = 4
	// shutdownTimeout bounds how long Stop waits for connection goroutines.
	shutdownTimeout = 10 * time.Second
)

// tcpConn is the transport.Connection for one accepted socket.
type tcpConn struct {
	id   uint64
	conn net.Conn
	pid  *actor.PID
}

func (c *tcpConn) ID() uint64 { return c.id }

// TCPServer accepts client connections, decodes inbound frames for a
// transport.Handler and implements transport.Transport on top of one
// SessionActor per connection.
type TCPServer struct {
	addr        string
	listener    net.Listener
	actorSystem *actor.ActorSystem
	handler     transport.Handler
	wg          sync.WaitGroup
	shutdown    chan struct{}
	stopOnce    sync.Once
	nextID      atomic.Uint64

	mu    sync.RWMutex
	conns map[uint64]*tcpConn
	dirty map[uint64]*tcpConn // sent to since the last Flush
}

var _ transport.Transport = (*TCPServer)(nil)

// NewTCPServer creates a new TCPServer. A handler must be set before Start.
func NewTCPServer(addr string, system *actor.ActorSystem) *TCPServer {
	if system == nil {
		utils.LogFatal("TCPServer: actor system cannot be nil")
	}
	return &TCPServer{
		addr:        addr,
		actorSystem: system,
		shutdown:    make(chan struct{}),
		conns:       make(map[uint64]*tcpConn),
		dirty:       make(map[uint64]*tcpConn),
	}
}

// SetHandler installs the receiver of inbound traffic.
func (s *TCPServer) SetHandler(h transport.Handler) {
	s.handler = h
}

// Start begins listening for TCP connections.
func (s *TCPServer) Start() error {
	if s.handler == nil {
		return errors.New("tcp server: no handler set")
	}
	var err error
	s.listener, err = net.Listen("tcp", s.addr)
	if err != nil {
		utils.LogErrorf("[TCPServer] Error starting on %s: %v", s.addr, err)
		return err
	}
	utils.LogInfof("[TCPServer] Listening on %s", s.listener.Addr())

	s.wg.Add(1)
	go s.acceptConnections()
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				utils.LogDebug("[TCPServer] Accept loop shutting down.")
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			utils.LogErrorf("[TCPServer] Permanent error in accept: %v. Shutting down accept loop.", err)
			return
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection spawns the SessionActor for conn and then runs the read
// loop on the calling goroutine until the connection ends.
func (s *TCPServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	c := &tcpConn{
		id:   s.nextID.Add(1),
		conn: conn,
		pid:  s.actorSystem.Root.Spawn(sessionactor.Props()),
	}
	s.actorSystem.Root.Send(c.pid, &messages.ClientConnected{ConnID: c.id, Conn: conn})

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	metrics.ConnectionsActive.Inc()
	utils.LogInfof("[TCPServer] Connection %d accepted from %s", c.id, conn.RemoteAddr())

	s.handler.Connected(c)
	reason := s.readLoop(c)

	s.mu.Lock()
	delete(s.conns, c.id)
	delete(s.dirty, c.id)
	s.mu.Unlock()
	metrics.ConnectionsActive.Dec()

	s.actorSystem.Root.Send(c.pid, &messages.ClientDisconnected{Reason: reason})
	s.handler.Disconnected(c, reason)
	utils.LogInfof("[TCPServer] Connection %d closed: %s", c.id, reason)
}

func (s *TCPServer) readLoop(c *tcpConn) string {
	lenBuf := make([]byte, LengthPrefixSize)
	for {
		if _, err := io.ReadFull(c.conn, lenBuf); err != nil {
			return s.readErrorReason(c, err)
		}
		messageLength := binary.BigEndian.Uint32(lenBuf)
		if messageLength == 0 {
			utils.LogDebugf("[TCPServer] Connection %d sent an empty frame. Ignoring.", c.id)
			continue
		}
		if messageLength > MaxMessageSize {
			utils.LogWarnf("[TCPServer] Connection %d frame length %d exceeds MaxMessageSize %d.", c.id, messageLength, MaxMessageSize)
			_ = c.conn.Close()
			return "message too large"
		}

		payload := make([]byte, messageLength)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return s.readErrorReason(c, err)
		}

		p, err := packet.Unmarshal(payload)
		if err != nil {
			utils.LogWarnf("[TCPServer] Connection %d sent an undecodable frame: %v", c.id, err)
			continue
		}
		s.handler.Received(c, p)
	}
}

func (s *TCPServer) readErrorReason(c *tcpConn, err error) string {
	select {
	case <-s.shutdown:
		return "server shutdown"
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "EOF"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	utils.LogDebugf("[TCPServer] Read error on connection %d: %v", c.id, err)
	return err.Error()
}

func (s *TCPServer) CreateMessage() *transport.Message {
	return &transport.Message{}
}

// Send queues msg on every connection in conns. Only ReliableOrdered is
// offered by TCP; other methods are delivered with the same guarantee.
func (s *TCPServer) Send(msg *transport.Message, conns []transport.Connection, method transport.DeliveryMethod, channel transport.Channel) error {
	if msg == nil || len(msg.Payload) == 0 {
		return transport.ErrEmptyMessage
	}
	if len(msg.Payload) > MaxMessageSize {
		return errors.New("tcp server: message exceeds MaxMessageSize")
	}
	select {
	case <-s.shutdown:
		return transport.ErrClosed
	default:
	}
	s.mu.Lock()
	for _, conn := range conns {
		c, ok := s.conns[conn.ID()]
		if !ok {
			continue
		}
		s.actorSystem.Root.Send(c.pid, &messages.ForwardToClient{Payload: msg.Payload})
		s.dirty[c.id] = c
	}
	s.mu.Unlock()
	metrics.MessagesSent.WithLabelValues(channel.String()).Inc()
	return nil
}

// Flush asks the sessions written to since the last Flush to push their
// buffered frames to the socket.
func (s *TCPServer) Flush() {
	s.mu.Lock()
	pending := s.dirty
	s.dirty = make(map[uint64]*tcpConn)
	s.mu.Unlock()
	for _, c := range pending {
		s.actorSystem.Root.Send(c.pid, &messages.FlushClient{})
	}
}

func (s *TCPServer) pendingFlushes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dirty)
}

// Connections returns the open connections ordered by id.
func (s *TCPServer) Connections() []transport.Connection {
	s.mu.RLock()
	out := make([]transport.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Stop gracefully shuts down the TCP server.
func (s *TCPServer) Stop() {
	s.stopOnce.Do(func() {
		utils.LogInfo("[TCPServer] Stopping...")
		close(s.shutdown)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				utils.LogWarnf("[TCPServer] Error closing listener: %v", err)
			}
		}

		s.mu.RLock()
		for _, c := range s.conns {
			_ = c.conn.Close()
		}
		s.mu.RUnlock()

		shutdownCompleted := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(shutdownCompleted)
		}()

		select {
		case <-shutdownCompleted:
			utils.LogInfo("[TCPServer] All connection goroutines finished.")
		case <-time.After(shutdownTimeout):
			utils.LogWarn("[TCPServer] Shutdown timed out waiting for goroutines.")
		}
	})
}
