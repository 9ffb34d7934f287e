// Package clientserver implements the TCP listener that accepts client
// connections, applies GET/SET/ADD/DEL/QUIT commands to the dictionary,
// and forwards the resulting mutation events to the synchronizer. It
// also answers the bare PING heartbeat frame used by the replica
// monitor, on the same port as ordinary client traffic.
package clientserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guarapi/guaradict/internal/command"
	"github.com/guarapi/guaradict/internal/dictionary"
	"github.com/guarapi/guaradict/internal/synchronizer"
)

const readBufferSize = 1024

const (
	replyAdded       = "Entry added successfully"
	replyRemoved     = "Entry removed successfully"
	replyKeyNotFound = "Key not found"
	replyInvalid     = "Invalid command"
	pingFrame        = "PING\n"
	pongFrame        = "PONG\n"
)

// Server is the TCP listener for the client and peer heartbeat protocol.
type Server struct {
	addr     string
	dict     *dictionary.Dictionary
	dictMu   sync.Mutex
	events   chan<- synchronizer.Event
	logger   *zap.Logger
	listener net.Listener
}

// New builds a Server bound to addr, serializing all Dictionary access
// through its own mutex and forwarding mutation events onto events.
func New(addr string, dict *dictionary.Dictionary, events chan<- synchronizer.Event, logger *zap.Logger) *Server {
	return &Server{addr: addr, dict: dict, events: events, logger: logger}
}

// Listen binds the TCP listener and returns its address, without
// accepting connections yet. Separating bind from serve lets callers
// (and tests) discover the bound port before the accept loop starts,
// which matters when addr requests an ephemeral port (":0").
func (s *Server) Listen() (net.Addr, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, err
	}
	s.listener = listener
	return listener.Addr(), nil
}

// Serve accepts connections on the already-bound listener, spawning one
// handler goroutine per connection, until ctx is cancelled or Accept
// fails unrecoverably.
func (s *Server) Serve(ctx context.Context) error {
	defer s.listener.Close()

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.logger.Info("client server listening", zap.String("addr", s.listener.Addr().String()))

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		connID := uuid.New()
		go s.handleConn(conn, connID)
	}
}

// ListenAndServe binds the listener and serves until ctx is cancelled or
// an unrecoverable Accept error occurs. Binding failure is the one core
// error that is fatal to the process (spec §7).
func (s *Server) ListenAndServe(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) handleConn(conn net.Conn, connID uuid.UUID) {
	defer conn.Close()
	logger := s.logger.With(zap.String("conn", connID.String()), zap.String("peer", conn.RemoteAddr().String()))
	logger.Info("connection accepted")

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("read error, closing connection", zap.Error(err))
			}
			return
		}
		if n == 0 {
			continue
		}

		line := bytes.TrimSpace(buf[:n])
		if len(line) == 0 {
			continue
		}

		if bytes.Equal(line, []byte("QUIT")) {
			logger.Info("client quit")
			return
		}

		if bytes.Equal(line, []byte("PING")) {
			s.replyBare(conn, logger, pongFrame)
			continue
		}

		response := s.dispatch(string(line), logger)
		s.reply(conn, logger, response)
	}
}

func (s *Server) dispatch(line string, logger *zap.Logger) string {
	cmd, err := command.ParseClient(line)
	if err != nil {
		return replyInvalid
	}

	switch cmd.Verb {
	case command.Get:
		return s.handleGet(cmd.Key)
	case command.Set, command.Add:
		return s.handleUpsert(cmd.Key, cmd.Value)
	case command.Del:
		return s.handleDel(cmd.Key)
	default:
		logger.Warn("parsed command with unhandled verb", zap.String("verb", cmd.Verb.String()))
		return replyInvalid
	}
}

func (s *Server) handleGet(key string) string {
	s.dictMu.Lock()
	value, ok := s.dict.Get(key)
	s.dictMu.Unlock()

	s.send(synchronizer.Event{Kind: synchronizer.EventGet, Key: key})

	if !ok {
		return replyKeyNotFound
	}
	return "Definition: " + value
}

// handleUpsert backs both ADD and SET: both unconditionally upsert the
// dictionary, and the only distinction is which mutation event gets
// forwarded. The prior value, when the key existed, is observed under
// the same lock that performs the write so the Update event's prev
// value is linearizable with the mutation (spec §4.3/§9).
func (s *Server) handleUpsert(key, value string) string {
	s.dictMu.Lock()
	prev, existed := s.dict.Get(key)
	s.dict.Add(key, value)
	s.dictMu.Unlock()

	if existed {
		p := prev
		s.send(synchronizer.Event{Kind: synchronizer.EventSet, Key: key, Value: value, Prev: &p})
	} else {
		s.send(synchronizer.Event{Kind: synchronizer.EventAdd, Key: key, Value: value})
	}

	return replyAdded
}

func (s *Server) handleDel(key string) string {
	s.dictMu.Lock()
	s.dict.Remove(key)
	s.dictMu.Unlock()

	s.send(synchronizer.Event{Kind: synchronizer.EventDel, Key: key})

	return replyRemoved
}

// send forwards ev to the synchronizer. Per spec §5, this must never be
// called while holding the Dictionary lock; callers above all release
// dictMu first. The channel is bounded, so this blocks under
// backpressure — the chosen policy (spec §4.3).
func (s *Server) send(ev synchronizer.Event) {
	s.events <- ev
}

func (s *Server) reply(conn net.Conn, logger *zap.Logger, response string) {
	if _, err := conn.Write([]byte(response)); err != nil {
		logger.Warn("write error", zap.Error(err))
	}
}

func (s *Server) replyBare(conn net.Conn, logger *zap.Logger, frame string) {
	if _, err := conn.Write([]byte(frame)); err != nil {
		logger.Warn("write error replying to heartbeat", zap.Error(err))
	}
}
