package replica

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	// tickInterval is the ReplicaMonitor's periodic loop interval (spec §4.5).
	tickInterval = time.Second
	// connectTimeout bounds a reconnect attempt from Disconnected.
	connectTimeout = 3 * time.Second
	// heartbeatTimeout bounds one PING/PONG round-trip from Connected.
	heartbeatTimeout = time.Second
	// maxConsecutiveFailures is the bound at which a possibly-half-open
	// connection is discarded (spec §4.5 rationale).
	maxConsecutiveFailures = 3

	pingFrame = "PING\n"
	pongFrame = "PONG\n"
)

// errUnexpectedReply is returned by heartbeat when the peer replies with
// something other than the literal 5-byte PONG frame.
var errUnexpectedReply = errors.New("replica: unexpected heartbeat reply")

// dialFunc matches net.DialTimeout's signature; tests substitute a fake
// to exercise the state machine without real sockets.
type dialFunc func(network, addr string, timeout time.Duration) (net.Conn, error)

// Monitor is the background task that maintains a TCP connection to
// each configured replica and periodically issues heartbeats, updating
// the shared Registry. Only the Monitor ever mutates the registry.
type Monitor struct {
	registry *Registry
	logger   *zap.Logger
	dial     dialFunc
}

// NewMonitor builds a Monitor over registry. logger must not be nil;
// pass zap.NewNop() in tests that don't care about log output.
func NewMonitor(registry *Registry, logger *zap.Logger) *Monitor {
	return &Monitor{registry: registry, logger: logger, dial: net.DialTimeout}
}

// Run starts the 1-second tick loop and blocks until ctx is cancelled.
// It is meant to be run in its own goroutine for the life of the process.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("replica monitor stopping")
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick runs one state-machine step for every replica, holding the
// registry lock for the whole pass so that concurrent GetStatus/Snapshot
// callers see a per-tick-consistent view (spec §4.5).
func (m *Monitor) tick() {
	m.registry.withLock(func(statuses map[string]*Status) {
		for _, s := range statuses {
			m.tickReplica(s)
		}
	})
}

func (m *Monitor) tickReplica(s *Status) {
	if s.stream == nil {
		m.reconnect(s)
		return
	}
	m.heartbeatReplica(s)
}

func (m *Monitor) reconnect(s *Status) {
	conn, err := m.dial("tcp", s.Addr, connectTimeout)
	if err != nil {
		s.Ready = false
		s.Failures++
		m.logger.Warn("replica connect failed",
			zap.String("replica", s.Name), zap.String("addr", s.Addr),
			zap.Int("failures", s.Failures), zap.Error(err))
		return
	}
	s.stream = conn
	s.Ready = true
	s.Failures = 0
	s.Ping = 0
	m.logger.Info("replica connected", zap.String("replica", s.Name), zap.String("addr", s.Addr))
}

func (m *Monitor) heartbeatReplica(s *Status) {
	elapsed, err := m.heartbeat(s.stream)
	if err != nil {
		s.Ready = false
		s.Failures++
		m.logger.Warn("replica heartbeat failed",
			zap.String("replica", s.Name), zap.Int("failures", s.Failures), zap.Error(err))
		if s.Failures >= maxConsecutiveFailures {
			s.stream.Close()
			s.stream = nil
			m.logger.Warn("replica stream dropped after consecutive failures",
				zap.String("replica", s.Name), zap.Int("failures", s.Failures))
		}
		return
	}
	s.Ping = elapsed
	s.Ready = true
	s.Failures = 0
}

// heartbeat sends the bare "PING\n" frame and waits for exactly 5 bytes
// back, within heartbeatTimeout. It does not close conn on any failure —
// that decision belongs to the caller, which tracks consecutive failures.
func (m *Monitor) heartbeat(conn net.Conn) (time.Duration, error) {
	start := time.Now()

	if err := conn.SetWriteDeadline(start.Add(heartbeatTimeout)); err != nil {
		return 0, err
	}
	if _, err := conn.Write([]byte(pingFrame)); err != nil {
		return 0, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(heartbeatTimeout)); err != nil {
		return 0, err
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, err
	}
	if string(buf) != pongFrame {
		return 0, errUnexpectedReply
	}
	return time.Since(start), nil
}
