// Package synchronizer drains the bounded channel of client-issued
// mutations and appends them to the operation log, translating SET
// against an existing key into Update (carrying the prior value when the
// client server observed it) and SET/ADD against a missing key into
// Insert.
package synchronizer

import (
	"go.uber.org/zap"

	"github.com/guarapi/guaradict/internal/oplog"
)

// EventKind identifies the logical command carried by an Event.
type EventKind int

const (
	EventAdd EventKind = iota
	EventSet
	EventDel
	EventGet
	EventQuit
)

// Event is the channel payload handed from the client server to the
// synchronizer: a tagged variant isomorphic to client commands. Get and
// Quit are carried but produce no log entry.
type Event struct {
	Kind  EventKind
	Key   string
	Value string
	// Prev is set only for EventSet when the client server observed a
	// prior value under the same lock as the mutation; nil means unknown.
	Prev *string
}

// DefaultChannelCapacity is the observed default bound on the mutation
// event channel (spec §4.3); callers may configure a different size.
const DefaultChannelCapacity = 10

// AppendedFunc is invoked once per appended Operation, after the log's
// own lock has been released. It must not block — the synchronizer
// itself is not on the hook for downstream consumer latency, so
// implementations (see internal/shipper) should hand off via a
// non-blocking send.
type AppendedFunc func(oplog.Operation)

// Synchronizer owns the OperationLog and the consumer end of the
// mutation event channel. It processes events strictly in arrival order.
type Synchronizer struct {
	log      *oplog.Log
	input    <-chan Event
	logger   *zap.Logger
	onAppend AppendedFunc
}

// New builds a Synchronizer over log, consuming from input. onAppend
// may be nil (no shipping hook).
func New(log *oplog.Log, input <-chan Event, logger *zap.Logger, onAppend AppendedFunc) *Synchronizer {
	return &Synchronizer{log: log, input: input, logger: logger, onAppend: onAppend}
}

// Run drains events in arrival order until input is closed, at which
// point it drains whatever was already buffered and returns (spec §4.3
// ChannelClosed handling). It is meant to run in its own goroutine for
// the life of the process.
func (s *Synchronizer) Run() {
	for ev := range s.input {
		s.apply(ev)
	}
	s.logger.Info("synchronizer stopped: mutation channel closed")
}

func (s *Synchronizer) apply(ev Event) {
	switch ev.Kind {
	case EventAdd:
		op := s.log.AppendInsert(oplog.StringKey(ev.Key), oplog.NewStringValue(ev.Value))
		s.ship(op)
	case EventSet:
		var prev *oplog.Value
		if ev.Prev != nil {
			v := oplog.NewStringValue(*ev.Prev)
			prev = &v
		}
		op := s.log.AppendUpdate(oplog.StringKey(ev.Key), oplog.NewStringValue(ev.Value), prev)
		s.ship(op)
	case EventDel:
		op := s.log.AppendDelete(oplog.StringKey(ev.Key))
		s.ship(op)
	case EventGet, EventQuit:
		// No log entry: these events exist only so the channel carries a
		// complete record of client activity for future observers.
	}
}

func (s *Synchronizer) ship(op oplog.Operation) {
	if s.onAppend != nil {
		s.onAppend(op)
	}
}
