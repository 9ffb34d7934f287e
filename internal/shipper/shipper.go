// Package shipper publishes committed operation log entries to NATS
// JetStream, decoupled from the synchronizer by its own bounded,
// non-blocking handoff channel (SPEC_FULL.md §4.7). A down or slow
// broker degrades shipping, never client-facing mutation latency.
package shipper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/guarapi/guaradict/internal/oplog"
)

// StreamOperationLog is the durable JetStream stream that captures
// every node's published operations.
const StreamOperationLog = "GUARADICT_OPLOG"

// SubjectPrefix operations are published under "<SubjectPrefix>.<node>".
const SubjectPrefix = "guaradict.oplog"

// DefaultChannelCapacity bounds the handoff channel between the
// synchronizer's AppendedFunc hook and the shipper's publish loop.
const DefaultChannelCapacity = 64

// Client is the subset of a NATS JetStream connection the shipper needs,
// satisfied by nats.JetStreamContext directly or a fake in tests.
type Client interface {
	Publish(subject string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Shipper drains queued operations and publishes each as JSON to the
// node's subject. Publish failures are logged and dropped; they never
// propagate back to the synchronizer (spec: ShipPublishError is
// non-fatal).
type Shipper struct {
	client  Client
	subject string
	logger  *zap.Logger
	queue   chan oplog.Operation
}

// New builds a Shipper that publishes to "<SubjectPrefix>.<nodeName>".
// nodeName identifies this node in the stream's subject hierarchy.
func New(client Client, nodeName string, logger *zap.Logger) *Shipper {
	return &Shipper{
		client:  client,
		subject: fmt.Sprintf("%s.%s", SubjectPrefix, nodeName),
		logger:  logger,
		queue:   make(chan oplog.Operation, DefaultChannelCapacity),
	}
}

// Enqueue is an AppendedFunc (see internal/synchronizer) suitable for
// wiring directly as the synchronizer's onAppend hook. It never blocks:
// when the queue is full the operation is dropped and logged, since
// shipping is best-effort.
func (s *Shipper) Enqueue(op oplog.Operation) {
	select {
	case s.queue <- op:
	default:
		s.logger.Warn("shipper queue full, dropping operation", zap.String("key", op.Key.String()))
	}
}

// Run publishes queued operations until ctx is cancelled or the queue is
// closed, whichever happens first.
func (s *Shipper) Run(ctx context.Context) {
	for {
		select {
		case op, ok := <-s.queue:
			if !ok {
				return
			}
			s.publish(op)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Shipper) publish(op oplog.Operation) {
	payload, err := json.Marshal(op)
	if err != nil {
		s.logger.Error("failed to marshal operation for shipping", zap.Error(err))
		return
	}

	if _, err := s.client.Publish(s.subject, payload); err != nil {
		s.logger.Warn("NATS publish failed",
			zap.String("subject", s.subject),
			zap.Error(err),
		)
		return
	}

	s.logger.Debug("operation shipped",
		zap.String("subject", s.subject),
		zap.Int("bytes", len(payload)),
	)
}
