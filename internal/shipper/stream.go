package shipper

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// JetStreamContext is the subset of nats.JetStreamContext used for
// stream administration, satisfied by the real JetStream context or a
// fake in tests.
type JetStreamContext interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// ProvisionStream idempotently ensures the GUARADICT_OPLOG JetStream
// stream exists, covering every node's subject. It is a no-op if the
// stream is already present.
func ProvisionStream(js JetStreamContext, logger *zap.Logger) error {
	_, err := js.StreamInfo(StreamOperationLog)
	if err == nil {
		logger.Info("NATS stream already exists", zap.String("stream", StreamOperationLog))
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamOperationLog,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	}

	if _, err := js.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	logger.Info("NATS stream provisioned",
		zap.String("stream", StreamOperationLog),
		zap.String("subjects", SubjectPrefix+".>"),
	)
	return nil
}
