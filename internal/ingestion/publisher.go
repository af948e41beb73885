package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// RecordStream holds audit records published after they are durable.
	RecordStream = "VAULT_RECORDS"

	recordSubjectPrefix = "vault.records."
)

// streamPublisher is the slice of jetstream.JetStream the publisher needs.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// PublishableRecord is the outbound form of one audit record.
type PublishableRecord struct {
	Sequence       int64        `json:"sequence"`
	RecordIndex    int          `json:"record_index"`
	RecordType     string       `json:"record_type"`
	CommandType    string       `json:"command_type"`
	IdempotencyKey string       `json:"idempotency_key"`
	VaultID        uuid.UUID    `json:"vault_id"`
	Timestamp      int64        `json:"timestamp"`
	StateHash      string       `json:"state_hash"`
	Record         event.Record `json:"record"`
}

// Subject is vault.records.<RecordType>.<vault_id>.
func (r PublishableRecord) Subject() string {
	return recordSubjectPrefix + r.RecordType + "." + r.VaultID.String()
}

// NewPublishableRecord converts an engine output.
func NewPublishableRecord(out core.CoreOutput) PublishableRecord {
	env := out.Envelope
	return PublishableRecord{
		Sequence:       env.Sequence,
		RecordIndex:    env.RecordIndex,
		RecordType:     env.Record.RecordType().String(),
		CommandType:    env.CommandType.String(),
		IdempotencyKey: env.IdempotencyKey,
		VaultID:        env.VaultID,
		Timestamp:      env.Timestamp,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Record:         env.Record,
	}
}

// RecordPublisher publishes records to NATS once the persistence worker has committed
// them. Publishing is best effort: consumers that miss a record can read the log.
type RecordPublisher struct {
	js        streamPublisher
	inputChan chan PublishableRecord
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewRecordPublisher(js streamPublisher, buffer int, metrics *observability.Metrics) *RecordPublisher {
	return &RecordPublisher{
		js:        js,
		inputChan: make(chan PublishableRecord, buffer),
		metrics:   metrics,
		logger:    observability.NewLogger("publisher"),
	}
}

// Enqueue queues committed outputs without blocking. Its signature matches
// persistence.FlushHook.
func (rp *RecordPublisher) Enqueue(_ context.Context, outs []core.CoreOutput) {
	for _, out := range outs {
		select {
		case rp.inputChan <- NewPublishableRecord(out):
		default:
			if rp.metrics != nil {
				rp.metrics.PublishDrops.Inc()
			}
			rp.logger.Warn().Int64("seq", out.Envelope.Sequence).Msg("publish queue full, dropping record")
		}
	}
}

// Pending reports queue length and capacity.
func (rp *RecordPublisher) Pending() (int, int) {
	return len(rp.inputChan), cap(rp.inputChan)
}

// Run publishes queued records until ctx is cancelled.
func (rp *RecordPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-rp.inputChan:
			if err := rp.publish(ctx, rec); err != nil {
				rp.logger.Warn().Err(err).Int64("seq", rec.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (rp *RecordPublisher) publish(ctx context.Context, rec PublishableRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	// The sequence doubles as the JetStream message ID so a republish after restart is
	// deduplicated within the stream's duplicate window.
	_, err = rp.js.Publish(ctx, rec.Subject(), data, jetstream.WithMsgID(strconv.FormatInt(rec.Sequence, 10)))
	return err
}
