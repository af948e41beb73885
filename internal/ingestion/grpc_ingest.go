package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/state"
)

// SubmitReceipt reports what a submitted command did.
type SubmitReceipt struct {
	CommandType string          `json:"command_type"`
	RequestID   string          `json:"request_id"`
	Duplicate   bool            `json:"duplicate"`
	StateHash   string          `json:"state_hash,omitempty"`
	Records     []RecordSummary `json:"records,omitempty"`
}

type RecordSummary struct {
	Sequence   int64  `json:"sequence"`
	RecordType string `json:"record_type"`
}

// GRPCIngestService submits commands received over gRPC/HTTP. Operators and cranks use
// it for direct, synchronous submission; bulk traffic goes through NATS.
type GRPCIngestService struct {
	submitter Submitter
	metrics   *observability.Metrics
}

func NewGRPCIngestService(submitter Submitter, metrics *observability.Metrics) *GRPCIngestService {
	return &GRPCIngestService{submitter: submitter, metrics: metrics}
}

// SubmitCommand decodes payload as a command of the named type and applies it. The
// returned error is the engine's rejection, if any.
func (s *GRPCIngestService) SubmitCommand(ctx context.Context, commandType string, payload json.RawMessage) (*SubmitReceipt, error) {
	ct, ok := event.ParseCommandType(commandType)
	if !ok {
		return nil, state.ErrInvalidCommand.With("unknown command type %q", commandType)
	}
	cmd, err := event.DecodeCommand(ct, payload)
	if err != nil {
		return nil, state.ErrInvalidCommand.Wrap(err)
	}
	return s.Submit(ctx, cmd)
}

// Submit applies an already-typed command.
func (s *GRPCIngestService) Submit(ctx context.Context, cmd event.Command) (*SubmitReceipt, error) {
	start := time.Now()
	res := s.submitter.Submit(ctx, cmd)
	if res.Err != nil {
		return nil, res.Err
	}
	if s.metrics != nil {
		s.metrics.IngestToApply.WithLabelValues("grpc").Observe(time.Since(start).Seconds())
	}

	receipt := &SubmitReceipt{
		CommandType: cmd.CommandType().String(),
		RequestID:   cmd.IdempotencyKey(),
		Duplicate:   len(res.Outputs) == 0,
	}
	for _, out := range res.Outputs {
		receipt.Records = append(receipt.Records, RecordSummary{
			Sequence:   out.Envelope.Sequence,
			RecordType: out.Envelope.Record.RecordType().String(),
		})
	}
	if n := len(res.Outputs); n > 0 {
		h := res.Outputs[n-1].Envelope.StateHash
		receipt.StateHash = hex.EncodeToString(h[:])
	}
	return receipt, nil
}
