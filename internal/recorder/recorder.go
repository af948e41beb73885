package recorder

import (
	"context"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/persistence"

	"github.com/google/uuid"
)

// AuditEntry is one recorded audit record.
type AuditEntry struct {
	Sequence    int64
	VaultID     uuid.UUID
	CommandType string
	RecordType  string
	RequestID   string
	Timestamp   int64
	StateHash   string
	Record      string
}

// VaultMark is a vault's share accounting as it stood after one command.
type VaultMark struct {
	Sequence       int64
	VaultID        uuid.UUID
	Timestamp      int64
	TotalShares    string
	UserShares     string
	SharesBase     uint32
	LastEquity     uint64
	CumulativeFuel string
}

// Recorder keeps a local, queryable copy of committed audit records.
type Recorder interface {
	RecordBatch(ctx context.Context, outs []core.CoreOutput) error
	Close() error
}

// FlushHook adapts rec to a persistence flush hook. Recording is best effort.
func FlushHook(rec Recorder) persistence.FlushHook {
	logger := observability.NewLogger("recorder")
	return func(ctx context.Context, outs []core.CoreOutput) {
		if err := rec.RecordBatch(ctx, outs); err != nil {
			logger.Warn().Err(err).Int("records", len(outs)).Msg("audit record failed")
		}
	}
}
