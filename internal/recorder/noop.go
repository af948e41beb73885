package recorder

import (
	"context"

	"VaultLedger/internal/core"
)

// NoopRecorder is used when no SQLite path is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordBatch(_ context.Context, _ []core.CoreOutput) error { return nil }
func (n *NoopRecorder) Close() error                                             { return nil }
