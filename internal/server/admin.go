package server

import (
	"context"
	"encoding/hex"
	"fmt"

	"VaultLedger/internal/core"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/projection"
)

// Admin performs operator actions against the running ledger.
type Admin struct {
	Runner      *core.Runner
	Snapshotter *persistence.Snapshotter
	Log         *persistence.SnapshotManager
	Projection  *projection.ProjectionWorker
	Engine      core.EngineConfig
}

func (a *Admin) TakeSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	seq, size, err := a.Snapshotter.TakeSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &SnapshotResponse{Sequence: seq, SizeBytes: size}, nil
}

func (a *Admin) RebuildProjections(ctx context.Context) (*RebuildResponse, error) {
	n, err := a.Projection.Rebuild(ctx, a.Log, a.Engine)
	if err != nil {
		return nil, err
	}
	return &RebuildResponse{CommandsReplayed: n, ProjectionWatermark: a.Projection.LastSequence()}, nil
}

func (a *Admin) LogInfo(ctx context.Context) (*LogInfoResponse, error) {
	seq, hash, ok, err := a.Log.GetLatestRecord(ctx)
	if err != nil {
		return nil, fmt.Errorf("read log head: %w", err)
	}
	info := &LogInfoResponse{
		EngineSequence:      a.Runner.Sequence(),
		LastPersisted:       -1,
		ProjectionWatermark: a.Projection.LastSequence(),
	}
	if ok {
		info.LastPersisted = seq
		info.HeadStateHash = hex.EncodeToString(hash)
	}
	return info, nil
}
