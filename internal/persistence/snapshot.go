package persistence

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// snapshotFormatVersion 1: JSON-encoded core.Snapshot.
const snapshotFormatVersion = 1

// SnapshotManager stores engine snapshots and reads the record log back for recovery.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot. Only verified snapshots are used for recovery.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *core.Snapshot, verified bool) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO vault_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6, verified = $7
	`, uuid.New(), snap.Sequence, data, snap.StateHash, snapshotFormatVersion, len(data), verified)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot. Returns nil on cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.Snapshot, error) {
	var (
		data    []byte
		version int
	)
	err := sm.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM vault_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if version != snapshotFormatVersion {
		return nil, fmt.Errorf("snapshot format version %d not supported", version)
	}

	var snap core.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// MarkVerified makes a stored snapshot eligible for recovery.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE vault_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadRecordsFrom loads the first record of each command logged at or after fromSequence.
// Later records of the same command are reproduced by replaying the first one.
func (sm *SnapshotManager) LoadRecordsFrom(ctx context.Context, fromSequence int64, limit int) ([]RecordRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, command_type, idempotency_key, record_index, vault_id, record_type,
		       command, record, state_hash, prev_hash, ts
		FROM vault_log.records
		WHERE sequence >= $1 AND record_index = 0
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(
			&r.Sequence, &r.CommandType, &r.IdempotencyKey, &r.RecordIndex, &r.VaultID, &r.RecordType,
			&r.Command, &r.Record, &r.StateHash, &r.PrevHash, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetLatestRecord returns the sequence and state hash of the newest logged record.
// ok is false when the log is empty.
func (sm *SnapshotManager) GetLatestRecord(ctx context.Context) (seq int64, stateHash []byte, ok bool, err error) {
	err = sm.db.QueryRowContext(ctx, `
		SELECT sequence, state_hash FROM vault_log.records ORDER BY sequence DESC LIMIT 1
	`).Scan(&seq, &stateHash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	return seq, stateHash, true, nil
}

// RecordSource is the read side of the log needed for recovery.
type RecordSource interface {
	LoadLatestSnapshot(ctx context.Context) (*core.Snapshot, error)
	LoadRecordsFrom(ctx context.Context, fromSequence int64, limit int) ([]RecordRow, error)
	GetLatestRecord(ctx context.Context) (int64, []byte, bool, error)
}

// FromLogStart hides snapshots from src so a replay starts at sequence 0.
func FromLogStart(src RecordSource) RecordSource {
	return logStart{src}
}

type logStart struct{ RecordSource }

func (logStart) LoadLatestSnapshot(context.Context) (*core.Snapshot, error) { return nil, nil }

// Replayer rebuilds engine state at startup: restore the latest verified snapshot,
// replay every later command from the log, then check the state hash against the log head.
type Replayer struct {
	source    RecordSource
	batchSize int
	onReplay  func(outs []core.CoreOutput) error
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewReplayer(source RecordSource, metrics *observability.Metrics) *Replayer {
	return &Replayer{
		source:    source,
		batchSize: 1000,
		metrics:   metrics,
		logger:    observability.NewLogger("replay"),
	}
}

// OnReplay registers fn to receive the outputs of every replayed command, in order.
func (r *Replayer) OnReplay(fn func(outs []core.CoreOutput) error) {
	r.onReplay = fn
}

// Recover brings engine up to the log head. Returns the number of commands replayed.
func (r *Replayer) Recover(ctx context.Context, engine *core.VaultEngine) (int64, error) {
	start := time.Now()

	snap, err := r.source.LoadLatestSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	from := int64(0)
	if snap != nil {
		if err := engine.RestoreFromSnapshot(snap); err != nil {
			return 0, fmt.Errorf("restore snapshot: %w", err)
		}
		from = snap.Sequence
		r.logger.Info().Int64("sequence", snap.Sequence).Msg("restored snapshot")
	} else {
		r.logger.Info().Msg("no snapshot found, replaying from the start of the log")
	}

	var replayed int64
	for {
		rows, err := r.source.LoadRecordsFrom(ctx, from, r.batchSize)
		if err != nil {
			return replayed, fmt.Errorf("load records from seq %d: %w", from, err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			outs, err := replayRow(engine, row)
			if err != nil {
				return replayed, err
			}
			if r.onReplay != nil {
				if err := r.onReplay(outs); err != nil {
					return replayed, fmt.Errorf("replay seq %d: %w", row.Sequence, err)
				}
			}
			replayed++
		}
		from = rows[len(rows)-1].Sequence + 1
	}

	if err := r.verifyHead(ctx, engine); err != nil {
		return replayed, err
	}

	if r.metrics != nil {
		r.metrics.ReplayEventsTotal.Add(float64(replayed))
		r.metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	r.logger.Info().Int64("commands", replayed).Int64("sequence", engine.GetSequence()).
		Dur("took", time.Since(start)).Msg("recovery complete")
	return replayed, nil
}

func replayRow(engine *core.VaultEngine, row RecordRow) ([]core.CoreOutput, error) {
	ct, ok := event.ParseCommandType(row.CommandType)
	if !ok {
		return nil, fmt.Errorf("replay seq %d: unknown command type %q", row.Sequence, row.CommandType)
	}
	cmd, err := event.DecodeCommand(ct, row.Command)
	if err != nil {
		return nil, fmt.Errorf("replay seq %d: %w", row.Sequence, err)
	}
	if engine.GetSequence() != row.Sequence {
		return nil, fmt.Errorf("replay seq %d: engine is at seq %d", row.Sequence, engine.GetSequence())
	}
	outs, err := engine.Replay(cmd)
	if err != nil {
		return nil, fmt.Errorf("replay seq %d (%s): %w", row.Sequence, row.CommandType, err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("replay seq %d (%s): command produced no records", row.Sequence, row.CommandType)
	}
	if h := outs[0].Envelope.StateHash; !bytes.Equal(h[:], row.StateHash) {
		return nil, fmt.Errorf("replay seq %d: state hash mismatch: log %x, replay %x", row.Sequence, row.StateHash, h)
	}
	return outs, nil
}

// verifyHead checks the engine agrees with the newest record in the log.
func (r *Replayer) verifyHead(ctx context.Context, engine *core.VaultEngine) error {
	seq, hash, ok, err := r.source.GetLatestRecord(ctx)
	if err != nil {
		return fmt.Errorf("load log head: %w", err)
	}
	if !ok {
		return nil
	}
	if engine.GetSequence() != seq+1 {
		return fmt.Errorf("log head at seq %d but engine is at seq %d", seq, engine.GetSequence())
	}
	actual := engine.GetStateHash()
	if !bytes.Equal(actual[:], hash) {
		return fmt.Errorf("state hash mismatch at seq %d: log %x, engine %x", seq, hash, actual)
	}
	return nil
}
