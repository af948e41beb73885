package recorder

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder mirrors committed records into an embedded SQLite database for local
// inspection and dashboards.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the database at path and runs migrations.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the ledger writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: observability.NewLogger("recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.Info().Str("path", path).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_records (
			sequence     INTEGER PRIMARY KEY,
			vault_id     TEXT NOT NULL,
			command_type TEXT NOT NULL,
			record_type  TEXT NOT NULL,
			request_id   TEXT NOT NULL,
			timestamp    INTEGER NOT NULL,
			state_hash   TEXT NOT NULL,
			record       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_vault ON audit_records(vault_id, sequence)`,

		`CREATE TABLE IF NOT EXISTS vault_marks (
			sequence        INTEGER PRIMARY KEY,
			vault_id        TEXT NOT NULL,
			timestamp       INTEGER NOT NULL,
			total_shares    TEXT NOT NULL,
			user_shares     TEXT NOT NULL,
			shares_base     INTEGER NOT NULL,
			last_equity     INTEGER NOT NULL,
			cumulative_fuel TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_marks_vault ON vault_marks(vault_id, sequence)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordBatch stores a committed batch. Re-recording a sequence is a no-op.
func (r *SQLiteRecorder) RecordBatch(ctx context.Context, outs []core.CoreOutput) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, out := range outs {
		env := out.Envelope
		payload, err := json.Marshal(env.Record)
		if err != nil {
			return fmt.Errorf("marshal record %d: %w", env.Sequence, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO audit_records
			(sequence, vault_id, command_type, record_type, request_id, timestamp, state_hash, record)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			env.Sequence, env.VaultID.String(), env.CommandType.String(), env.Record.RecordType().String(),
			env.IdempotencyKey, env.Timestamp, hex.EncodeToString(env.StateHash[:]), string(payload))
		if err != nil {
			return fmt.Errorf("insert record %d: %w", env.Sequence, err)
		}

		if v := out.Vault; v != nil {
			_, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO vault_marks
				(sequence, vault_id, timestamp, total_shares, user_shares, shares_base, last_equity, cumulative_fuel)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				env.Sequence, v.ID.String(), env.Timestamp, v.TotalShares.String(), v.UserShares.String(),
				v.SharesBase, int64(v.LastEquity), v.CumulativeFuel.String())
			if err != nil {
				return fmt.Errorf("insert vault mark %d: %w", env.Sequence, err)
			}
		}
	}
	return tx.Commit()
}

// RecordsForVault returns the newest records of a vault, newest first.
func (r *SQLiteRecorder) RecordsForVault(ctx context.Context, vault uuid.UUID, limit int) ([]AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sequence, vault_id, command_type, record_type, request_id, timestamp, state_hash, record
		FROM audit_records WHERE vault_id = ? ORDER BY sequence DESC LIMIT ?`, vault.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e     AuditEntry
			vault string
		)
		if err := rows.Scan(&e.Sequence, &vault, &e.CommandType, &e.RecordType, &e.RequestID, &e.Timestamp, &e.StateHash, &e.Record); err != nil {
			return nil, err
		}
		if e.VaultID, err = uuid.Parse(vault); err != nil {
			return nil, fmt.Errorf("record %d: %w", e.Sequence, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// VaultHistory returns the vault's share accounting marks in sequence order.
func (r *SQLiteRecorder) VaultHistory(ctx context.Context, vault uuid.UUID) ([]VaultMark, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sequence, timestamp, total_shares, user_shares, shares_base, last_equity, cumulative_fuel
		FROM vault_marks WHERE vault_id = ? ORDER BY sequence`, vault.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VaultMark
	for rows.Next() {
		m := VaultMark{VaultID: vault}
		var equity int64
		if err := rows.Scan(&m.Sequence, &m.Timestamp, &m.TotalShares, &m.UserShares, &m.SharesBase, &equity, &m.CumulativeFuel); err != nil {
			return nil, err
		}
		m.LastEquity = uint64(equity)
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastSequence returns the highest recorded sequence, -1 when empty.
func (r *SQLiteRecorder) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM audit_records`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
