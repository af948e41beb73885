package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"VaultLedger/internal/core"
	"VaultLedger/internal/ledger"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RecordLogWriter writes records and journals to Postgres using multi-row INSERT. Writes
// are idempotent on sequence and journal ID, so a retried batch is harmless.
type RecordLogWriter struct {
	db *sql.DB
}

// RecordRow represents a row in vault_log.records
type RecordRow struct {
	Sequence       int64
	CommandType    string
	IdempotencyKey string
	RecordIndex    int
	VaultID        string
	RecordType     string
	Command        []byte // JSON-encoded command payload
	Record         []byte // JSON-encoded audit record
	StateHash      []byte
	PrevHash       []byte
	Timestamp      int64
}

// JournalRow represents a row in vault_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        int64
	JournalType   string
	Timestamp     int64
}

func NewRecordLogWriter(db *sql.DB) *RecordLogWriter {
	return &RecordLogWriter{db: db}
}

// ToRows converts one engine output into its log rows.
func ToRows(out core.CoreOutput) (RecordRow, []JournalRow, error) {
	env := out.Envelope
	cmd, err := json.Marshal(env.Command)
	if err != nil {
		return RecordRow{}, nil, fmt.Errorf("marshal command at seq %d: %w", env.Sequence, err)
	}
	rec, err := json.Marshal(env.Record)
	if err != nil {
		return RecordRow{}, nil, fmt.Errorf("marshal record at seq %d: %w", env.Sequence, err)
	}

	row := RecordRow{
		Sequence:       env.Sequence,
		CommandType:    env.CommandType.String(),
		IdempotencyKey: env.IdempotencyKey,
		RecordIndex:    env.RecordIndex,
		VaultID:        env.VaultID.String(),
		RecordType:     env.Record.RecordType().String(),
		Command:        cmd,
		Record:         rec,
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
	}

	var journals []JournalRow
	for _, b := range out.Batches {
		for _, j := range b.Journals {
			journals = append(journals, journalRow(j))
		}
	}
	return row, journals, nil
}

func journalRow(j ledger.Journal) JournalRow {
	return JournalRow{
		JournalID:     j.JournalID.String(),
		BatchID:       j.BatchID.String(),
		EventRef:      j.EventRef,
		Sequence:      j.Sequence,
		DebitAccount:  j.DebitAccount.AccountPath(),
		CreditAccount: j.CreditAccount.AccountPath(),
		Asset:         j.Asset.String(),
		Amount:        j.Amount,
		JournalType:   j.JournalType.String(),
		Timestamp:     j.Timestamp,
	}
}

// WriteRecordBatch writes a batch of records to vault_log.records.
func (w *RecordLogWriter) WriteRecordBatch(ctx context.Context, ex execer, records []RecordRow) error {
	if len(records) == 0 {
		return nil
	}

	const cols = 11
	query := `INSERT INTO vault_log.records
		(sequence, command_type, idempotency_key, record_index, vault_id, record_type, command, record, state_hash, prev_hash, ts)
		VALUES `

	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*cols)
	for i, r := range records {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			r.Sequence, r.CommandType, r.IdempotencyKey, r.RecordIndex, r.VaultID, r.RecordType,
			r.Command, r.Record, r.StateHash, r.PrevHash, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to vault_log.journal.
func (w *RecordLogWriter) WriteJournalBatch(ctx context.Context, ex execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	const cols = 10
	query := `INSERT INTO vault_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, asset, amount, journal_type, ts)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*cols)
	for i, j := range journals {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Asset, j.Amount,
			j.JournalType, j.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+i)
	}
	b.WriteByte(')')
	return b.String()
}
