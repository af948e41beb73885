package projection

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/state"

	"github.com/rs/zerolog"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ProjectionWorker maintains the read models in the projections schema.
// The projection channel drops on full, so these tables are eventually consistent and
// can be rebuilt from the record log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger

	// mu serializes Apply between Run and Rebuild.
	mu      sync.Mutex
	lastSeq atomic.Int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput, metrics *observability.Metrics) *ProjectionWorker {
	pw := &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("projection"),
	}
	pw.lastSeq.Store(-1)
	return pw
}

// Run applies outputs until ctx is cancelled or the channel closes.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			pw.mu.Lock()
			// A rebuild may already have covered this output.
			if out.Envelope.Sequence > pw.lastSeq.Load() {
				if err := pw.Apply(ctx, out); err != nil {
					pw.logger.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("projection update failed")
				} else {
					pw.lastSeq.Store(out.Envelope.Sequence)
				}
			}
			pw.mu.Unlock()
		}
	}
}

// LastSequence returns the sequence of the last applied output, -1 before the first.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq.Load()
}

// Apply writes one output's effects in a single transaction.
func (pw *ProjectionWorker) Apply(ctx context.Context, out core.CoreOutput) error {
	start := time.Now()
	env := out.Envelope

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, b := range out.Batches {
		for _, j := range b.Journals {
			if err := updateBalance(ctx, tx, j.DebitAccount.AccountPath(), j.Asset.String(), j.Amount, env.Sequence); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
			if err := updateBalance(ctx, tx, j.CreditAccount.AccountPath(), j.Asset.String(), -j.Amount, env.Sequence); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}

	if rec, ok := env.Record.(*event.FuelRecord); ok {
		if err := insertFuelHistory(ctx, tx, env.Sequence, rec); err != nil {
			return fmt.Errorf("fuel history: %w", err)
		}
	}

	if out.Vault != nil {
		if err := upsertVault(ctx, tx, out.Vault, out.Protocol, env.Sequence); err != nil {
			return fmt.Errorf("vault projection: %w", err)
		}
	}
	for i := range out.Depositors {
		if err := upsertDepositor(ctx, tx, &out.Depositors[i], env.Sequence); err != nil {
			return fmt.Errorf("depositor projection: %w", err)
		}
	}
	for i := range out.Tokenized {
		if err := upsertTokenized(ctx, tx, &out.Tokenized[i], env.Sequence); err != nil {
			return fmt.Errorf("tokenized projection: %w", err)
		}
	}
	switch {
	case out.FeeUpdateDeleted:
		if _, err := tx.ExecContext(ctx, `DELETE FROM projections.fee_updates WHERE vault_id = $1`, env.VaultID); err != nil {
			return fmt.Errorf("fee update projection: %w", err)
		}
	case out.FeeUpdate != nil:
		if err := upsertFeeUpdate(ctx, tx, out.FeeUpdate, env.Sequence); err != nil {
			return fmt.Errorf("fee update projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, env.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(env.Record.RecordType().String()).Observe(time.Since(start).Seconds())
	}
	return nil
}

func updateBalance(ctx context.Context, ex execer, path, asset string, delta, seq int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, path, asset, delta, seq)
	return err
}

func upsertVault(ctx context.Context, ex execer, v *state.Vault, p *state.VaultProtocol, seq int64) error {
	protocolShares := "0"
	if p != nil {
		protocolShares = p.ProtocolShares.String()
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.vaults (
			vault_id, name, manager, delegate, deposit_asset, asset_decimals,
			total_shares, user_shares, protocol_shares, shares_base, last_equity,
			management_fee, profit_share, hurdle_rate, redeem_period, permissioned,
			vault_class, fee_update_status, manager_borrowed_value, total_withdraw_requested,
			net_deposits, cumulative_fuel, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (vault_id) DO UPDATE SET
			name = $2, manager = $3, delegate = $4, deposit_asset = $5, asset_decimals = $6,
			total_shares = $7, user_shares = $8, protocol_shares = $9, shares_base = $10, last_equity = $11,
			management_fee = $12, profit_share = $13, hurdle_rate = $14, redeem_period = $15, permissioned = $16,
			vault_class = $17, fee_update_status = $18, manager_borrowed_value = $19, total_withdraw_requested = $20,
			net_deposits = $21, cumulative_fuel = $22, last_sequence = $23
	`,
		v.ID, v.Name, v.Manager, v.Delegate, v.DepositAsset, int(v.AssetDecimals),
		v.TotalShares.String(), v.UserShares.String(), protocolShares, int64(v.SharesBase), int64(v.LastEquity),
		int64(v.ManagementFee), int64(v.ProfitShare), int64(v.HurdleRate), v.RedeemPeriod, v.Permissioned,
		v.VaultClass.String(), v.FeeUpdateStatus.String(), int64(v.ManagerBorrowedValue), int64(v.TotalWithdrawRequested),
		v.NetDeposits, v.CumulativeFuel.String(), seq,
	)
	return err
}

func upsertHolding(ctx context.Context, ex execer, d depositorRow) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.depositors (
			vault_id, authority, tokenized, vault_shares, shares_base, net_deposits,
			total_deposits, total_withdraws, cumulative_profit_share,
			withdraw_shares, withdraw_value, withdraw_ts, fuel_amount, symbol, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (vault_id, authority, tokenized) DO UPDATE SET
			vault_shares = $4, shares_base = $5, net_deposits = $6,
			total_deposits = $7, total_withdraws = $8, cumulative_profit_share = $9,
			withdraw_shares = $10, withdraw_value = $11, withdraw_ts = $12,
			fuel_amount = $13, symbol = $14, last_sequence = $15
	`,
		d.key.Vault, d.key.Authority, d.tokenized, d.holding.VaultShares.String(), int64(d.holding.VaultSharesBase),
		d.holding.NetDeposits, int64(d.totalDeposits), int64(d.totalWithdraws), d.holding.CumulativeProfitShareAmount,
		d.request.Shares.String(), int64(d.request.Value), d.request.Ts,
		int64(d.holding.FuelAmount), d.symbol, d.seq,
	)
	return err
}

// depositorRow flattens plain and tokenized depositors onto one table.
type depositorRow struct {
	key            state.DepositorKey
	tokenized      bool
	holding        state.Holding
	request        state.WithdrawRequest
	totalDeposits  uint64
	totalWithdraws uint64
	symbol         sql.NullString
	seq            int64
}

func upsertDepositor(ctx context.Context, ex execer, d *state.VaultDepositor, seq int64) error {
	return upsertHolding(ctx, ex, depositorRow{
		key:            d.Key(),
		holding:        d.Holding,
		request:        d.LastWithdrawRequest,
		totalDeposits:  d.TotalDeposits,
		totalWithdraws: d.TotalWithdraws,
		seq:            seq,
	})
}

func upsertTokenized(ctx context.Context, ex execer, t *state.TokenizedVaultDepositor, seq int64) error {
	return upsertHolding(ctx, ex, depositorRow{
		key:       t.Key(),
		tokenized: true,
		holding:   t.Holding,
		symbol:    sql.NullString{String: t.Symbol, Valid: t.Symbol != ""},
		seq:       seq,
	})
}

func upsertFeeUpdate(ctx context.Context, ex execer, f *state.FeeUpdate, seq int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.fee_updates (
			vault_id, pending, incoming_management_fee, incoming_profit_share, incoming_hurdle_rate,
			requested_ts, timelock_end_ts, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (vault_id) DO UPDATE SET
			pending = $2, incoming_management_fee = $3, incoming_profit_share = $4, incoming_hurdle_rate = $5,
			requested_ts = $6, timelock_end_ts = $7, last_sequence = $8
	`,
		f.Vault, f.Pending, int64(f.IncomingManagementFee), int64(f.IncomingProfitShare), int64(f.IncomingHurdleRate),
		f.IncomingUpdateRequested, f.TimelockEndTs, seq,
	)
	return err
}

func insertFuelHistory(ctx context.Context, ex execer, seq int64, r *event.FuelRecord) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.fuel_history (
			sequence, vault_id, authority, tokenized, action, delta, fuel_credited,
			fuel_amount_after, cumulative_fuel_per_share, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (sequence) DO NOTHING
	`,
		seq, r.Vault, r.Authority, r.Tokenized, r.Action.String(), r.Delta.String(), int64(r.FuelCredited),
		int64(r.FuelAmountAfter), r.CumulativeFuelPerShare.String(), r.Ts,
	)
	return err
}
