package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"VaultLedger/internal/observability"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested row does not exist in the projections.
var ErrNotFound = errors.New("not found")

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// QueryService provides read-only access to projection tables. Every response carries
// as_of_sequence, the last record the projections have applied.
type QueryService struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewQueryService(db *sql.DB, metrics *observability.Metrics) *QueryService {
	return &QueryService{db: db, metrics: metrics}
}

// observe records one request; call as defer qs.observe("endpoint", time.Now(), &err).
func (qs *QueryService) observe(endpoint string, start time.Time, err *error) {
	if qs.metrics == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(*err, ErrNotFound):
		status = "not_found"
	case *err != nil:
		status = "error"
	}
	qs.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	qs.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

const vaultColumns = `
	vault_id, name, manager, delegate, deposit_asset, asset_decimals,
	total_shares::TEXT, user_shares::TEXT, protocol_shares::TEXT, shares_base,
	last_equity, manager_borrowed_value, net_deposits, total_withdraw_requested,
	management_fee, profit_share, hurdle_rate, redeem_period, permissioned,
	vault_class, fee_update_status, cumulative_fuel::TEXT`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVault(row rowScanner) (*VaultResponse, error) {
	var (
		v                  VaultResponse
		mgmt, profit, hurd int64
	)
	if err := row.Scan(
		&v.VaultID, &v.Name, &v.Manager, &v.Delegate, &v.DepositAsset, &v.AssetDecimals,
		&v.TotalShares, &v.UserShares, &v.ProtocolShares, &v.SharesBase,
		&v.LastEquity, &v.ManagerBorrowedValue, &v.NetDeposits, &v.WithdrawRequested,
		&mgmt, &profit, &hurd, &v.RedeemPeriod, &v.Permissioned,
		&v.VaultClass, &v.FeeUpdateStatus, &v.CumulativeFuel,
	); err != nil {
		return nil, err
	}

	total, err := parseShares(v.TotalShares)
	if err != nil {
		return nil, err
	}
	user, err := parseShares(v.UserShares)
	if err != nil {
		return nil, err
	}
	protocol, err := parseShares(v.ProtocolShares)
	if err != nil {
		return nil, err
	}

	v.ManagerShares = total.Sub(user).Sub(protocol).String()
	v.Equity = Units(v.LastEquity, v.AssetDecimals)
	v.SharePrice = SharePrice(v.LastEquity, total)
	v.ManagementFee = Percent(mgmt)
	v.ProfitShare = Percent(profit)
	v.HurdleRate = Percent(hurd)
	return &v, nil
}

// GetVault returns one vault summary.
func (qs *QueryService) GetVault(ctx context.Context, vaultID uuid.UUID) (resp *VaultResponse, err error) {
	defer qs.observe("get_vault", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp, err = scanVault(qs.db.QueryRowContext(ctx,
		`SELECT `+vaultColumns+` FROM projections.vaults WHERE vault_id = $1`, vaultID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vault %s: %w", vaultID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	resp.AsOfSequence = asOfSeq
	return resp, nil
}

// ListVaults pages through vaults ordered by ID, starting after the given ID.
func (qs *QueryService) ListVaults(ctx context.Context, limit int, after *uuid.UUID) (out []VaultResponse, err error) {
	defer qs.observe("list_vaults", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + vaultColumns + ` FROM projections.vaults`
	args := []interface{}{}
	argIdx := 1
	if after != nil {
		query += fmt.Sprintf(" WHERE vault_id > $%d", argIdx)
		args = append(args, *after)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY vault_id LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		v.AsOfSequence = asOfSeq
		out = append(out, *v)
	}
	return out, rows.Err()
}

const depositorColumns = `
	d.vault_id, d.authority, d.tokenized, COALESCE(d.symbol, ''),
	d.vault_shares::TEXT, d.shares_base, d.net_deposits, d.total_deposits, d.total_withdraws,
	d.cumulative_profit_share, d.withdraw_shares::TEXT, d.withdraw_value, d.withdraw_ts, d.fuel_amount,
	v.total_shares::TEXT, v.shares_base, v.last_equity, v.asset_decimals, v.redeem_period`

func scanDepositor(row rowScanner) (*DepositorResponse, error) {
	var (
		d                                   DepositorResponse
		withdrawShares, vaultTotal          string
		withdrawValue, withdrawTs           int64
		vaultBase, lastEquity, redeemPeriod int64
		decimals                            int
	)
	if err := row.Scan(
		&d.VaultID, &d.Authority, &d.Tokenized, &d.Symbol,
		&d.VaultShares, &d.SharesBase, &d.NetDeposits, &d.TotalDeposits, &d.TotalWithdraws,
		&d.CumulativeProfitShare, &withdrawShares, &withdrawValue, &withdrawTs, &d.FuelAmount,
		&vaultTotal, &vaultBase, &lastEquity, &decimals, &redeemPeriod,
	); err != nil {
		return nil, err
	}

	shares, err := parseShares(d.VaultShares)
	if err != nil {
		return nil, err
	}
	total, err := parseShares(vaultTotal)
	if err != nil {
		return nil, err
	}
	d.Value = ShareValue(shares, total, d.SharesBase, vaultBase, lastEquity)
	d.DisplayValue = Units(d.Value, decimals)

	pending, err := parseShares(withdrawShares)
	if err != nil {
		return nil, err
	}
	if !pending.IsZero() || withdrawValue != 0 {
		d.PendingWithdraw = &PendingWithdraw{
			Shares:       withdrawShares,
			Value:        withdrawValue,
			RequestedTs:  withdrawTs,
			RedeemableTs: withdrawTs + redeemPeriod,
		}
	}
	return &d, nil
}

// GetDepositor returns one depositor position.
func (qs *QueryService) GetDepositor(ctx context.Context, vaultID uuid.UUID, authority string, tokenized bool) (resp *DepositorResponse, err error) {
	defer qs.observe("get_depositor", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp, err = scanDepositor(qs.db.QueryRowContext(ctx, `
		SELECT `+depositorColumns+`
		FROM projections.depositors d
		JOIN projections.vaults v ON v.vault_id = d.vault_id
		WHERE d.vault_id = $1 AND d.authority = $2 AND d.tokenized = $3
	`, vaultID, authority, tokenized))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("depositor %s in vault %s: %w", authority, vaultID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	resp.AsOfSequence = asOfSeq
	return resp, nil
}

// ListDepositors pages through a vault's depositors ordered by authority.
func (qs *QueryService) ListDepositors(ctx context.Context, vaultID uuid.UUID, limit int, afterAuthority string) (out []DepositorResponse, err error) {
	defer qs.observe("list_depositors", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT `+depositorColumns+`
		FROM projections.depositors d
		JOIN projections.vaults v ON v.vault_id = d.vault_id
		WHERE d.vault_id = $1 AND d.authority > $2
		ORDER BY d.authority, d.tokenized
		LIMIT $3
	`, vaultID, afterAuthority, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDepositor(rows)
		if err != nil {
			return nil, err
		}
		d.AsOfSequence = asOfSeq
		out = append(out, *d)
	}
	return out, rows.Err()
}

// GetFeeUpdate returns a vault's fee update slot.
func (qs *QueryService) GetFeeUpdate(ctx context.Context, vaultID uuid.UUID) (resp *FeeUpdateResponse, err error) {
	defer qs.observe("get_fee_update", time.Now(), &err)

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var (
		f                  FeeUpdateResponse
		mgmt, profit, hurd int64
	)
	err = qs.db.QueryRowContext(ctx, `
		SELECT vault_id, pending, incoming_management_fee, incoming_profit_share, incoming_hurdle_rate,
		       requested_ts, timelock_end_ts
		FROM projections.fee_updates
		WHERE vault_id = $1
	`, vaultID).Scan(&f.VaultID, &f.Pending, &mgmt, &profit, &hurd, &f.RequestedTs, &f.TimelockEndTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fee update for vault %s: %w", vaultID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	f.IncomingManagementFee = Percent(mgmt)
	f.IncomingProfitShare = Percent(profit)
	f.IncomingHurdleRate = Percent(hurd)
	f.AsOfSequence = asOfSeq
	return &f, nil
}

// GetFuelHistory returns fuel cranks for a vault, newest first. A nil authority returns
// every entry; an empty one returns vault-level entries only. Supports cursor
// pagination on sequence.
func (qs *QueryService) GetFuelHistory(ctx context.Context, vaultID uuid.UUID, authority *string, limit int, beforeSeq *int64) (out []FuelHistoryEntry, err error) {
	defer qs.observe("fuel_history", time.Now(), &err)

	query := `
		SELECT sequence, authority, tokenized, action, delta::TEXT, fuel_credited,
		       fuel_amount_after, cumulative_fuel_per_share::TEXT, ts
		FROM projections.fuel_history
		WHERE vault_id = $1
	`
	args := []interface{}{vaultID}
	argIdx := 2

	if authority != nil {
		query += fmt.Sprintf(" AND authority = $%d", argIdx)
		args = append(args, *authority)
		argIdx++
	}
	if beforeSeq != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSeq)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h FuelHistoryEntry
		if err := rows.Scan(
			&h.Sequence, &h.Authority, &h.Tokenized, &h.Action, &h.Delta, &h.FuelCredited,
			&h.FuelAmountAfter, &h.CumulativeFuelPerShare, &h.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetJournalHistory returns journal entries touching a vault, newest first. With an
// owner, only entries on that owner's wallet or wrapper accounts are returned.
func (qs *QueryService) GetJournalHistory(ctx context.Context, vaultID uuid.UUID, owner string, limit int, beforeSeq *int64) (out []JournalHistoryEntry, err error) {
	defer qs.observe("journal_history", time.Now(), &err)

	pattern := fmt.Sprintf("%%:%s:%%", vaultID)
	if owner != "" {
		pattern = fmt.Sprintf("%%:%s:%%%s%%", vaultID, owner)
	}

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset, amount, journal_type, ts
		FROM vault_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{pattern}
	argIdx := 2

	if beforeSeq != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSeq)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", argIdx)
	args = append(args, clampLimit(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Asset, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the record hash chain and that every asset's projected
// balances sum to zero.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (report *IntegrityReport, err error) {
	defer qs.observe("verify_integrity", time.Now(), &err)

	report = &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT r1.sequence
		FROM vault_log.records r1
		JOIN vault_log.records r2 ON r2.sequence = r1.sequence - 1
		WHERE r1.prev_hash != r2.state_hash
		ORDER BY r1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset, SUM(balance)::BIGINT AS total
		FROM projections.balances
		GROUP BY asset
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var u UnbalancedAsset
		if err := balanceRows.Scan(&u.Asset, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// Watermark returns the last sequence the projections have applied, -1 when empty.
func (qs *QueryService) Watermark(ctx context.Context) (int64, error) {
	return qs.getWatermark(ctx)
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	return seq, err
}
