package query

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VaultResponse is a vault summary. Raw integer amounts are in base-asset units; the
// decimal fields render them with the asset's decimals.
type VaultResponse struct {
	VaultID       uuid.UUID `json:"vault_id"`
	Name          string    `json:"name"`
	Manager       string    `json:"manager"`
	Delegate      string    `json:"delegate"`
	DepositAsset  string    `json:"deposit_asset"`
	AssetDecimals int       `json:"asset_decimals"`

	TotalShares    string `json:"total_shares"`
	UserShares     string `json:"user_shares"`
	ProtocolShares string `json:"protocol_shares"`
	ManagerShares  string `json:"manager_shares"`
	SharesBase     int64  `json:"shares_base"`

	LastEquity           int64           `json:"last_equity"`
	Equity               decimal.Decimal `json:"equity"`
	SharePrice           decimal.Decimal `json:"share_price"`
	ManagerBorrowedValue int64           `json:"manager_borrowed_value"`
	NetDeposits          int64           `json:"net_deposits"`
	WithdrawRequested    int64           `json:"total_withdraw_requested"`

	ManagementFee   decimal.Decimal `json:"management_fee"`
	ProfitShare     decimal.Decimal `json:"profit_share"`
	HurdleRate      decimal.Decimal `json:"hurdle_rate"`
	RedeemPeriod    int64           `json:"redeem_period"`
	Permissioned    bool            `json:"permissioned"`
	VaultClass      string          `json:"vault_class"`
	FeeUpdateStatus string          `json:"fee_update_status"`
	CumulativeFuel  string          `json:"cumulative_fuel"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// DepositorResponse is one depositor position valued at the vault's last equity.
type DepositorResponse struct {
	VaultID   uuid.UUID `json:"vault_id"`
	Authority string    `json:"authority"`
	Tokenized bool      `json:"tokenized"`
	Symbol    string    `json:"symbol,omitempty"`

	VaultShares string `json:"vault_shares"`
	SharesBase  int64  `json:"shares_base"`
	// Value is floor(shares * last_equity / total_shares) in base units.
	Value        int64           `json:"value"`
	DisplayValue decimal.Decimal `json:"display_value"`

	NetDeposits           int64 `json:"net_deposits"`
	TotalDeposits         int64 `json:"total_deposits"`
	TotalWithdraws        int64 `json:"total_withdraws"`
	CumulativeProfitShare int64 `json:"cumulative_profit_share"`

	PendingWithdraw *PendingWithdraw `json:"pending_withdraw,omitempty"`
	FuelAmount      int64            `json:"fuel_amount"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PendingWithdraw is an outstanding withdraw request.
type PendingWithdraw struct {
	Shares       string `json:"shares"`
	Value        int64  `json:"value"`
	RequestedTs  int64  `json:"requested_ts"`
	RedeemableTs int64  `json:"redeemable_ts"`
}

// FeeUpdateResponse is a vault's fee update slot.
type FeeUpdateResponse struct {
	VaultID               uuid.UUID       `json:"vault_id"`
	Pending               bool            `json:"pending"`
	IncomingManagementFee decimal.Decimal `json:"incoming_management_fee"`
	IncomingProfitShare   decimal.Decimal `json:"incoming_profit_share"`
	IncomingHurdleRate    decimal.Decimal `json:"incoming_hurdle_rate"`
	RequestedTs           int64           `json:"requested_ts"`
	TimelockEndTs         int64           `json:"timelock_end_ts"`
	AsOfSequence          int64           `json:"as_of_sequence"`
}

// FuelHistoryEntry is one fuel crank affecting a vault or holder.
type FuelHistoryEntry struct {
	Sequence               int64  `json:"sequence"`
	Authority              string `json:"authority,omitempty"`
	Tokenized              bool   `json:"tokenized"`
	Action                 string `json:"action"`
	Delta                  string `json:"delta"`
	FuelCredited           int64  `json:"fuel_credited"`
	FuelAmountAfter        int64  `json:"fuel_amount_after"`
	CumulativeFuelPerShare string `json:"cumulative_fuel_per_share"`
	Timestamp              int64  `json:"timestamp"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Asset         string `json:"asset"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	Asset     string `json:"asset"`
	Imbalance int64  `json:"imbalance"`
}
