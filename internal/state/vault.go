package state

import (
	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
)

const (
	OneDay          int64 = 86_400
	OneYear         int64 = 31_536_000
	MaxRedeemPeriod int64 = 90 * OneDay
)

// VaultClass governs whether the manager may borrow against vault collateral.
type VaultClass uint8

const (
	VaultClassNormal VaultClass = iota
	VaultClassTrusted
)

func (c VaultClass) String() string {
	switch c {
	case VaultClassNormal:
		return "Normal"
	case VaultClassTrusted:
		return "Trusted"
	default:
		return "Unknown"
	}
}

// FeeUpdateStatus tracks whether a timelocked fee change is waiting to be applied.
type FeeUpdateStatus uint8

const (
	FeeUpdateStatusNone FeeUpdateStatus = iota
	FeeUpdateStatusPending
)

func (s FeeUpdateStatus) String() string {
	switch s {
	case FeeUpdateStatusNone:
		return "None"
	case FeeUpdateStatusPending:
		return "HasFeeUpdate"
	default:
		return "Unknown"
	}
}

// WithdrawRequest earmarks shares for withdrawal. Value is the token value at request
// time and is informational; execution re-prices at current equity.
type WithdrawRequest struct {
	Shares fpmath.U128 `json:"shares"`
	Value  uint64      `json:"value"`
	Ts     int64       `json:"ts"`
}

func (r WithdrawRequest) Pending() bool {
	return !r.Shares.IsZero() || r.Value != 0
}

// RedeemableAt returns the first timestamp at which the request may execute.
func (r WithdrawRequest) RedeemableAt(redeemPeriod int64) int64 {
	return r.Ts + redeemPeriod
}

// Vault is one pool of depositor capital traded by a manager.
type Vault struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Manager       string    `json:"manager"`
	Delegate      string    `json:"delegate"`
	DepositAsset  string    `json:"deposit_asset"`
	AssetDecimals uint8     `json:"asset_decimals"`

	TotalShares fpmath.U128 `json:"total_shares"`
	UserShares  fpmath.U128 `json:"user_shares"`
	SharesBase  uint32      `json:"shares_base"`

	ManagementFee uint32 `json:"management_fee"`
	ProfitShare   uint32 `json:"profit_share"`
	HurdleRate    uint32 `json:"hurdle_rate"`
	RedeemPeriod  int64  `json:"redeem_period"`

	MaxTokens        uint64 `json:"max_tokens"`
	MinDepositAmount uint64 `json:"min_deposit_amount"`
	Permissioned     bool   `json:"permissioned"`

	TotalDeposits          uint64 `json:"total_deposits"`
	TotalWithdraws         uint64 `json:"total_withdraws"`
	NetDeposits            int64  `json:"net_deposits"`
	TotalWithdrawRequested uint64 `json:"total_withdraw_requested"`

	ManagerTotalDeposits    uint64          `json:"manager_total_deposits"`
	ManagerTotalWithdraws   uint64          `json:"manager_total_withdraws"`
	ManagerNetDeposits      int64           `json:"manager_net_deposits"`
	ManagerTotalFee         uint64          `json:"manager_total_fee"`
	ManagerTotalProfitShare uint64          `json:"manager_total_profit_share"`
	LastManagerWithdraw     WithdrawRequest `json:"last_manager_withdraw_request"`

	LastFeeUpdateTs int64 `json:"last_fee_update_ts"`

	CumulativeFuel               fpmath.U128 `json:"cumulative_fuel"`
	CumulativeFuelPerShare       fpmath.U128 `json:"cumulative_fuel_per_share"`
	LastCumulativeFuelPerShareTs int64       `json:"last_cumulative_fuel_per_share_ts"`

	HasProtocol          bool            `json:"has_protocol"`
	FeeUpdateStatus      FeeUpdateStatus `json:"fee_update_status"`
	VaultClass           VaultClass      `json:"vault_class"`
	ManagerBorrowedValue uint64          `json:"manager_borrowed_value"`

	// LastEquity is the effective equity after the last priced command, which is what
	// the vault's custody and borrowed accounts hold.
	LastEquity uint64 `json:"last_equity"`

	InitTs int64 `json:"init_ts"`
}

// VaultProtocol is the protocol-side overlay of a vault.
type VaultProtocol struct {
	Vault               uuid.UUID       `json:"vault"`
	Protocol            string          `json:"protocol"`
	ProtocolFee         uint32          `json:"protocol_fee"`
	ProtocolProfitShare uint32          `json:"protocol_profit_share"`
	ProtocolShares      fpmath.U128     `json:"protocol_shares"`
	TotalFee            uint64          `json:"total_fee"`
	TotalProfitShare    uint64          `json:"total_profit_share"`
	TotalWithdraws      uint64          `json:"total_withdraws"`
	LastWithdrawRequest WithdrawRequest `json:"last_protocol_withdraw_request"`
}

// FeeUpdate is a pending timelocked fee change. A slot exists once an admin
// initializes it; Pending is set while a manager proposal waits for its timelock.
type FeeUpdate struct {
	Vault                   uuid.UUID `json:"vault"`
	Pending                 bool      `json:"pending"`
	IncomingManagementFee   uint32    `json:"incoming_management_fee"`
	IncomingProfitShare     uint32    `json:"incoming_profit_share"`
	IncomingHurdleRate      uint32    `json:"incoming_hurdle_rate"`
	IncomingUpdateRequested int64     `json:"incoming_update_requested_ts"`
	TimelockEndTs           int64     `json:"timelock_end_ts"`
}

// Clear empties the slot without deleting it.
func (f *FeeUpdate) Clear() {
	*f = FeeUpdate{Vault: f.Vault}
}

// ProtocolShares returns the protocol's share count, zero without an overlay.
func protocolShares(p *VaultProtocol) fpmath.U128 {
	if p == nil {
		return fpmath.ZeroU128
	}
	return p.ProtocolShares
}

// ManagerShares returns totalShares - userShares - protocolShares.
func (v *Vault) ManagerShares(p *VaultProtocol) (fpmath.U128, error) {
	s, err := v.TotalShares.Sub(v.UserShares)
	if err != nil {
		return fpmath.U128{}, mathErr("manager shares", err)
	}
	s, err = s.Sub(protocolShares(p))
	if err != nil {
		return fpmath.U128{}, mathErr("manager shares", err)
	}
	return s, nil
}

// EffectiveEquity adds borrowed value back to the venue-reported equity.
func (v *Vault) EffectiveEquity(reported uint64) (uint64, error) {
	eq, err := fpmath.AddU64(reported, v.ManagerBorrowedValue)
	if err != nil {
		return 0, mathErr("effective equity", err)
	}
	return eq, nil
}

// IsManager reports whether signer may act as the vault's manager.
func (v *Vault) IsManager(signer string) bool {
	return signer != "" && signer == v.Manager
}

// ProfitShareRate returns the combined manager and protocol profit share.
func (v *Vault) ProfitShareRate(p *VaultProtocol) uint32 {
	if p == nil {
		return v.ProfitShare
	}
	return v.ProfitShare + p.ProtocolProfitShare
}

// VaultParams are the creation parameters of a vault.
type VaultParams struct {
	Name             string     `json:"name"`
	Manager          string     `json:"manager"`
	DepositAsset     string     `json:"deposit_asset"`
	AssetDecimals    uint8      `json:"asset_decimals"`
	ManagementFee    uint32     `json:"management_fee"`
	ProfitShare      uint32     `json:"profit_share"`
	HurdleRate       uint32     `json:"hurdle_rate"`
	RedeemPeriod     int64      `json:"redeem_period"`
	MaxTokens        uint64     `json:"max_tokens"`
	MinDepositAmount uint64     `json:"min_deposit_amount"`
	Permissioned     bool       `json:"permissioned"`
	VaultClass       VaultClass `json:"vault_class"`

	Protocol            string `json:"protocol,omitempty"`
	ProtocolFee         uint32 `json:"protocol_fee,omitempty"`
	ProtocolProfitShare uint32 `json:"protocol_profit_share,omitempty"`
}

// NewVault validates params and builds a vault plus its optional protocol overlay.
func NewVault(id uuid.UUID, params VaultParams, now int64) (*Vault, *VaultProtocol, error) {
	scale := uint32(fpmath.PercentageConfig.Scale)
	switch {
	case params.Manager == "":
		return nil, nil, ErrInvalidVaultInitialization.With("manager required")
	case params.Name == "":
		return nil, nil, ErrInvalidVaultInitialization.With("name required")
	case params.RedeemPeriod < 0 || params.RedeemPeriod > MaxRedeemPeriod:
		return nil, nil, ErrInvalidVaultInitialization.With("redeem period %d outside [0, %d]", params.RedeemPeriod, MaxRedeemPeriod)
	case params.ManagementFee >= scale:
		return nil, nil, ErrInvalidVaultInitialization.With("management fee %d must be below %d", params.ManagementFee, scale)
	case params.ProfitShare >= scale:
		return nil, nil, ErrInvalidVaultInitialization.With("profit share %d must be below %d", params.ProfitShare, scale)
	case params.HurdleRate > scale:
		return nil, nil, ErrInvalidVaultInitialization.With("hurdle rate %d above %d", params.HurdleRate, scale)
	}

	v := &Vault{
		ID:               id,
		Name:             params.Name,
		Manager:          params.Manager,
		Delegate:         params.Manager,
		DepositAsset:     params.DepositAsset,
		AssetDecimals:    params.AssetDecimals,
		ManagementFee:    params.ManagementFee,
		ProfitShare:      params.ProfitShare,
		HurdleRate:       params.HurdleRate,
		RedeemPeriod:     params.RedeemPeriod,
		MaxTokens:        params.MaxTokens,
		MinDepositAmount: params.MinDepositAmount,
		Permissioned:     params.Permissioned,
		VaultClass:       params.VaultClass,
		LastFeeUpdateTs:  now,
		InitTs:           now,
	}

	if params.Protocol == "" {
		return v, nil, nil
	}
	if uint64(params.ManagementFee)+uint64(params.ProtocolFee) >= uint64(scale) {
		return nil, nil, ErrInvalidVaultInitialization.With("management fee plus protocol fee must be below %d", scale)
	}
	if uint64(params.ProfitShare)+uint64(params.ProtocolProfitShare) >= uint64(scale) {
		return nil, nil, ErrInvalidVaultInitialization.With("profit share plus protocol profit share must be below %d", scale)
	}
	v.HasProtocol = true
	p := &VaultProtocol{
		Vault:               id,
		Protocol:            params.Protocol,
		ProtocolFee:         params.ProtocolFee,
		ProtocolProfitShare: params.ProtocolProfitShare,
	}
	return v, p, nil
}
