package state

import (
	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
)

// DepositorKey identifies a depositor (plain or tokenized) within a vault.
type DepositorKey struct {
	Vault     uuid.UUID
	Authority string
}

// Holding is the share position, high-water mark and fuel baseline common to plain
// and tokenized depositors.
type Holding struct {
	VaultShares     fpmath.U128 `json:"vault_shares"`
	VaultSharesBase uint32      `json:"vault_shares_base"`

	NetDeposits                 int64  `json:"net_deposits"`
	CumulativeProfitShareAmount int64  `json:"cumulative_profit_share_amount"`
	ProfitShareFeePaid          uint64 `json:"profit_share_fee_paid"`

	FuelAmount                   uint64      `json:"fuel_amount"`
	CumulativeFuelPerShareAmount fpmath.U128 `json:"cumulative_fuel_per_share_amount"`
	LastFuelUpdateTs             int64       `json:"last_fuel_update_ts"`
}

// Shares returns the holding's shares tagged with their base.
func (h *Holding) Shares() fpmath.Shares {
	return fpmath.Shares{Raw: h.VaultShares, Base: h.VaultSharesBase}
}

// normalize brings a stale holding up to the vault's current base. The fuel baseline
// scales up by the same factor the shares shrink by, so owed fuel is unchanged.
func (h *Holding) normalize(v *Vault) error {
	if h.VaultSharesBase == v.SharesBase {
		return nil
	}
	if h.VaultSharesBase > v.SharesBase {
		return ErrSharesBaseMismatch.With("holding base %d ahead of vault base %d", h.VaultSharesBase, v.SharesBase)
	}
	shares, err := h.Shares().Normalize(v.SharesBase)
	if err != nil {
		return mathErr("normalize shares", err)
	}
	factor, err := fpmath.Pow10(v.SharesBase - h.VaultSharesBase)
	if err != nil {
		return mathErr("normalize shares", err)
	}
	baseline, err := h.CumulativeFuelPerShareAmount.Mul(factor)
	if err != nil {
		return mathErr("normalize fuel baseline", err)
	}
	h.VaultShares = shares.Raw
	h.VaultSharesBase = shares.Base
	h.CumulativeFuelPerShareAmount = baseline
	return nil
}

func (h *Holding) addShares(v *Vault, n fpmath.U128) error {
	if h.VaultSharesBase != v.SharesBase {
		return ErrSharesBaseMismatch.With("holding base %d, vault base %d", h.VaultSharesBase, v.SharesBase)
	}
	s, err := h.VaultShares.Add(n)
	if err != nil {
		return mathErr("add shares", err)
	}
	h.VaultShares = s
	return nil
}

func (h *Holding) removeShares(v *Vault, n fpmath.U128) error {
	if h.VaultSharesBase != v.SharesBase {
		return ErrSharesBaseMismatch.With("holding base %d, vault base %d", h.VaultSharesBase, v.SharesBase)
	}
	if n.Gt(h.VaultShares) {
		return ErrInsufficientVaultShares.With("have %s, need %s", h.VaultShares, n)
	}
	s, _ := h.VaultShares.Sub(n)
	h.VaultShares = s
	return nil
}

// VaultDepositor is one authority's position in one vault.
type VaultDepositor struct {
	Vault     uuid.UUID `json:"vault"`
	Authority string    `json:"authority"`
	Holding

	LastWithdrawRequest WithdrawRequest `json:"last_withdraw_request"`
	TotalDeposits       uint64          `json:"total_deposits"`
	TotalWithdraws      uint64          `json:"total_withdraws"`
	CreatedTs           int64           `json:"created_ts"`
}

func (d *VaultDepositor) Key() DepositorKey {
	return DepositorKey{Vault: d.Vault, Authority: d.Authority}
}

// NewVaultDepositor starts a depositor at the vault's current base and fuel baseline,
// so it earns nothing attributed before it joined.
func NewVaultDepositor(v *Vault, authority string, now int64) *VaultDepositor {
	return &VaultDepositor{
		Vault:     v.ID,
		Authority: authority,
		Holding: Holding{
			VaultSharesBase:              v.SharesBase,
			CumulativeFuelPerShareAmount: v.CumulativeFuelPerShare,
			LastFuelUpdateTs:             now,
		},
		CreatedTs: now,
	}
}

// Normalize applies any vault rebase the depositor has not seen yet, including to the
// shares earmarked by a pending withdraw request.
func (d *VaultDepositor) Normalize(v *Vault) error {
	if d.VaultSharesBase == v.SharesBase {
		return nil
	}
	from := d.VaultSharesBase
	if err := d.Holding.normalize(v); err != nil {
		return err
	}
	if d.LastWithdrawRequest.Pending() {
		req, err := fpmath.Shares{Raw: d.LastWithdrawRequest.Shares, Base: from}.Normalize(v.SharesBase)
		if err != nil {
			return mathErr("normalize withdraw request", err)
		}
		d.LastWithdrawRequest.Shares = req.Raw
	}
	return nil
}

// TokenizedVaultDepositor holds shares represented by a fungible wrapper token,
// one token per share. Its cost basis is pooled across all token holders.
type TokenizedVaultDepositor struct {
	Vault     uuid.UUID `json:"vault"`
	Authority string    `json:"authority"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Decimals  uint8     `json:"decimals"`
	Holding
	CreatedTs int64 `json:"created_ts"`
}

func (t *TokenizedVaultDepositor) Key() DepositorKey {
	return DepositorKey{Vault: t.Vault, Authority: t.Authority}
}

// CheckBase rejects a tokenized depositor whose base diverges from the vault while it
// has shares outstanding. Wrapper tokens cannot be rebased, so reconciling silently
// would break the one-token-per-share peg.
func (t *TokenizedVaultDepositor) CheckBase(v *Vault) error {
	if t.VaultSharesBase == v.SharesBase {
		return nil
	}
	if t.VaultShares.IsZero() {
		t.VaultSharesBase = v.SharesBase
		t.CumulativeFuelPerShareAmount = v.CumulativeFuelPerShare
		return nil
	}
	return ErrSharesBaseMismatch.With("tokenized depositor %s base %d, vault base %d", t.Authority, t.VaultSharesBase, v.SharesBase)
}
