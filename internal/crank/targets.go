package crank

import (
	"context"

	"VaultLedger/internal/query"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

// Targets lists what the cranks should visit.
type Targets interface {
	Vaults(ctx context.Context) ([]VaultTarget, error)
	Holders(ctx context.Context, vault uuid.UUID) ([]Holder, error)
}

// Holder is one fuel-earning position: a plain depositor or a wrapper holder.
type Holder struct {
	Authority string
	Tokenized bool
}

// VaultTarget is one vault as seen by the read model.
type VaultTarget struct {
	ID              uuid.UUID
	FeeUpdateEndTs  int64
	HasFeeUpdate    bool
	HasFuelAccruals bool
}

// QueryTargets pages through the projection read model.
type QueryTargets struct {
	qs *query.QueryService
}

func NewQueryTargets(qs *query.QueryService) *QueryTargets {
	return &QueryTargets{qs: qs}
}

func (t *QueryTargets) Vaults(ctx context.Context) ([]VaultTarget, error) {
	var (
		out   []VaultTarget
		after *uuid.UUID
	)
	for {
		page, err := t.qs.ListVaults(ctx, query.MaxPageSize, after)
		if err != nil {
			return nil, err
		}
		for _, v := range page {
			vt := VaultTarget{ID: v.VaultID, HasFuelAccruals: v.CumulativeFuel != "0"}
			if v.FeeUpdateStatus == state.FeeUpdateStatusPending.String() {
				fu, err := t.qs.GetFeeUpdate(ctx, v.VaultID)
				if err != nil {
					return nil, err
				}
				vt.HasFeeUpdate = fu.Pending
				vt.FeeUpdateEndTs = fu.TimelockEndTs
			}
			out = append(out, vt)
		}
		if len(page) < query.MaxPageSize {
			return out, nil
		}
		last := page[len(page)-1].VaultID
		after = &last
	}
}

// Holders returns every plain depositor and wrapper holder of a vault.
func (t *QueryTargets) Holders(ctx context.Context, vault uuid.UUID) ([]Holder, error) {
	var (
		out   []Holder
		after string
	)
	for {
		page, err := t.qs.ListDepositors(ctx, vault, query.MaxPageSize, after)
		if err != nil {
			return nil, err
		}
		for _, d := range page {
			out = append(out, Holder{Authority: d.Authority, Tokenized: d.Tokenized})
		}
		if len(page) < query.MaxPageSize {
			return out, nil
		}
		after = page[len(page)-1].Authority
	}
}
