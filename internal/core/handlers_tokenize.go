package core

import (
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"
)

func (tx *txn) tokenizationRecord(authority string, t *state.TokenizedVaultDepositor, action event.TokenizationAction, supplyBefore fpmath.U128) *event.TokenizationRecord {
	return &event.TokenizationRecord{
		Ts:                  tx.ts,
		Vault:               tx.vaultID,
		Authority:           authority,
		Wrapper:             t.Authority,
		Action:              action,
		SharesBase:          tx.vault.SharesBase,
		WrapperSupplyBefore: supplyBefore,
		WrapperSupplyAfter:  t.VaultShares,
		Settlement:          tx.settlement,
	}
}

func (e *VaultEngine) handleInitializeTokenizedVaultDepositor(tx *txn, cmd *event.InitializeTokenizedVaultDepositor) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	if cmd.Authority == "" || cmd.Symbol == "" {
		return state.ErrInvalidVaultInitialization.With("wrapper authority and symbol required")
	}
	if tx.tokenizedExists(cmd.Authority) {
		return state.ErrTokenizedDepositorExists.With("tokenized depositor %s in vault %s", cmd.Authority, v.ID)
	}
	t := state.NewTokenizedVaultDepositor(v, cmd.Authority, cmd.Symbol, cmd.Name, cmd.Decimals, tx.ts)
	tx.addTokenized(t)
	tx.emit(tx.tokenizationRecord(cmd.Signer(), t, event.TokenizationActionInitialize, fpmath.ZeroU128))
	return nil
}

func (e *VaultEngine) handleTokenizeShares(tx *txn, cmd *event.TokenizeShares) error {
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	v := tx.vault
	d, err := tx.mustDepositor(cmd.Signer())
	if err != nil {
		return err
	}
	t, err := tx.tokenizedDepositor(cmd.Wrapper)
	if err != nil {
		return err
	}
	if err := touch(tx, &d.Holding); err != nil {
		return err
	}
	if err := touch(tx, &t.Holding); err != nil {
		return err
	}
	supplyBefore := t.VaultShares
	res, err := d.TokenizeShares(v, tx.protocol, t, cmd.Shares, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	if err := tx.journal(e.journalGen.GenerateWrapperMint(v.ID, t.Authority, d.Authority, tx.ref, tx.nextLeg(), res.Shares, tx.ts)); err != nil {
		return err
	}
	e.recordCharges(tx, res)

	rec := tx.tokenizationRecord(d.Authority, t, event.TokenizationActionTokenize, supplyBefore)
	rec.Shares = res.Shares
	rec.Amount = res.Amount
	rec.DepositorSharesAfter = d.VaultShares
	rec.ProfitShare = res.ProfitShare.ManagerAmount
	rec.ProtocolProfitShare = res.ProfitShare.ProtocolAmount
	rec.ManagementFee = res.Fee.ManagementFee
	rec.ProtocolFee = res.Fee.ProtocolFee
	tx.emit(rec)
	return nil
}

func (e *VaultEngine) handleRedeemTokens(tx *txn, cmd *event.RedeemTokens) error {
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	v := tx.vault
	t, err := tx.tokenizedDepositor(cmd.Wrapper)
	if err != nil {
		return err
	}
	d, err := tx.depositorFor(cmd.Signer())
	if err != nil {
		return err
	}
	tokens, err := cmd.Tokens.Int64()
	if err != nil {
		return state.ErrMath.Wrap(err)
	}
	held := e.balanceTracker.GetBalance(ledger.WrapperBalanceAccount(v.ID, t.Authority, d.Authority))
	if held < tokens {
		return state.ErrInsufficientWrapperTokens.With("%s holds %d %s, redeeming %d", d.Authority, held, t.Symbol, tokens)
	}
	if err := touch(tx, &d.Holding); err != nil {
		return err
	}
	if err := touch(tx, &t.Holding); err != nil {
		return err
	}
	supplyBefore := t.VaultShares
	res, err := d.RedeemTokens(v, tx.protocol, t, cmd.Tokens, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	if err := tx.journal(e.journalGen.GenerateWrapperBurn(v.ID, t.Authority, d.Authority, tx.ref, tx.nextLeg(), res.Shares, tx.ts)); err != nil {
		return err
	}
	e.recordCharges(tx, res)

	rec := tx.tokenizationRecord(d.Authority, t, event.TokenizationActionRedeem, supplyBefore)
	rec.Shares = res.Shares
	rec.Amount = res.Amount
	rec.DepositorSharesAfter = d.VaultShares
	rec.ManagementFee = res.Fee.ManagementFee
	rec.ProtocolFee = res.Fee.ProtocolFee
	tx.emit(rec)
	return nil
}
