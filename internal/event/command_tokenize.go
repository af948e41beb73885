package event

import (
	fpmath "VaultLedger/internal/math"
)

// InitializeTokenizedVaultDepositor creates the wrapper-backed holder identified by
// Authority. Signed by the manager; at most one per (vault, authority).
type InitializeTokenizedVaultDepositor struct {
	Header
	Authority string `json:"authority"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Decimals  uint8  `json:"decimals"`
}

func (c *InitializeTokenizedVaultDepositor) CommandType() CommandType {
	return CommandTypeInitializeTokenizedVaultDepositor
}

// TokenizeShares moves the signer's shares into the Wrapper holder and mints the same
// number of wrapper tokens to the signer.
type TokenizeShares struct {
	Header
	Valuation
	Wrapper string      `json:"wrapper"`
	Shares  fpmath.U128 `json:"shares"`
}

func (c *TokenizeShares) CommandType() CommandType { return CommandTypeTokenizeShares }

// RedeemTokens burns the signer's wrapper tokens and returns the same number of shares.
type RedeemTokens struct {
	Header
	Valuation
	Wrapper string      `json:"wrapper"`
	Tokens  fpmath.U128 `json:"tokens"`
}

func (c *RedeemTokens) CommandType() CommandType { return CommandTypeRedeemTokens }
