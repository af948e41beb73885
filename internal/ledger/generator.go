package ledger

import (
	"fmt"
	"math"

	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
)

// journalNamespace seeds the deterministic batch and journal IDs, so a replayed log
// rebuilds identical journals.
var journalNamespace = uuid.MustParse("6f1d2c84-3b0e-4d52-9a57-8c1e0b7d4f21")

// JournalGenerator creates balanced journal batches for vault token flows
type JournalGenerator struct {
	balanceTracker *BalanceTracker // for pre-checks
}

func NewJournalGenerator(tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{balanceTracker: tracker}
}

func (jg *JournalGenerator) newBatch(ref string, leg int, ts int64) *Batch {
	return &Batch{
		BatchID:   uuid.NewSHA1(journalNamespace, []byte(fmt.Sprintf("%s:%d", ref, leg))),
		EventRef:  ref,
		Timestamp: ts,
		Journals:  make([]Journal, 0, 1),
	}
}

func (b *Batch) add(debit, credit AccountKey, amount int64, jt JournalType) {
	idx := len(b.Journals)
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.NewSHA1(b.BatchID, []byte{byte(idx)}),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Asset:         debit.Asset,
		Amount:        amount,
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

func toAmount(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("amount %d exceeds ledger range", v)
	}
	return int64(v), nil
}

// GenerateEquityMark moves custody to effectiveEquity - borrowed against venue PnL.
// Returns nil when custody already matches.
func (jg *JournalGenerator) GenerateEquityMark(vault uuid.UUID, ref string, leg int, effectiveEquity uint64, ts int64) (*Batch, error) {
	target, err := toAmount(effectiveEquity)
	if err != nil {
		return nil, err
	}
	custody := CustodyAccount(vault)
	held := jg.balanceTracker.GetBalance(custody) + jg.balanceTracker.GetBalance(BorrowedAccount(vault))
	delta := target - held
	if delta == 0 {
		return nil, nil
	}

	batch := jg.newBatch(ref, leg, ts)
	if delta > 0 {
		// Gain: external:venue_pnl -> vault:custody
		batch.add(custody, VenuePnLAccount(vault), delta, JournalTypeEquityMark)
	} else {
		if jg.balanceTracker.GetBalance(custody) < -delta {
			return nil, fmt.Errorf("equity mark pre-check failed: loss %d exceeds custody %d", -delta, jg.balanceTracker.GetBalance(custody))
		}
		// Loss: vault:custody -> external:venue_pnl
		batch.add(VenuePnLAccount(vault), custody, -delta, JournalTypeEquityMark)
	}
	return batch, nil
}

// GenerateDeposit moves base asset from owner's wallet into custody.
func (jg *JournalGenerator) GenerateDeposit(vault uuid.UUID, owner, ref string, leg int, amount uint64, ts int64) (*Batch, error) {
	amt, err := toAmount(amount)
	if err != nil {
		return nil, err
	}
	batch := jg.newBatch(ref, leg, ts)
	batch.add(CustodyAccount(vault), WalletAccount(vault, owner), amt, JournalTypeDeposit)
	return batch, nil
}

// GenerateWithdrawal moves base asset from custody to owner's wallet.
// Pre-check: custody must cover the amount.
func (jg *JournalGenerator) GenerateWithdrawal(vault uuid.UUID, owner, ref string, leg int, amount uint64, ts int64) (*Batch, error) {
	amt, err := toAmount(amount)
	if err != nil {
		return nil, err
	}
	if err := jg.balanceTracker.ValidateSufficient(CustodyAccount(vault), amt); err != nil {
		return nil, fmt.Errorf("withdrawal pre-check failed: %w", err)
	}
	batch := jg.newBatch(ref, leg, ts)
	batch.add(WalletAccount(vault, owner), CustodyAccount(vault), amt, JournalTypeWithdrawal)
	return batch, nil
}

// GenerateBorrow moves base asset from custody to the manager's borrowed position.
func (jg *JournalGenerator) GenerateBorrow(vault uuid.UUID, ref string, leg int, amount uint64, ts int64) (*Batch, error) {
	amt, err := toAmount(amount)
	if err != nil {
		return nil, err
	}
	if err := jg.balanceTracker.ValidateSufficient(CustodyAccount(vault), amt); err != nil {
		return nil, fmt.Errorf("borrow pre-check failed: %w", err)
	}
	batch := jg.newBatch(ref, leg, ts)
	batch.add(BorrowedAccount(vault), CustodyAccount(vault), amt, JournalTypeBorrow)
	return batch, nil
}

// GenerateRepay returns borrowed base asset to custody.
func (jg *JournalGenerator) GenerateRepay(vault uuid.UUID, ref string, leg int, amount uint64, ts int64) (*Batch, error) {
	amt, err := toAmount(amount)
	if err != nil {
		return nil, err
	}
	if err := jg.balanceTracker.ValidateSufficient(BorrowedAccount(vault), amt); err != nil {
		return nil, fmt.Errorf("repay pre-check failed: %w", err)
	}
	batch := jg.newBatch(ref, leg, ts)
	batch.add(CustodyAccount(vault), BorrowedAccount(vault), amt, JournalTypeRepay)
	return batch, nil
}

// GenerateBorrowMark moves the borrowed position to newValue against venue PnL.
// Returns nil when nothing changes.
func (jg *JournalGenerator) GenerateBorrowMark(vault uuid.UUID, ref string, leg int, newValue uint64, ts int64) (*Batch, error) {
	target, err := toAmount(newValue)
	if err != nil {
		return nil, err
	}
	borrowed := BorrowedAccount(vault)
	delta := target - jg.balanceTracker.GetBalance(borrowed)
	if delta == 0 {
		return nil, nil
	}
	batch := jg.newBatch(ref, leg, ts)
	if delta > 0 {
		batch.add(borrowed, VenuePnLAccount(vault), delta, JournalTypeBorrowMark)
	} else {
		batch.add(VenuePnLAccount(vault), borrowed, -delta, JournalTypeBorrowMark)
	}
	return batch, nil
}

// GenerateWrapperMint mints tokens of wrapper to owner, one per tokenized share.
func (jg *JournalGenerator) GenerateWrapperMint(vault uuid.UUID, wrapper, owner, ref string, leg int, tokens fpmath.U128, ts int64) (*Batch, error) {
	amt, err := tokens.Int64()
	if err != nil {
		return nil, fmt.Errorf("wrapper mint %s: %w", tokens, err)
	}
	batch := jg.newBatch(ref, leg, ts)
	batch.add(WrapperBalanceAccount(vault, wrapper, owner), WrapperMintAccount(vault, wrapper), amt, JournalTypeWrapperMint)
	return batch, nil
}

// GenerateWrapperBurn burns owner's wrapper tokens.
// Pre-check: owner must hold the tokens.
func (jg *JournalGenerator) GenerateWrapperBurn(vault uuid.UUID, wrapper, owner, ref string, leg int, tokens fpmath.U128, ts int64) (*Batch, error) {
	amt, err := tokens.Int64()
	if err != nil {
		return nil, fmt.Errorf("wrapper burn %s: %w", tokens, err)
	}
	holder := WrapperBalanceAccount(vault, wrapper, owner)
	if err := jg.balanceTracker.ValidateSufficient(holder, amt); err != nil {
		return nil, fmt.Errorf("wrapper burn pre-check failed: %w", err)
	}
	batch := jg.newBatch(ref, leg, ts)
	batch.add(WrapperMintAccount(vault, wrapper), holder, amt, JournalTypeWrapperBurn)
	return batch, nil
}
