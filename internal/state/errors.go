package state

import (
	"errors"
	"fmt"

	fpmath "VaultLedger/internal/math"
)

// ErrorKind classifies a rejection so callers can decide how to surface it.
type ErrorKind uint8

const (
	KindValidation ErrorKind = iota
	KindInvariant
	KindPolicy
	KindPermission
	KindArithmetic
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvariant:
		return "invariant"
	case KindPolicy:
		return "policy"
	case KindPermission:
		return "permission"
	case KindArithmetic:
		return "arithmetic"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// ErrorCode identifies a specific rule.
type ErrorCode uint16

const (
	CodeInvalidDepositAmount ErrorCode = iota + 1
	CodeInvalidVaultSharesDetected
	CodeInsufficientVaultShares
	CodeInvalidFeeUpdate
	CodeInvalidTimelockDuration
	CodeVaultWithdrawRequestInProgress
	CodeCannotWithdrawBeforeRedeemPeriodEnd
	CodeInvalidVaultWithdraw
	CodeInvalidVaultWithdrawSize
	CodeVaultIsAtCapacity
	CodeInvalidVaultForNewDepositors
	CodeInvalidVaultUpdate
	CodeInvalidVaultInitialization
	CodeVaultClassNotTrusted
	CodeInvalidBorrowAmount
	CodeInvalidRepayAmount
	CodeOutstandingBorrow
	CodePermissionDenied
	CodeMathError
	CodeFeeUpdateMissing
	CodeFeeUpdateExists
	CodeVaultExists
	CodeDepositorExists
	CodeTokenizedDepositorExists
	CodeInsufficientWrapperTokens
	CodeSharesBaseMismatch
	CodeFuelSeasonNotFlushed
	CodeFuelCounterRegressed
	CodeStaleTimestamp
	CodeBatchTooLarge
	CodeVaultNotFound
	CodeDepositorNotFound
	CodeProtocolNotFound
	CodeTokenizedDepositorNotFound
	CodeLedgerRejected
	CodeInvalidCommand
)

var codeNames = map[ErrorCode]string{
	CodeInvalidDepositAmount:                "InvalidDepositAmount",
	CodeInvalidVaultSharesDetected:          "InvalidVaultSharesDetected",
	CodeInsufficientVaultShares:             "InsufficientVaultShares",
	CodeInvalidFeeUpdate:                    "InvalidFeeUpdate",
	CodeInvalidTimelockDuration:             "InvalidTimelockDuration",
	CodeVaultWithdrawRequestInProgress:      "VaultWithdrawRequestInProgress",
	CodeCannotWithdrawBeforeRedeemPeriodEnd: "CannotWithdrawBeforeRedeemPeriodEnd",
	CodeInvalidVaultWithdraw:                "InvalidVaultWithdraw",
	CodeInvalidVaultWithdrawSize:            "InvalidVaultWithdrawSize",
	CodeVaultIsAtCapacity:                   "VaultIsAtCapacity",
	CodeInvalidVaultForNewDepositors:        "InvalidVaultForNewDepositors",
	CodeInvalidVaultUpdate:                  "InvalidVaultUpdate",
	CodeInvalidVaultInitialization:          "InvalidVaultInitialization",
	CodeVaultClassNotTrusted:                "VaultClassNotTrusted",
	CodeInvalidBorrowAmount:                 "InvalidBorrowAmount",
	CodeInvalidRepayAmount:                  "InvalidRepayAmount",
	CodeOutstandingBorrow:                   "OutstandingBorrow",
	CodePermissionDenied:                    "PermissionDenied",
	CodeMathError:                           "MathError",
	CodeFeeUpdateMissing:                    "FeeUpdateMissing",
	CodeFeeUpdateExists:                     "FeeUpdateExists",
	CodeVaultExists:                         "VaultExists",
	CodeDepositorExists:                     "DepositorExists",
	CodeTokenizedDepositorExists:            "TokenizedDepositorExists",
	CodeInsufficientWrapperTokens:           "InsufficientWrapperTokens",
	CodeSharesBaseMismatch:                  "SharesBaseMismatch",
	CodeFuelSeasonNotFlushed:                "FuelSeasonNotFlushed",
	CodeFuelCounterRegressed:                "FuelCounterRegressed",
	CodeStaleTimestamp:                      "StaleTimestamp",
	CodeBatchTooLarge:                       "BatchTooLarge",
	CodeVaultNotFound:                       "VaultNotFound",
	CodeDepositorNotFound:                   "DepositorNotFound",
	CodeProtocolNotFound:                    "ProtocolNotFound",
	CodeTokenizedDepositorNotFound:          "TokenizedDepositorNotFound",
	CodeLedgerRejected:                      "LedgerRejected",
	CodeInvalidCommand:                      "InvalidCommand",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", uint16(c))
}

// Error is a typed rejection. Two Errors match under errors.Is when their codes match,
// so the sentinels below can be compared against errors carrying a detail message.
type Error struct {
	Code ErrorCode
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy of e carrying a formatted detail message.
func (e *Error) With(format string, args ...interface{}) *Error {
	return &Error{Code: e.Code, Kind: e.Kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Code: e.Code, Kind: e.Kind, Msg: e.Msg, Err: err}
}

var (
	ErrInvalidDepositAmount                = &Error{Code: CodeInvalidDepositAmount, Kind: KindValidation}
	ErrInvalidVaultSharesDetected          = &Error{Code: CodeInvalidVaultSharesDetected, Kind: KindInvariant}
	ErrInsufficientVaultShares             = &Error{Code: CodeInsufficientVaultShares, Kind: KindPolicy}
	ErrInvalidFeeUpdate                    = &Error{Code: CodeInvalidFeeUpdate, Kind: KindPolicy}
	ErrInvalidTimelockDuration             = &Error{Code: CodeInvalidTimelockDuration, Kind: KindPolicy}
	ErrVaultWithdrawRequestInProgress      = &Error{Code: CodeVaultWithdrawRequestInProgress, Kind: KindPolicy}
	ErrCannotWithdrawBeforeRedeemPeriodEnd = &Error{Code: CodeCannotWithdrawBeforeRedeemPeriodEnd, Kind: KindPolicy}
	ErrInvalidVaultWithdraw                = &Error{Code: CodeInvalidVaultWithdraw, Kind: KindPolicy}
	ErrInvalidVaultWithdrawSize            = &Error{Code: CodeInvalidVaultWithdrawSize, Kind: KindValidation}
	ErrVaultIsAtCapacity                   = &Error{Code: CodeVaultIsAtCapacity, Kind: KindPolicy}
	ErrInvalidVaultForNewDepositors        = &Error{Code: CodeInvalidVaultForNewDepositors, Kind: KindInvariant}
	ErrInvalidVaultUpdate                  = &Error{Code: CodeInvalidVaultUpdate, Kind: KindPolicy}
	ErrInvalidVaultInitialization          = &Error{Code: CodeInvalidVaultInitialization, Kind: KindValidation}
	ErrVaultClassNotTrusted                = &Error{Code: CodeVaultClassNotTrusted, Kind: KindPolicy}
	ErrInvalidBorrowAmount                 = &Error{Code: CodeInvalidBorrowAmount, Kind: KindValidation}
	ErrInvalidRepayAmount                  = &Error{Code: CodeInvalidRepayAmount, Kind: KindValidation}
	ErrOutstandingBorrow                   = &Error{Code: CodeOutstandingBorrow, Kind: KindPolicy}
	ErrPermissionDenied                    = &Error{Code: CodePermissionDenied, Kind: KindPermission}
	ErrMath                                = &Error{Code: CodeMathError, Kind: KindArithmetic}
	ErrFeeUpdateMissing                    = &Error{Code: CodeFeeUpdateMissing, Kind: KindNotFound}
	ErrFeeUpdateExists                     = &Error{Code: CodeFeeUpdateExists, Kind: KindInvariant}
	ErrVaultExists                         = &Error{Code: CodeVaultExists, Kind: KindInvariant}
	ErrDepositorExists                     = &Error{Code: CodeDepositorExists, Kind: KindInvariant}
	ErrTokenizedDepositorExists            = &Error{Code: CodeTokenizedDepositorExists, Kind: KindInvariant}
	ErrInsufficientWrapperTokens           = &Error{Code: CodeInsufficientWrapperTokens, Kind: KindPolicy}
	ErrSharesBaseMismatch                  = &Error{Code: CodeSharesBaseMismatch, Kind: KindInvariant}
	ErrFuelSeasonNotFlushed                = &Error{Code: CodeFuelSeasonNotFlushed, Kind: KindPolicy}
	ErrFuelCounterRegressed                = &Error{Code: CodeFuelCounterRegressed, Kind: KindInvariant}
	ErrStaleTimestamp                      = &Error{Code: CodeStaleTimestamp, Kind: KindValidation}
	ErrBatchTooLarge                       = &Error{Code: CodeBatchTooLarge, Kind: KindValidation}
	ErrVaultNotFound                       = &Error{Code: CodeVaultNotFound, Kind: KindNotFound}
	ErrDepositorNotFound                   = &Error{Code: CodeDepositorNotFound, Kind: KindNotFound}
	ErrProtocolNotFound                    = &Error{Code: CodeProtocolNotFound, Kind: KindNotFound}
	ErrTokenizedDepositorNotFound          = &Error{Code: CodeTokenizedDepositorNotFound, Kind: KindNotFound}
	ErrLedgerRejected                      = &Error{Code: CodeLedgerRejected, Kind: KindPolicy}
	ErrInvalidCommand                      = &Error{Code: CodeInvalidCommand, Kind: KindValidation}
)

// mathErr wraps an arithmetic failure from the fixed-point package.
func mathErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeMathError, Kind: KindArithmetic, Msg: op, Err: err}
}

// KindOf reports the kind of err, or false when err is not a ledger rejection.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	if errors.Is(err, fpmath.ErrOverflow) || errors.Is(err, fpmath.ErrUnderflow) || errors.Is(err, fpmath.ErrDivisionByZero) {
		return KindArithmetic, true
	}
	return 0, false
}

// CodeOf returns the rule name of err for metrics and API responses, "Internal" when err
// is not a typed rejection.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code.String()
	}
	if _, ok := KindOf(err); ok {
		return CodeMathError.String()
	}
	return "Internal"
}
