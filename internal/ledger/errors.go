package ledger

import "errors"

// Financial-rule errors. The API layer maps these to stable external codes,
// so each kind must stay distinguishable via errors.Is.
var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidSlippage       = errors.New("invalid slippage")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrDuplicateTick         = errors.New("duplicate tick")
	ErrPoolExisted           = errors.New("pool existed")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrExceedingSlippage     = errors.New("exceeding slippage tolerance")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// IsFinancialRuleError reports whether err is one of the financial-rule
// failures that invalidate a single contract call without aborting its
// sibling calls in the same commit.
func IsFinancialRuleError(err error) bool {
	for _, e := range []error{
		ErrInvalidAmount,
		ErrInvalidSlippage,
		ErrInsufficientBalance,
		ErrDuplicateTick,
		ErrPoolExisted,
		ErrPoolNotFound,
		ErrExceedingSlippage,
		ErrInsufficientLiquidity,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
