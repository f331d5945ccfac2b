package ledger

import (
	"fmt"
	"math/big"
	"sort"
)

// AssetClass partitions balances by why they are held, not by currency.
// A tick may hold balances under every class simultaneously.
type AssetClass string

const (
	// AssetSwap holds swappable balances, LP shares and pool reserves.
	AssetSwap AssetClass = "swap"
	// AssetPendingSwap holds deposits awaiting confirmation.
	AssetPendingSwap AssetClass = "pendingSwap"
	// AssetApprove holds balances approved for withdrawal.
	AssetApprove AssetClass = "approve"
	// AssetConditionalApprove holds conditionally-approved withdrawals that
	// may still be matched against incoming deposits.
	AssetConditionalApprove AssetClass = "conditionalApprove"
	// AssetModule holds module-custody balances.
	AssetModule AssetClass = "module"
)

// AllAssetClasses is the closed enumeration, in serialization order.
var AllAssetClasses = []AssetClass{
	AssetSwap,
	AssetPendingSwap,
	AssetApprove,
	AssetConditionalApprove,
	AssetModule,
}

// Assets is the full ledger: per-class, per-tick balance tables.
// "Does not exist" and "exists with zero balance" are equivalent for reads;
// TryCreate makes creation explicit before any mutation.
type Assets struct {
	tokens map[AssetClass]map[string]*Token
}

func NewAssets() *Assets {
	tokens := make(map[AssetClass]map[string]*Token, len(AllAssetClasses))
	for _, class := range AllAssetClasses {
		tokens[class] = make(map[string]*Token)
	}
	return &Assets{tokens: tokens}
}

// TryCreate ensures tick exists with a zero balance under every asset
// class. Idempotent.
func (a *Assets) TryCreate(tick string) {
	for _, class := range AllAssetClasses {
		if _, ok := a.tokens[class][tick]; !ok {
			a.tokens[class][tick] = NewToken(tick)
		}
	}
}

// IsExist reports whether the pool tick has been materialized under the
// swap class. Used to reject duplicate pool deployment and to route
// pool-not-found.
func (a *Assets) IsExist(pairTick string) bool {
	_, ok := a.tokens[AssetSwap][pairTick]
	return ok
}

// Get returns the token for (class, tick), or nil if never created. Callers
// on the read path treat nil as zero balances.
func (a *Assets) Get(class AssetClass, tick string) *Token {
	return a.tokens[class][tick]
}

// BalanceOf reads a balance without materializing the token.
func (a *Assets) BalanceOf(class AssetClass, tick, addr string) *big.Int {
	if tok := a.tokens[class][tick]; tok != nil {
		return tok.BalanceOf(addr)
	}
	return new(big.Int)
}

// Supply reads a token supply without materializing the token.
func (a *Assets) Supply(class AssetClass, tick string) *big.Int {
	if tok := a.tokens[class][tick]; tok != nil {
		return tok.Supply()
	}
	return new(big.Int)
}

// Mint credits under a class. The tick must have been created.
func (a *Assets) Mint(class AssetClass, tick, addr string, amount *big.Int) error {
	tok, err := a.mustGet(class, tick)
	if err != nil {
		return err
	}
	return tok.Mint(addr, amount)
}

// Burn debits under a class.
func (a *Assets) Burn(class AssetClass, tick, addr string, amount *big.Int) error {
	tok, err := a.mustGet(class, tick)
	if err != nil {
		return err
	}
	return tok.Burn(addr, amount)
}

// Transfer moves a balance between addresses within one class.
func (a *Assets) Transfer(class AssetClass, tick, from, to string, amount *big.Int) error {
	tok, err := a.mustGet(class, tick)
	if err != nil {
		return err
	}
	return tok.Transfer(from, to, amount)
}

// Convert moves a balance between asset classes: burn under fromClass,
// mint under toClass. The burn is validated first so a failure leaves both
// classes untouched; the mint cannot fail after a successful burn.
func (a *Assets) Convert(tick, fromAddr, toAddr string, amount *big.Int, fromClass, toClass AssetClass) error {
	fromTok, err := a.mustGet(fromClass, tick)
	if err != nil {
		return err
	}
	toTok, err := a.mustGet(toClass, tick)
	if err != nil {
		return err
	}
	if err := fromTok.Burn(fromAddr, amount); err != nil {
		return err
	}
	return toTok.Mint(toAddr, amount)
}

// Swap routes amountIn from addr to the pool and amountOut from the pool to
// addr, both under the swap class, via the pair key derived from the ticks.
// The input leg is validated and applied before the output leg; if the
// output leg fails the input leg is reversed so no partial state survives.
func (a *Assets) Swap(addr, tickIn, tickOut string, amountIn, amountOut *big.Int) error {
	pair := GetPairStr(tickIn, tickOut)
	if !a.IsExist(pair) {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, pair)
	}

	inTok, err := a.mustGet(AssetSwap, tickIn)
	if err != nil {
		return err
	}
	outTok, err := a.mustGet(AssetSwap, tickOut)
	if err != nil {
		return err
	}

	if err := inTok.Transfer(addr, pair, amountIn); err != nil {
		return err
	}
	if err := outTok.Transfer(pair, addr, amountOut); err != nil {
		// Roll the input leg back before surfacing the failure.
		if rbErr := inTok.Transfer(pair, addr, amountIn); rbErr != nil {
			return fmt.Errorf("swap rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	return nil
}

// Ticks returns every materialized tick under a class, sorted.
func (a *Assets) Ticks(class AssetClass) []string {
	ticks := make([]string, 0, len(a.tokens[class]))
	for tick := range a.tokens[class] {
		ticks = append(ticks, tick)
	}
	sort.Strings(ticks)
	return ticks
}

// CheckSupply verifies every token's supply invariant across all classes.
func (a *Assets) CheckSupply() error {
	for _, class := range AllAssetClasses {
		for _, tok := range a.tokens[class] {
			if err := tok.CheckSupply(); err != nil {
				return fmt.Errorf("class %s: %w", class, err)
			}
		}
	}
	return nil
}

func (a *Assets) mustGet(class AssetClass, tick string) (*Token, error) {
	tok := a.tokens[class][tick]
	if tok == nil {
		return nil, fmt.Errorf("%w: tick %s not created under class %s", ErrPoolNotFound, tick, class)
	}
	return tok, nil
}
