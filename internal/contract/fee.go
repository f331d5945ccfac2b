package contract

import (
	"math/big"

	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
)

// GetFeeLp computes the protocol-fee LP pending for a pair: the share of
// sqrt(k) growth since the last liquidity operation. Zero when the pool is
// empty, kLast is unset, or k has not grown.
//
//	lp = poolLp * (rootK - rootKLast) / (rootK*(FeeRateDenominator-1) + rootKLast)
func (e *Engine) GetFeeLp(pair string) (*big.Int, error) {
	kLast := e.KLast(pair)
	if kLast.Sign() == 0 {
		return new(big.Int), nil
	}
	poolLp := e.assets.Supply(ledger.AssetSwap, pair)
	if poolLp.Sign() == 0 {
		return new(big.Int), nil
	}

	reserve0, reserve1, err := e.Reserves(pair)
	if err != nil {
		return nil, err
	}
	rootK, err := fpmath.Sqrt(new(big.Int).Mul(reserve0, reserve1))
	if err != nil {
		return nil, err
	}
	rootKLast, err := fpmath.Sqrt(kLast)
	if err != nil {
		return nil, err
	}
	if rootK.Cmp(rootKLast) <= 0 {
		return new(big.Int), nil
	}

	num := new(big.Int).Sub(rootK, rootKLast)
	num.Mul(num, poolLp)
	denom := new(big.Int).Mul(rootK, big.NewInt(FeeRateDenominator-1))
	denom.Add(denom, rootKLast)
	return fpmath.MulDiv(num, fpmath.One, denom)
}

// mintFee settles pending protocol fee before a liquidity-affecting
// operation mutates the reserves. Fee-on-growth rather than fee-per-swap:
// swaps stay mint-free and the growth is collected here.
func (e *Engine) mintFee(pair string) error {
	if e.cfg.FeeTo == "" {
		return nil
	}
	lp, err := e.GetFeeLp(pair)
	if err != nil {
		return err
	}
	if lp.Sign() <= 0 {
		return nil
	}
	return e.assets.Mint(ledger.AssetSwap, pair, e.cfg.FeeTo, lp)
}
