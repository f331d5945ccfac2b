package contract

import (
	"fmt"
	"math/big"

	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
)

// ExactType selects which side of a swap is fixed.
type ExactType string

const (
	ExactIn  ExactType = "exactIn"
	ExactOut ExactType = "exactOut"
)

// Engine is the constant-product AMM state machine. Every operation is a
// pure function of (ledger, kLast, config) apart from the ledger mutation
// itself: no I/O, no clocks, no randomness. The replay layer depends on
// that determinism.
type Engine struct {
	assets *ledger.Assets
	kLast  map[string]*big.Int
	cfg    Config
}

func NewEngine(assets *ledger.Assets, cfg Config) *Engine {
	return &Engine{
		assets: assets,
		kLast:  make(map[string]*big.Int),
		cfg:    cfg,
	}
}

// Assets exposes the underlying ledger for the dispatch and query layers.
func (e *Engine) Assets() *ledger.Assets { return e.assets }

// KLast returns the recorded reserve product for a pair (zero if unset).
func (e *Engine) KLast(pair string) *big.Int {
	if k, ok := e.kLast[pair]; ok {
		return new(big.Int).Set(k)
	}
	return new(big.Int)
}

// SetKLast restores a recorded reserve product. Used by snapshot restore.
func (e *Engine) SetKLast(pair string, k *big.Int) {
	e.kLast[pair] = new(big.Int).Set(k)
}

// KLastPairs returns every pair with a recorded product, for serialization.
func (e *Engine) KLastPairs() map[string]*big.Int {
	out := make(map[string]*big.Int, len(e.kLast))
	for pair, k := range e.kLast {
		out[pair] = new(big.Int).Set(k)
	}
	return out
}

// DeployPool materializes the pair tick for (tick0, tick1). No reserves are
// moved; the first AddLiq funds the pool.
func (e *Engine) DeployPool(tick0, tick1 string) error {
	if tick0 == tick1 {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicateTick, tick0)
	}
	pair := ledger.GetPairStr(tick0, tick1)
	if e.assets.IsExist(pair) {
		return fmt.Errorf("%w: %s", ledger.ErrPoolExisted, pair)
	}
	e.assets.TryCreate(tick0)
	e.assets.TryCreate(tick1)
	e.assets.TryCreate(pair)
	return nil
}

// AddLiqParams carries a liquidity deposit request. Ticks and amounts are
// canonicalized together before any check.
type AddLiqParams struct {
	Tick0      string
	Tick1      string
	Amount0    *big.Int
	Amount1    *big.Int
	ExpectLp   *big.Int
	SlippageBp int64
	Address    string
}

// AddLiq deposits liquidity and mints LP shares.
func (e *Engine) AddLiq(p AddLiqParams) (*big.Int, error) {
	if p.Tick0 > p.Tick1 {
		p.Tick0, p.Tick1 = p.Tick1, p.Tick0
		p.Amount0, p.Amount1 = p.Amount1, p.Amount0
	}
	if err := validateAmount(p.Amount0); err != nil {
		return nil, err
	}
	if err := validateAmount(p.Amount1); err != nil {
		return nil, err
	}
	if p.ExpectLp == nil || p.ExpectLp.Sign() < 0 {
		return nil, fmt.Errorf("%w: expect lp %s", ledger.ErrInvalidAmount, str(p.ExpectLp))
	}
	if err := validateSlippage(p.SlippageBp); err != nil {
		return nil, err
	}

	pair := ledger.GetPairStr(p.Tick0, p.Tick1)
	if !e.assets.IsExist(pair) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrPoolNotFound, pair)
	}

	if err := e.mintFee(pair); err != nil {
		return nil, err
	}

	poolLp := e.assets.Supply(ledger.AssetSwap, pair)
	reserve0 := e.assets.BalanceOf(ledger.AssetSwap, p.Tick0, pair)
	reserve1 := e.assets.BalanceOf(ledger.AssetSwap, p.Tick1, pair)

	var lp, use0, use1 *big.Int

	if poolLp.Sign() == 0 {
		// First deposit: shares from the geometric mean, minus the
		// permanently locked minimum liquidity.
		root, err := fpmath.Sqrt(new(big.Int).Mul(p.Amount0, p.Amount1))
		if err != nil {
			return nil, err
		}
		lp = root.Sub(root, big.NewInt(MinimumLiquidity))
		if lp.Sign() <= 0 {
			return nil, fmt.Errorf("%w: initial deposit below minimum liquidity", ledger.ErrInvalidAmount)
		}
		use0, use1 = p.Amount0, p.Amount1
	} else {
		// Subsequent deposit: the reserve ratio caps the consumed amounts.
		amount1Adjust, err := fpmath.MulDiv(p.Amount0, reserve1, reserve0)
		if err != nil {
			return nil, err
		}
		if amount1Adjust.Cmp(p.Amount1) <= 0 {
			use0, use1 = p.Amount0, amount1Adjust
		} else {
			amount0Adjust, err := fpmath.MulDiv(p.Amount1, reserve0, reserve1)
			if err != nil {
				return nil, err
			}
			use0, use1 = amount0Adjust, p.Amount1
		}
		if use0.Cmp(p.Amount0) != 0 && use1.Cmp(p.Amount1) != 0 {
			return nil, fmt.Errorf("add liquidity: neither requested amount fully consumed (%s/%s of %s/%s)",
				use0, use1, p.Amount0, p.Amount1)
		}

		lp0, err := fpmath.MulDiv(use0, poolLp, reserve0)
		if err != nil {
			return nil, err
		}
		lp1, err := fpmath.MulDiv(use1, poolLp, reserve1)
		if err != nil {
			return nil, err
		}
		// The stricter of the two proportional mints: never overmint on a
		// non-exactly-proportional deposit.
		lp = fpmath.Min(lp0, lp1)
		if lp.Sign() <= 0 {
			return nil, fmt.Errorf("%w: deposit too small to mint lp", ledger.ErrInvalidAmount)
		}
	}

	if err := checkMinOutcome(lp, p.ExpectLp, p.SlippageBp); err != nil {
		return nil, err
	}

	if err := e.assets.Transfer(ledger.AssetSwap, p.Tick0, p.Address, pair, use0); err != nil {
		return nil, err
	}
	if err := e.assets.Transfer(ledger.AssetSwap, p.Tick1, p.Address, pair, use1); err != nil {
		// Reverse the first leg so a one-sided balance shortfall leaves the
		// ledger untouched.
		if rbErr := e.assets.Transfer(ledger.AssetSwap, p.Tick0, pair, p.Address, use0); rbErr != nil {
			return nil, fmt.Errorf("add liquidity rollback failed: %v (original: %w)", rbErr, err)
		}
		return nil, err
	}
	if poolLp.Sign() == 0 {
		if err := e.assets.Mint(ledger.AssetSwap, pair, LpBurnAddress, big.NewInt(MinimumLiquidity)); err != nil {
			return nil, err
		}
	}
	if err := e.assets.Mint(ledger.AssetSwap, pair, p.Address, lp); err != nil {
		return nil, err
	}

	e.updateKLast(pair, p.Tick0, p.Tick1)
	return lp, nil
}

// RemoveLiqParams carries a liquidity withdrawal request.
type RemoveLiqParams struct {
	Tick0      string
	Tick1      string
	Lp         *big.Int
	MinAmount0 *big.Int
	MinAmount1 *big.Int
	SlippageBp int64
	Address    string
}

// RemoveLiq burns LP shares and pays out the proportional reserves.
func (e *Engine) RemoveLiq(p RemoveLiqParams) (*big.Int, *big.Int, error) {
	if p.Tick0 > p.Tick1 {
		p.Tick0, p.Tick1 = p.Tick1, p.Tick0
		p.MinAmount0, p.MinAmount1 = p.MinAmount1, p.MinAmount0
	}
	if err := validateAmount(p.Lp); err != nil {
		return nil, nil, err
	}
	if p.MinAmount0 == nil || p.MinAmount0.Sign() < 0 || p.MinAmount1 == nil || p.MinAmount1.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: negative min amount", ledger.ErrInvalidAmount)
	}
	if err := validateSlippage(p.SlippageBp); err != nil {
		return nil, nil, err
	}

	pair := ledger.GetPairStr(p.Tick0, p.Tick1)
	if !e.assets.IsExist(pair) {
		return nil, nil, fmt.Errorf("%w: %s", ledger.ErrPoolNotFound, pair)
	}

	if err := e.mintFee(pair); err != nil {
		return nil, nil, err
	}

	poolLp := e.assets.Supply(ledger.AssetSwap, pair)
	if poolLp.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: %s has no liquidity", ledger.ErrInsufficientLiquidity, pair)
	}
	reserve0 := e.assets.BalanceOf(ledger.AssetSwap, p.Tick0, pair)
	reserve1 := e.assets.BalanceOf(ledger.AssetSwap, p.Tick1, pair)

	acquire0, err := fpmath.MulDiv(p.Lp, reserve0, poolLp)
	if err != nil {
		return nil, nil, err
	}
	acquire1, err := fpmath.MulDiv(p.Lp, reserve1, poolLp)
	if err != nil {
		return nil, nil, err
	}

	if err := checkMinOutcome(acquire0, p.MinAmount0, p.SlippageBp); err != nil {
		return nil, nil, err
	}
	if err := checkMinOutcome(acquire1, p.MinAmount1, p.SlippageBp); err != nil {
		return nil, nil, err
	}

	if err := e.assets.Burn(ledger.AssetSwap, pair, p.Address, p.Lp); err != nil {
		return nil, nil, err
	}
	if acquire0.Sign() > 0 {
		if err := e.assets.Transfer(ledger.AssetSwap, p.Tick0, pair, p.Address, acquire0); err != nil {
			return nil, nil, err
		}
	}
	if acquire1.Sign() > 0 {
		if err := e.assets.Transfer(ledger.AssetSwap, p.Tick1, pair, p.Address, acquire1); err != nil {
			return nil, nil, err
		}
	}

	e.updateKLast(pair, p.Tick0, p.Tick1)
	return acquire0, acquire1, nil
}

// SwapParams carries a swap request.
type SwapParams struct {
	TickIn     string
	TickOut    string
	Amount     *big.Int
	ExactType  ExactType
	Expect     *big.Int
	SlippageBp int64
	Address    string
}

// Swap executes a constant-product trade. kLast is read, never written,
// during swaps: fee growth is settled at the next liquidity operation.
func (e *Engine) Swap(p SwapParams) (amountIn, amountOut *big.Int, err error) {
	if err := validateAmount(p.Amount); err != nil {
		return nil, nil, err
	}
	if p.Expect == nil || p.Expect.Sign() < 0 {
		return nil, nil, fmt.Errorf("%w: expect %s", ledger.ErrInvalidAmount, str(p.Expect))
	}
	if err := validateSlippage(p.SlippageBp); err != nil {
		return nil, nil, err
	}

	pair := ledger.GetPairStr(p.TickIn, p.TickOut)
	if !e.assets.IsExist(pair) {
		return nil, nil, fmt.Errorf("%w: %s", ledger.ErrPoolNotFound, pair)
	}

	reserveIn := e.assets.BalanceOf(ledger.AssetSwap, p.TickIn, pair)
	reserveOut := e.assets.BalanceOf(ledger.AssetSwap, p.TickOut, pair)
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ledger.ErrInsufficientLiquidity, pair)
	}

	switch p.ExactType {
	case ExactIn:
		amountIn = p.Amount
		amountOut, err = e.GetAmountOut(amountIn, reserveIn, reserveOut)
		if err != nil {
			return nil, nil, err
		}
		if amountOut.Sign() <= 0 {
			return nil, nil, fmt.Errorf("%w: trade yields nothing", ledger.ErrInsufficientLiquidity)
		}
		// amountOut >= expect * 1000 / (1000 + slippage)
		threshold, thErr := fpmath.MulDiv(p.Expect, fpmath.Thousand, big.NewInt(1000+p.SlippageBp))
		if thErr != nil {
			return nil, nil, thErr
		}
		if amountOut.Cmp(threshold) < 0 {
			return nil, nil, fmt.Errorf("%w: out %s below %s", ledger.ErrExceedingSlippage, amountOut, threshold)
		}

	case ExactOut:
		amountOut = p.Amount
		if amountOut.Cmp(reserveOut) >= 0 {
			return nil, nil, fmt.Errorf("%w: requested %s of reserve %s", ledger.ErrInsufficientLiquidity, amountOut, reserveOut)
		}
		amountIn, err = e.GetAmountIn(amountOut, reserveIn, reserveOut)
		if err != nil {
			return nil, nil, err
		}
		// amountIn <= expect * (1000 + slippage) / 1000
		threshold, thErr := fpmath.MulDiv(p.Expect, big.NewInt(1000+p.SlippageBp), fpmath.Thousand)
		if thErr != nil {
			return nil, nil, thErr
		}
		if amountIn.Cmp(threshold) > 0 {
			return nil, nil, fmt.Errorf("%w: in %s above %s", ledger.ErrExceedingSlippage, amountIn, threshold)
		}

	default:
		return nil, nil, fmt.Errorf("unknown exact type %q", p.ExactType)
	}

	if err := e.assets.Swap(p.Address, p.TickIn, p.TickOut, amountIn, amountOut); err != nil {
		return nil, nil, err
	}
	return amountIn, amountOut, nil
}

// GetAmountOut computes the constant-product output for a given input,
// after the swap fee, rounded down.
func (e *Engine) GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(1000-e.cfg.FeeRateBp))
	denom := new(big.Int).Mul(reserveIn, fpmath.Thousand)
	denom.Add(denom, amountInWithFee)
	return fpmath.MulDiv(amountInWithFee, reserveOut, denom)
}

// GetAmountIn computes the input required for a given output. The trailing
// +1 covers integer truncation so the pool never loses value to rounding.
func (e *Engine) GetAmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: output %s exceeds reserve %s", ledger.ErrInsufficientLiquidity, amountOut, reserveOut)
	}
	num := new(big.Int).Mul(reserveIn, amountOut)
	num.Mul(num, fpmath.Thousand)
	denom := new(big.Int).Sub(reserveOut, amountOut)
	denom.Mul(denom, big.NewInt(1000-e.cfg.FeeRateBp))
	in, err := fpmath.MulDiv(num, fpmath.One, denom)
	if err != nil {
		return nil, err
	}
	return in.Add(in, fpmath.One), nil
}

// Send is a plain balance transfer under the swap class.
func (e *Engine) Send(tick, from, to string, amount *big.Int) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	return e.assets.Transfer(ledger.AssetSwap, tick, from, to, amount)
}

// Reserves returns the pool's reserves in canonical tick order.
func (e *Engine) Reserves(pair string) (*big.Int, *big.Int, error) {
	tick0, tick1, err := ledger.DecodePairStr(pair)
	if err != nil {
		return nil, nil, err
	}
	return e.assets.BalanceOf(ledger.AssetSwap, tick0, pair),
		e.assets.BalanceOf(ledger.AssetSwap, tick1, pair), nil
}

// PoolLp returns the LP share supply for a pair.
func (e *Engine) PoolLp(pair string) *big.Int {
	return e.assets.Supply(ledger.AssetSwap, pair)
}

func (e *Engine) updateKLast(pair, tick0, tick1 string) {
	r0 := e.assets.BalanceOf(ledger.AssetSwap, tick0, pair)
	r1 := e.assets.BalanceOf(ledger.AssetSwap, tick1, pair)
	e.kLast[pair] = new(big.Int).Mul(r0, r1)
}

func validateAmount(v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ledger.ErrInvalidAmount, str(v))
	}
	return nil
}

func validateSlippage(bp int64) error {
	if bp < 0 || bp > 1000 {
		return fmt.Errorf("%w: %d not in [0,1000]", ledger.ErrInvalidSlippage, bp)
	}
	return nil
}

// checkMinOutcome enforces actual >= expect*(1000-slippage)/1000.
func checkMinOutcome(actual, expect *big.Int, slippageBp int64) error {
	threshold, err := fpmath.MulDiv(expect, big.NewInt(1000-slippageBp), fpmath.Thousand)
	if err != nil {
		return err
	}
	if actual.Cmp(threshold) < 0 {
		return fmt.Errorf("%w: got %s, floor %s", ledger.ErrExceedingSlippage, actual, threshold)
	}
	return nil
}

func str(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
