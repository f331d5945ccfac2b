package contract

import "fmt"

// Protocol constants. These are part of the reference wire behavior and
// must not change: every deployed module replays against them.
const (
	// MinimumLiquidity is permanently locked at LpBurnAddress on the first
	// deposit into a pool, preventing share-price manipulation through a
	// near-empty pool.
	MinimumLiquidity = 1000

	// LpBurnAddress receives the minimum-liquidity lock. Nothing spends
	// from it.
	LpBurnAddress = "0"

	// FeeRateDenominator fixes the protocol share of pool growth: the fee
	// recipient is minted LP worth 1/FeeRateDenominator of the growth in
	// sqrt(k) since the last liquidity operation.
	FeeRateDenominator = 6
)

// Config parameterizes the engine per module deployment.
type Config struct {
	// FeeRateBp is the swap fee in parts-per-thousand (0..999).
	FeeRateBp int64

	// FeeTo receives protocol-fee LP mints. Empty disables fee accrual.
	FeeTo string
}

func (c Config) Validate() error {
	if c.FeeRateBp < 0 || c.FeeRateBp >= 1000 {
		return fmt.Errorf("fee rate %d out of range [0,1000)", c.FeeRateBp)
	}
	return nil
}
