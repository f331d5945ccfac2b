// Package projection derives read-optimized rows from rebuilt ledger state.
package projection

import (
	"strings"

	"SwapLedger/internal/core"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/persistence"
)

// CollectPools walks the swap asset class for pair ticks and flattens each
// pool into one row. Called after every successful rebuild; the store
// upserts by pair, so stale rows converge on the next pass.
func CollectPools(space *core.Space) []persistence.PoolRow {
	engine := space.Engine()
	assets := space.Assets()

	var rows []persistence.PoolRow
	for _, tick := range assets.Ticks(ledger.AssetSwap) {
		if !strings.Contains(tick, "/") {
			continue
		}
		tick0, tick1, err := ledger.DecodePairStr(tick)
		if err != nil {
			continue
		}
		r0, r1, err := engine.Reserves(tick)
		if err != nil {
			continue
		}
		rows = append(rows, persistence.PoolRow{
			Pair:     tick,
			Tick0:    tick0,
			Tick1:    tick1,
			Reserve0: r0.String(),
			Reserve1: r1.String(),
			LpSupply: engine.PoolLp(tick).String(),
			KLast:    engine.KLast(tick).String(),
		})
	}
	return rows
}
