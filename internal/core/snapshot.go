package core

import (
	"fmt"

	"SwapLedger/internal/contract"
	"SwapLedger/internal/ledger"
	fpmath "SwapLedger/internal/math"
)

// SnapshotData is a full, self-contained, replayable copy of Space state.
// All amounts serialize as decimal strings. Created empty at module deploy,
// checkpointed at confirmation boundaries, loaded as the replay base.
type SnapshotData struct {
	ModuleID       string                                       `json:"moduleId"`
	Assets         map[ledger.AssetClass]map[string]TokenSnapshot `json:"assets"`
	AssetsCheck    string                                       `json:"assetsCheck"`
	ContractStatus ContractStatus                               `json:"contractStatus"`
	Decimals       map[string]int32                             `json:"decimals"`
}

// TokenSnapshot is one serialized balance table.
type TokenSnapshot struct {
	Balance map[string]string `json:"balance"`
	Supply  string            `json:"supply"`
}

// ContractStatus carries the per-pair reserve products.
type ContractStatus struct {
	KLast map[string]string `json:"kLast"`
}

// Snapshot serializes the full Space state. Restore(Snapshot(S)) == S for
// ledger contents, kLast and cached decimals.
func (s *Space) Snapshot() *SnapshotData {
	assets := make(map[ledger.AssetClass]map[string]TokenSnapshot, len(ledger.AllAssetClasses))
	for _, class := range ledger.AllAssetClasses {
		ticks := make(map[string]TokenSnapshot)
		for _, tick := range s.assets.Ticks(class) {
			tok := s.assets.Get(class, tick)
			balances := make(map[string]string)
			for addr, bal := range tok.Balances() {
				if bal.Sign() != 0 {
					balances[addr] = bal.String()
				}
			}
			ticks[tick] = TokenSnapshot{
				Balance: balances,
				Supply:  tok.Supply().String(),
			}
		}
		assets[class] = ticks
	}

	kLast := make(map[string]string)
	for pair, k := range s.engine.KLastPairs() {
		if k.Sign() != 0 {
			kLast[pair] = k.String()
		}
	}

	return &SnapshotData{
		ModuleID:       s.moduleID,
		Assets:         assets,
		AssetsCheck:    ComputeAssetsCheck(s.assets),
		ContractStatus: ContractStatus{KLast: kLast},
		Decimals:       s.registry.Snapshot(),
	}
}

// NewSpaceFromSnapshot rebuilds a Space from a snapshot and verifies both
// the stored supplies and the assets checksum, refusing a corrupted base.
func NewSpaceFromSnapshot(snap *SnapshotData, cfg contract.Config, registry *fpmath.Registry) (*Space, error) {
	sp := NewSpace(snap.ModuleID, cfg, registry)

	for tick, decimals := range snap.Decimals {
		registry.Set(tick, decimals)
	}

	for _, class := range ledger.AllAssetClasses {
		for tick, tokSnap := range snap.Assets[class] {
			sp.assets.TryCreate(tick)
			for addr, balStr := range tokSnap.Balance {
				bal, err := fpmath.ParseUint(balStr)
				if err != nil {
					return nil, fmt.Errorf("snapshot %s/%s/%s: %w", class, tick, addr, err)
				}
				if bal.Sign() == 0 {
					continue
				}
				if err := sp.assets.Mint(class, tick, addr, bal); err != nil {
					return nil, fmt.Errorf("snapshot %s/%s/%s: %w", class, tick, addr, err)
				}
			}

			supply, err := fpmath.ParseUint(tokSnap.Supply)
			if err != nil {
				return nil, fmt.Errorf("snapshot %s/%s supply: %w", class, tick, err)
			}
			if got := sp.assets.Supply(class, tick); got.Cmp(supply) != 0 {
				return nil, fmt.Errorf("snapshot %s/%s: stored supply %s != balance sum %s",
					class, tick, supply.String(), got.String())
			}
		}
	}

	for pair, kStr := range snap.ContractStatus.KLast {
		k, err := fpmath.ParseUint(kStr)
		if err != nil {
			return nil, fmt.Errorf("snapshot kLast %s: %w", pair, err)
		}
		sp.engine.SetKLast(pair, k)
	}

	if snap.AssetsCheck != "" {
		if check := ComputeAssetsCheck(sp.assets); check != snap.AssetsCheck {
			return nil, fmt.Errorf("snapshot assets check mismatch: stored %s, computed %s",
				snap.AssetsCheck, check)
		}
	}

	return sp, nil
}
