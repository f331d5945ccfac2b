package math

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

// TickInfoFunc resolves the decimal precision for a tick from the indexer.
// Returned precision must be stable for the lifetime of the tick.
type TickInfoFunc func(ctx context.Context, tick string) (int32, error)

// Registry maps tick symbols to their fixed decimal precision and converts
// between external (human) amounts and the engine's internal integer unit.
// Scaling happens only at this boundary: everything past it is integral.
type Registry struct {
	mu       sync.RWMutex
	decimals map[string]int32
	resolve  TickInfoFunc
}

func NewRegistry(resolve TickInfoFunc) *Registry {
	return &Registry{
		decimals: make(map[string]int32),
		resolve:  resolve,
	}
}

// Set records a tick's precision directly. Used by tests and snapshots.
func (r *Registry) Set(tick string, decimals int32) {
	r.mu.Lock()
	r.decimals[tick] = decimals
	r.mu.Unlock()
}

// Snapshot returns a copy of every cached precision, for checkpointing.
func (r *Registry) Snapshot() map[string]int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int32, len(r.decimals))
	for tick, d := range r.decimals {
		out[tick] = d
	}
	return out
}

// Decimals returns the precision for tick, resolving it on first use.
func (r *Registry) Decimals(ctx context.Context, tick string) (int32, error) {
	r.mu.RLock()
	d, ok := r.decimals[tick]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	if r.resolve == nil {
		return 0, fmt.Errorf("unknown tick %q and no resolver configured", tick)
	}

	d, err := r.resolve(ctx, tick)
	if err != nil {
		return 0, fmt.Errorf("resolve decimals for %q: %w", tick, err)
	}

	r.mu.Lock()
	r.decimals[tick] = d
	r.mu.Unlock()
	return d, nil
}

// FromHuman converts an external decimal amount string into the internal
// integer unit (amount * 10^decimals). The scaled value must be a
// non-negative integer: fractional remainders are rejected, never truncated.
// Exponent notation is accepted as long as the final value is integral.
func (r *Registry) FromHuman(ctx context.Context, tick, amount string) (*big.Int, error) {
	d, err := r.Decimals(ctx, tick)
	if err != nil {
		return nil, err
	}
	return ScaleToUnits(amount, d)
}

// ToHuman converts an internal integer amount back to its external decimal
// string form.
func (r *Registry) ToHuman(ctx context.Context, tick string, units *big.Int) (string, error) {
	d, err := r.Decimals(ctx, tick)
	if err != nil {
		return "", err
	}
	return decimal.NewFromBigInt(units, -d).String(), nil
}

// ScaleToUnits scales a decimal amount string by 10^decimals and validates
// the result is a non-negative integer.
func ScaleToUnits(amount string, decimals int32) (*big.Int, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if dec.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", amount)
	}

	scaled := dec.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	return scaled.BigInt(), nil
}
