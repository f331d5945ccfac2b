package math

import (
	"fmt"
	"math/big"
)

// Shared small constants. Never mutate these.
var (
	Zero     = big.NewInt(0)
	One      = big.NewInt(1)
	Thousand = big.NewInt(1000)
)

// NewInt returns a fresh *big.Int with the given value.
func NewInt(v int64) *big.Int {
	return big.NewInt(v)
}

// Clone returns an independent copy of v (nil-safe, nil means 0).
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Sqrt returns floor(sqrt(n)). Returns an error for negative input —
// a negative radicand always indicates a corrupted reserve product.
func Sqrt(n *big.Int) (*big.Int, error) {
	if n.Sign() < 0 {
		return nil, fmt.Errorf("sqrt of negative value %s", n.String())
	}
	return new(big.Int).Sqrt(n), nil
}

// MulDiv returns floor(a*b/den). All ledger amounts are non-negative, so
// truncating division equals round-toward-negative-infinity here, which is
// the rounding contract for every financial computation in this system.
func MulDiv(a, b, den *big.Int) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, fmt.Errorf("division by zero in %s*%s/0", a.String(), b.String())
	}
	prod := new(big.Int).Mul(a, b)
	return prod.Quo(prod, den), nil
}

// Min returns the smaller of a and b (a copy, safe to mutate).
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// ParseUint parses a non-negative integer amount from its decimal string
// form. Used when loading snapshots and persistence rows.
func ParseUint(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return v, nil
}
