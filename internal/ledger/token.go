package ledger

import (
	"fmt"
	"math/big"
	"sort"
)

// Token is a single fungible balance table: one tick, one balance per
// address, and the running supply. Supply is maintained incrementally on
// every mint/burn so it always equals the sum of all balances.
type Token struct {
	Tick     string
	balances map[string]*big.Int
	supply   *big.Int
}

func NewToken(tick string) *Token {
	return &Token{
		Tick:     tick,
		balances: make(map[string]*big.Int),
		supply:   new(big.Int),
	}
}

// BalanceOf returns the balance for addr. Absent entries read as zero
// without materializing anything. The returned value is a copy.
func (t *Token) BalanceOf(addr string) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Supply returns the total supply (a copy).
func (t *Token) Supply() *big.Int {
	return new(big.Int).Set(t.supply)
}

// Transfer moves amount from one address to another. Both updates happen or
// neither: validation completes before any balance is touched.
func (t *Token) Transfer(from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: transfer %s %s", ErrInvalidAmount, t.Tick, str(amount))
	}
	fromBal := t.balances[from]
	if fromBal == nil || fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, need %s",
			ErrInsufficientBalance, from, str(fromBal), t.Tick, amount.String())
	}

	t.balances[from] = new(big.Int).Sub(fromBal, amount)
	t.credit(to, amount)
	return nil
}

// Mint credits addr and increases supply.
func (t *Token) Mint(addr string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: mint %s %s", ErrInvalidAmount, t.Tick, str(amount))
	}
	t.credit(addr, amount)
	t.supply = new(big.Int).Add(t.supply, amount)
	return nil
}

// Burn debits addr and decreases supply.
func (t *Token) Burn(addr string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: burn %s %s", ErrInvalidAmount, t.Tick, str(amount))
	}
	bal := t.balances[addr]
	if bal == nil || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, burn %s",
			ErrInsufficientBalance, addr, str(bal), t.Tick, amount.String())
	}

	t.balances[addr] = new(big.Int).Sub(bal, amount)
	t.supply = new(big.Int).Sub(t.supply, amount)
	return nil
}

// Holders returns all addresses with a non-zero balance, sorted for
// deterministic iteration.
func (t *Token) Holders() []string {
	holders := make([]string, 0, len(t.balances))
	for addr, bal := range t.balances {
		if bal.Sign() > 0 {
			holders = append(holders, addr)
		}
	}
	sort.Strings(holders)
	return holders
}

// Balances returns a copy of the full balance table, zero entries included.
func (t *Token) Balances() map[string]*big.Int {
	out := make(map[string]*big.Int, len(t.balances))
	for addr, bal := range t.balances {
		out[addr] = new(big.Int).Set(bal)
	}
	return out
}

// CheckSupply verifies supply == Σ balances and that no balance is negative.
func (t *Token) CheckSupply() error {
	sum := new(big.Int)
	for addr, bal := range t.balances {
		if bal.Sign() < 0 {
			return fmt.Errorf("tick %s: negative balance %s for %s", t.Tick, bal.String(), addr)
		}
		sum.Add(sum, bal)
	}
	if sum.Cmp(t.supply) != 0 {
		return fmt.Errorf("tick %s: supply %s != balance sum %s", t.Tick, t.supply.String(), sum.String())
	}
	return nil
}

func (t *Token) credit(addr string, amount *big.Int) {
	if cur, ok := t.balances[addr]; ok {
		t.balances[addr] = new(big.Int).Add(cur, amount)
		return
	}
	t.balances[addr] = new(big.Int).Set(amount)
}

func str(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
