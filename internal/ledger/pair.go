package ledger

import (
	"fmt"
	"strings"
)

// GetPairStr builds the canonical pair key for two ticks. Ordering is a pure
// function of the ticks themselves (lexical byte order), so
// GetPairStr(a, b) == GetPairStr(b, a). The pair key doubles as the
// synthetic tick holding LP shares and pool reserves.
func GetPairStr(tick0, tick1 string) string {
	if tick0 > tick1 {
		tick0, tick1 = tick1, tick0
	}
	return tick0 + "/" + tick1
}

// SortTicks returns the two ticks in canonical order.
func SortTicks(tick0, tick1 string) (string, string) {
	if tick0 > tick1 {
		return tick1, tick0
	}
	return tick0, tick1
}

// DecodePairStr splits a pair key back into its canonical ticks.
func DecodePairStr(pair string) (string, string, error) {
	idx := strings.IndexByte(pair, '/')
	if idx <= 0 || idx == len(pair)-1 {
		return "", "", fmt.Errorf("malformed pair key %q", pair)
	}
	return pair[:idx], pair[idx+1:], nil
}
