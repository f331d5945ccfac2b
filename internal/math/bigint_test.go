package math

import (
	"math/big"
	"testing"
)

func TestSqrtFloors(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1"},
		{"3", "1"},
		{"4", "2"},
		{"99", "9"},
		{"100", "10"},
		// sqrt(5e44) floors to the canonical first-deposit share count.
		{"500000000000000000000000000000000000000000000", "22360679774997896964091"},
	}
	for _, tc := range cases {
		n, _ := new(big.Int).SetString(tc.in, 10)
		got, err := Sqrt(n)
		if err != nil {
			t.Fatalf("Sqrt(%s): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Errorf("Sqrt(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestSqrtNegative(t *testing.T) {
	if _, err := Sqrt(big.NewInt(-1)); err == nil {
		t.Error("Sqrt(-1) should fail")
	}
}

func TestMulDivFloors(t *testing.T) {
	got, err := MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2))
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	if got.Int64() != 10 {
		t.Errorf("MulDiv(7,3,2) = %d, want 10", got.Int64())
	}
}

func TestMulDivZeroDenominator(t *testing.T) {
	if _, err := MulDiv(One, One, Zero); err == nil {
		t.Error("MulDiv by zero should fail")
	}
}

func TestMinReturnsCopy(t *testing.T) {
	a, b := big.NewInt(5), big.NewInt(9)
	m := Min(a, b)
	if m.Int64() != 5 {
		t.Fatalf("Min(5,9) = %d", m.Int64())
	}
	m.SetInt64(100)
	if a.Int64() != 5 {
		t.Error("Min must not alias its argument")
	}
}

func TestParseUint(t *testing.T) {
	if _, err := ParseUint("123456789012345678901234567890"); err != nil {
		t.Errorf("large decimal should parse: %v", err)
	}
	for _, bad := range []string{"", "-1", "1.5", "abc", "0x10"} {
		if _, err := ParseUint(bad); err == nil {
			t.Errorf("ParseUint(%q) should fail", bad)
		}
	}
}
