package math

import (
	"context"
	"errors"
	"testing"
)

func TestScaleToUnits(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int32
		want     string
		wantErr  bool
	}{
		{"10", 18, "10000000000000000000", false},
		{"0.5", 18, "500000000000000000", false},
		{"1.5", 1, "15", false},
		{"0", 8, "0", false},
		{"1e3", 0, "1000", false},
		{"0.001", 2, "", true}, // more precision than the tick carries
		{"-1", 18, "", true},
		{"abc", 18, "", true},
	}
	for _, tc := range cases {
		got, err := ScaleToUnits(tc.amount, tc.decimals)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ScaleToUnits(%q, %d) should fail, got %s", tc.amount, tc.decimals, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ScaleToUnits(%q, %d): %v", tc.amount, tc.decimals, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ScaleToUnits(%q, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestRegistryLazyResolve(t *testing.T) {
	calls := 0
	r := NewRegistry(func(ctx context.Context, tick string) (int32, error) {
		calls++
		if tick == "ordi" {
			return 18, nil
		}
		return 0, errors.New("unknown tick")
	})

	d, err := r.Decimals(context.Background(), "ordi")
	if err != nil {
		t.Fatalf("Decimals: %v", err)
	}
	if d != 18 {
		t.Errorf("decimals = %d, want 18", d)
	}

	// Second lookup hits the cache.
	if _, err := r.Decimals(context.Background(), "ordi"); err != nil {
		t.Fatalf("cached Decimals: %v", err)
	}
	if calls != 1 {
		t.Errorf("resolver called %d times, want 1", calls)
	}

	if _, err := r.Decimals(context.Background(), "nope"); err == nil {
		t.Error("unknown tick should fail")
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry(nil)
	r.Set("ordi", 18)

	units, err := r.FromHuman(context.Background(), "ordi", "2.5")
	if err != nil {
		t.Fatalf("FromHuman: %v", err)
	}
	if units.String() != "2500000000000000000" {
		t.Errorf("units = %s", units)
	}

	human, err := r.ToHuman(context.Background(), "ordi", units)
	if err != nil {
		t.Fatalf("ToHuman: %v", err)
	}
	if human != "2.5" {
		t.Errorf("human = %s, want 2.5", human)
	}
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry(nil)
	r.Set("a", 8)
	r.Set("b", 18)

	snap := r.Snapshot()
	if len(snap) != 2 || snap["a"] != 8 || snap["b"] != 18 {
		t.Errorf("snapshot = %v", snap)
	}

	snap["a"] = 99
	d, _ := r.Decimals(context.Background(), "a")
	if d != 8 {
		t.Error("snapshot must be a copy")
	}
}
