package domain

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRatioToDisplayIsExact(t *testing.T) {
	cases := []struct {
		fraction float64
		display  float64
	}{
		{0.235, 23.5},
		{0.1, 10},
		{0.07, 7},
		{1, 100},
		{0, 0},
	}
	for _, tc := range cases {
		if got := RatioToDisplay(tc.fraction); got != tc.display {
			t.Fatalf("RatioToDisplay(%v) = %v, want %v", tc.fraction, got, tc.display)
		}
	}
}

func TestRatioCodecRoundTripsFifteenDigitFractions(t *testing.T) {
	rng := rand.New(rand.NewSource(20240601))
	pow10 := func(n int) int64 {
		p := int64(1)
		for i := 0; i < n; i++ {
			p *= 10
		}
		return p
	}
	for i := 0; i < 100000; i++ {
		digits := 1 + rng.Intn(15)
		scale := digits + rng.Intn(6)
		mantissa := rng.Int63n(pow10(digits))
		fraction, _ := decimal.New(mantissa, -int32(scale)).Float64()
		if got := RatioToCanonical(RatioToDisplay(fraction)); got != fraction {
			t.Fatalf("round trip of %v (%d/10^%d) gave %v", fraction, mantissa, scale, got)
		}
	}
	for _, fraction := range []float64{0, 1, 0.235, 0.001, 0.999999999999999} {
		if got := RatioToCanonical(RatioToDisplay(fraction)); got != fraction {
			t.Fatalf("round trip of %v gave %v", fraction, got)
		}
	}
}

func TestParseDisplayRatio(t *testing.T) {
	for _, text := range []string{"40", " 40 ", "40%", "40.0"} {
		got, err := ParseDisplayRatio(text)
		if err != nil || got != 0.4 {
			t.Fatalf("ParseDisplayRatio(%q) = %v, %v", text, got, err)
		}
	}
	for _, text := range []string{"-1", "100.5"} {
		if _, err := ParseDisplayRatio(text); !errors.Is(err, ErrRatioOutOfRange) {
			t.Fatalf("ParseDisplayRatio(%q): expected ErrRatioOutOfRange, got %v", text, err)
		}
	}
	if _, err := ParseDisplayRatio("forty"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateRatio(t *testing.T) {
	if err := ValidateRatio(0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateRatio(1.01); !errors.Is(err, ErrRatioOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}
