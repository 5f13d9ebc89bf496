package domain

import (
	"math"
	"math/big"
	"strconv"
)

// FormatFixed renders x with the given number of decimals. Exact ties round
// away from zero (2.25 -> "2.3", -2.25 -> "-2.3"), matching how the web
// client formats the same values; strconv alone would round them to even.
func FormatFixed(x float64, digits int) string {
	if x < 0 {
		return "-" + FormatFixed(-x, digits)
	}
	if x == 0 {
		x = 0 // drop the sign of -0
	}
	s := strconv.FormatFloat(x, 'f', digits, 64)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return s
	}

	scale := new(big.Float).SetPrec(256).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil))
	scaled := new(big.Float).SetPrec(256).SetFloat64(x)
	scaled.Mul(scaled, scale)

	whole, _ := scaled.Int(nil)
	frac := new(big.Float).SetPrec(256).Sub(scaled, new(big.Float).SetPrec(256).SetInt(whole))
	if frac.Cmp(big.NewFloat(0.5)) != 0 {
		return s
	}

	whole.Add(whole, big.NewInt(1))
	out := whole.String()
	if digits == 0 {
		return out
	}
	for len(out) <= digits {
		out = "0" + out
	}
	return out[:len(out)-digits] + "." + out[len(out)-digits:]
}
