package quote

import "math"

// Round2 rounds to two decimals, half away from zero. A tiny epsilon is
// added before rounding so values like 12.005*3 land on 36.02 instead of
// falling victim to binary float representation (36.014999...).
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return -Round2(-v)
	}
	return math.Floor(v*100+0.5+1e-9) / 100
}
