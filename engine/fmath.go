package engine

import "math"

// Float helpers implementing the Wasm-specified corner cases that the
// Go math package does not match directly: NaN-propagating min/max with
// signed-zero ordering, sign-bit-exact abs/neg/copysign, and checked
// float-to-integer truncation.

func wasmMin64(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		// -0 < +0 for min
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

func wasmMax64(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		// +0 > -0 for max
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

func wasmMin32(x, y float32) float32 {
	return float32(wasmMin64(float64(x), float64(y)))
}

func wasmMax32(x, y float32) float32 {
	return float32(wasmMax64(float64(x), float64(y)))
}

// Sign-bit ops work on the raw bits so NaN payloads survive unchanged.

func absF32(v uint32) uint32 { return v &^ (1 << 31) }
func negF32(v uint32) uint32 { return v ^ (1 << 31) }
func absF64(v uint64) uint64 { return v &^ (1 << 63) }
func negF64(v uint64) uint64 { return v ^ (1 << 63) }

func copysignF32(x, y uint32) uint32 {
	return x&^(1<<31) | y&(1<<31)
}

func copysignF64(x, y uint64) uint64 {
	return x&^(1<<63) | y&(1<<63)
}

// nearest rounds to the nearest integer, ties to even.

func nearestF32(v float32) float32 {
	return float32(math.RoundToEven(float64(v)))
}

func nearestF64(v float64) float64 {
	return math.RoundToEven(v)
}

// Checked truncations. Each returns ok=false when the input is NaN or
// the truncated value falls outside the destination range; the caller
// traps.

func truncToI32(f float64) (int32, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < math.MinInt32 || t > math.MaxInt32 {
		return 0, false
	}
	return int32(t), true
}

func truncToU32(f float64) (uint32, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < 0 || t > math.MaxUint32 {
		return 0, false
	}
	return uint32(t), true
}

func truncToI64(f float64) (int64, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	t := math.Trunc(f)
	// 2^63 is exactly representable; MaxInt64 is not, so the upper
	// bound is an exclusive compare against 2^63.
	if t < math.MinInt64 || t >= 9223372036854775808.0 {
		return 0, false
	}
	return int64(t), true
}

func truncToU64(f float64) (uint64, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < 0 || t >= 18446744073709551616.0 {
		return 0, false
	}
	return uint64(t), true
}
