// Package baseline holds the deterministic analyzers that back every scan:
// facial symmetry, age-aware skin metrics and wrinkle zones. They do no I/O
// and cannot fail, so the fusion ladder can always fall back to them.
package baseline

import "math"

// Identifiers reported in modelsUsed for the two always-on analyzers.
const (
	SymmetryModelID = "facial_symmetry_baseline"
	WrinkleModelID  = "wrinkle_zone_baseline"
)

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// round rounds half up, matching how scores were historically reported.
func round(v float64) float64 {
	return math.Floor(v + 0.5)
}

func round1(v float64) float64 {
	return round(v*10) / 10
}
