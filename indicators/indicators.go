// Package indicators provides the technical indicators used by the
// breakout strategies. Every function takes a bar window ordered oldest
// first and reports ok=false when the window is too short or the result
// is not finite. Callers must treat that as "no signal this bar".
package indicators

import "math"

func finite(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
