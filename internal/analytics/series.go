// Package analytics turns task records and summary statistics into the derived
// metrics and chart series shown on the lvl.ai dashboards.
//
// Every function here is pure: results depend only on the arguments, including
// the injected current instant. Calendar arithmetic uses now.Location().
package analytics

import (
	"math"
	"math/big"
	"time"
)

// Point is one {label, value} entry of a chart series.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// VelocityWeek is one bucket of the created-vs-completed series.
type VelocityWeek struct {
	Label     string `json:"label"`
	Created   int    `json:"created"`
	Completed int    `json:"completed"`
}

// round1 rounds to one decimal place using the exact binary value of x, with
// exact ties going away from zero. 29/20 is stored just below 1.45 and so
// rounds to 1.4; 0.25 is an exact tie and rounds to 0.3.
func round1(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	r := new(big.Rat).SetFloat64(math.Abs(x))
	// floor(|x|*10 + 1/2) = floor((20*num + den) / (2*den))
	num := new(big.Int).Mul(r.Num(), big.NewInt(20))
	num.Add(num, r.Denom())
	den := new(big.Int).Mul(r.Denom(), big.NewInt(2))
	n, _ := new(big.Int).Quo(num, den).Float64()
	return math.Copysign(n/10, x)
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
