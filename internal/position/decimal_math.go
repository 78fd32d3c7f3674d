package position

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	decHundred = decimal.NewFromInt(100)
	decZero    = decimal.Zero
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

// offset moves dist away from entry: toward profit when favorable, toward the stop otherwise.
func offset(side Side, entry, dist float64, favorable bool) float64 {
	e, d := decFromFloat(entry), decFromFloat(dist)
	if (side == SideLong) == favorable {
		return decToFloat(e.Add(d))
	}
	return decToFloat(e.Sub(d))
}

// between returns entry + frac*(target-entry).
func between(entry, target, frac float64) float64 {
	e := decFromFloat(entry)
	return decToFloat(e.Add(decFromFloat(target).Sub(e).Mul(decFromFloat(frac))))
}

func pnlPercent(side Side, entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	e, p := decFromFloat(entry), decFromFloat(price)
	diff := p.Sub(e)
	if side == SideShort {
		diff = e.Sub(p)
	}
	return decToFloat(diff.Div(e).Mul(decHundred).Round(6))
}

func targetHit(side Side, price, target float64) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	if side == SideShort {
		return decimalCompare(price, target) <= 0
	}
	return decimalCompare(price, target) >= 0
}

func hitStopLoss(side Side, price, stop float64) bool {
	if price <= 0 || stop <= 0 {
		return false
	}
	if side == SideShort {
		return decimalCompare(price, stop) >= 0
	}
	return decimalCompare(price, stop) <= 0
}

func absDiff(a, b float64) float64 {
	return decToFloat(decFromFloat(a).Sub(decFromFloat(b)).Abs())
}

func units(stake, entry float64) float64 {
	if stake <= 0 || entry <= 0 {
		return 0
	}
	return decToFloat(decFromFloat(stake).Div(decFromFloat(entry)).Round(8))
}
