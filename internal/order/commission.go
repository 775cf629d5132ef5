package order

import "github.com/shopspring/decimal"

// Commission splits subTotal into the platform commission and seller
// earnings, both rounded to 2 decimal places. The rounding remainder is
// folded into the larger part so that commission + earnings always equals
// subTotal to the cent.
func Commission(subTotal, rate decimal.Decimal) (commission, earnings decimal.Decimal) {
	total := subTotal.Round(2)
	commission = subTotal.Mul(rate).Round(2)
	earnings = total.Sub(commission)
	if commission.GreaterThan(earnings) {
		earnings = subTotal.Mul(decimal.NewFromInt(1).Sub(rate)).Round(2)
		commission = total.Sub(earnings)
	}
	return commission, earnings
}

// CommissionCents is the integer-cent form used by the repos.
func CommissionCents(subTotalCents int64, rate float64) (commissionCents, earningsCents int64) {
	c, e := Commission(decimal.NewFromInt(subTotalCents).Shift(-2), decimal.NewFromFloat(rate))
	return c.Shift(2).IntPart(), e.Shift(2).IntPart()
}
