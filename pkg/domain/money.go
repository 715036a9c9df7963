package domain

import (
	"github.com/shopspring/decimal"

	dErrors "rotrust/pkg/domain-errors"
)

// MoneyScale is the number of fractional digits accepted for prices and
// payment amounts.
const MoneyScale = 2

// Tolerance is the absolute difference under which a paid total is treated
// as equal to the price.
var Tolerance = decimal.New(1, -MoneyScale)

// ParseAmount parses a strictly positive decimal amount with at most
// MoneyScale fractional digits.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, dErrors.Newf(dErrors.CodeValidation, "%s is not a decimal number", field)
	}
	return d, ValidateAmount(field, d)
}

// ValidateAmount enforces positivity and scale on an already-decoded amount.
func ValidateAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be positive", field)
	}
	if !d.Equal(d.Truncate(MoneyScale)) {
		return dErrors.Newf(dErrors.CodeValidation, "%s has more than %d decimal places", field, MoneyScale)
	}
	return nil
}

// WithinTolerance reports whether |a - b| < Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Tolerance)
}
