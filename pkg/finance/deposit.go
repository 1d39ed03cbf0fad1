package finance

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
	maxStoredInt = decimal.NewFromInt(math.MaxInt32)
)

// DepositEvaluation is the derived state of a fixed deposit at a point in time.
type DepositEvaluation struct {
	DepositID    string          `json:"deposit_id"`
	Principal    decimal.Decimal `json:"principal"`
	MaturityDate time.Time       `json:"maturity_date"`
	Matured      bool            `json:"matured"`
	Interest     decimal.Decimal `json:"interest"`
}

// EvaluateDeposit derives maturity and simple interest for a deposit.
// Interest = P * (R/100) * (T/12) regardless of maturity; Matured only says whether
// that interest counts as realized. Negative or out-of-range fields count as zero.
func EvaluateDeposit(d models.FixedDeposit, now time.Time) DepositEvaluation {
	principal := nonNegative(d.Principal)
	rate := nonNegative(d.AnnualRate)
	tenure := d.TenureMonths
	if tenure < 0 {
		tenure = 0
	}

	month := d.StartMonth
	if month < 1 || month > 12 {
		month = 1
	}
	start := time.Date(d.StartYear, time.Month(month), 1, 0, 0, 0, 0, now.Location())
	maturity := start.AddDate(0, tenure, 0)

	return DepositEvaluation{
		DepositID:    d.ID.String(),
		Principal:    principal,
		MaturityDate: maturity,
		Matured:      !maturity.After(now),
		Interest:     SimpleInterest(principal, rate, tenure),
	}
}

// SimpleInterest returns principal * (ratePercent/100) * (months/12).
func SimpleInterest(principal, ratePercent decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 {
		return decimal.Zero
	}
	return nonNegative(principal).
		Mul(nonNegative(ratePercent)).
		Mul(decimal.NewFromInt(int64(months))).
		Div(hundred.Mul(monthsInYear))
}

// CoerceAmount parses a stored numeric value. Blank, malformed and negative values are zero.
func CoerceAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return nonNegative(d)
}

// CoerceInt parses a stored whole-number column such as a tenure or start year.
// Fractions are truncated; blank, malformed, negative and oversized values are zero.
func CoerceInt(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}
	d := CoerceAmount(s)
	if d.GreaterThan(maxStoredInt) {
		return 0
	}
	return int(d.IntPart())
}

// CoerceFloat converts form input, mapping NaN, infinities and negatives to zero.
func CoerceFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
