package finance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// LateFeeGrace applies from the 1st through the 5th of the following month.
	LateFeeGrace = decimal.NewFromInt(500)
	// LateFeeOverdue applies after the 5th of the following month.
	LateFeeOverdue = decimal.NewFromInt(1000)
)

const graceDays = 5

// LateFee returns the fee tier for an instalment covering month/year when submitted at now.
// The grace window is the 1st-5th of the month after the contribution month, compared by
// calendar day in now's location.
func LateFee(month time.Month, year int, now time.Time) decimal.Decimal {
	loc := now.Location()
	// time.Date normalizes month 13 into January of the next year.
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
	afterGrace := time.Date(year, month+1, graceDays+1, 0, 0, 0, 0, loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch {
	case today.Before(firstOfNext):
		return decimal.Zero
	case today.Before(afterGrace):
		return LateFeeGrace
	default:
		return LateFeeOverdue
	}
}

// LateFeeForLabel parses a free-text month label and applies LateFee.
func LateFeeForLabel(label string, now time.Time) (decimal.Decimal, error) {
	month, year, err := ParseMonthLabel(label)
	if err != nil {
		return decimal.Zero, err
	}
	return LateFee(month, year, now), nil
}

// ParseMonthLabel accepts "January 2025", "jan 2025", "2025-01" and "01/2025".
func ParseMonthLabel(label string) (time.Month, int, error) {
	s := strings.TrimSpace(label)
	if s == "" {
		return 0, 0, fmt.Errorf("empty month label")
	}

	for _, layout := range []string{"January 2006", "Jan 2006", "2006-01", "01/2006", "1/2006"} {
		if t, err := time.Parse(layout, titleCase(s)); err == nil {
			return t.Month(), t.Year(), nil
		}
	}

	// "September, 2025" and similar punctuation
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '-' })
	if len(fields) == 2 {
		if year, err := strconv.Atoi(fields[1]); err == nil {
			if m, ok := monthByName(fields[0]); ok {
				return m, year, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("unrecognized month label %q", label)
}

func monthByName(name string) (time.Month, bool) {
	name = strings.ToLower(name)
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if name == full || (len(name) >= 3 && strings.HasPrefix(full, name)) {
			return m, true
		}
	}
	return 0, false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
