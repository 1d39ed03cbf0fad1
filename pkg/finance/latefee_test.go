package finance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestLateFee(t *testing.T) {
	tests := []struct {
		name  string
		month time.Month
		year  int
		now   time.Time
		want  decimal.Decimal
	}{
		{"during contribution month", time.March, 2025, date(2025, time.March, 20), decimal.Zero},
		{"last day of contribution month", time.March, 2025, time.Date(2025, time.March, 31, 23, 59, 0, 0, time.UTC), decimal.Zero},
		{"before contribution month", time.March, 2025, date(2025, time.January, 10), decimal.Zero},
		{"first of next month", time.March, 2025, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), LateFeeGrace},
		{"third of next month", time.March, 2025, date(2025, time.April, 3), LateFeeGrace},
		{"end of the fifth", time.March, 2025, time.Date(2025, time.April, 5, 23, 59, 59, 0, time.UTC), LateFeeGrace},
		{"sixth of next month", time.March, 2025, time.Date(2025, time.April, 6, 0, 0, 0, 0, time.UTC), LateFeeOverdue},
		{"months later", time.March, 2025, date(2025, time.August, 2), LateFeeOverdue},
		{"december in december", time.December, 2024, date(2024, time.December, 31), decimal.Zero},
		{"december grace rolls into january", time.December, 2024, date(2025, time.January, 2), LateFeeGrace},
		{"december overdue in january", time.December, 2024, date(2025, time.January, 6), LateFeeOverdue},
		{"december not confused with same-year january", time.December, 2025, date(2025, time.January, 3), decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LateFee(tt.month, tt.year, tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("Expected fee %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLateFeeEveryMonth(t *testing.T) {
	for m := time.January; m <= time.December; m++ {
		next := time.Date(2025, m+1, 1, 0, 0, 0, 0, time.UTC)

		if fee := LateFee(m, 2025, next.Add(-time.Second)); !fee.IsZero() {
			t.Errorf("%s: expected 0 just before the 1st, got %s", m, fee)
		}
		for day := 1; day <= 5; day++ {
			now := time.Date(next.Year(), next.Month(), day, 9, 0, 0, 0, time.UTC)
			if fee := LateFee(m, 2025, now); !fee.Equal(LateFeeGrace) {
				t.Errorf("%s: expected %s on day %d, got %s", m, LateFeeGrace, day, fee)
			}
		}
		sixth := time.Date(next.Year(), next.Month(), 6, 0, 0, 0, 0, time.UTC)
		if fee := LateFee(m, 2025, sixth); !fee.Equal(LateFeeOverdue) {
			t.Errorf("%s: expected %s on the 6th, got %s", m, LateFeeOverdue, fee)
		}
	}
}

func TestParseMonthLabel(t *testing.T) {
	tests := []struct {
		label     string
		wantMonth time.Month
		wantYear  int
		wantErr   bool
	}{
		{"January 2025", time.January, 2025, false},
		{"  january 2025 ", time.January, 2025, false},
		{"JAN 2025", time.January, 2025, false},
		{"Sept 2024", time.September, 2024, false},
		{"September, 2024", time.September, 2024, false},
		{"2025-12", time.December, 2025, false},
		{"03/2026", time.March, 2026, false},
		{"", 0, 0, true},
		{"Smarch 2025", 0, 0, true},
		{"January", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			m, y, err := ParseMonthLabel(tt.label)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %s %d", tt.label, m, y)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if m != tt.wantMonth || y != tt.wantYear {
				t.Errorf("Expected %s %d, got %s %d", tt.wantMonth, tt.wantYear, m, y)
			}
		})
	}
}

func TestLateFeeForLabel(t *testing.T) {
	fee, err := LateFeeForLabel("December 2024", date(2025, time.January, 4))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !fee.Equal(LateFeeGrace) {
		t.Errorf("Expected %s, got %s", LateFeeGrace, fee)
	}

	if _, err := LateFeeForLabel("not a month", time.Now()); err == nil {
		t.Error("Expected error for unparseable label")
	}
}
