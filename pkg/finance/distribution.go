package finance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/shopspring/decimal"
)

// Basis names the capital base a distribution is proportional to.
type Basis string

const (
	// BasisEquity: approved instalments plus all fixed-deposit principal.
	BasisEquity Basis = "equity"
	// BasisDeposits: fixed-deposit principal only.
	BasisDeposits Basis = "deposits"
)

// ParseBasis defaults to BasisEquity for an empty string.
func ParseBasis(s string) (Basis, error) {
	switch Basis(strings.ToLower(strings.TrimSpace(s))) {
	case "", BasisEquity:
		return BasisEquity, nil
	case BasisDeposits:
		return BasisDeposits, nil
	}
	return "", fmt.Errorf("unknown capital basis %q", s)
}

// Share is one member's slice of a pool. Share is exact; Allocated is floored to a
// whole currency unit and is the only value that gets persisted.
type Share struct {
	MemberID     uuid.UUID       `json:"member_id"`
	MemberName   string          `json:"member_name"`
	Contribution decimal.Decimal `json:"contribution"`
	Share        decimal.Decimal `json:"share"`
	Allocated    decimal.Decimal `json:"allocated"`
}

// Distribution is a proposed allocation of Pool against Capital. It is not applied
// until a caller persists Records, and applying the same Key twice double-counts.
type Distribution struct {
	Key         string          `json:"key"`
	Pool        decimal.Decimal `json:"pool"`
	Capital     decimal.Decimal `json:"capital"`
	Basis       Basis           `json:"basis"`
	Description string          `json:"description"`
	Shares      []Share         `json:"shares"`
	Warnings    []Warning       `json:"warnings,omitempty"`
}

// ProportionalShare returns (contribution / capital) * pool, or zero when capital <= 0.
func ProportionalShare(contribution, capital, pool decimal.Decimal) decimal.Decimal {
	if !capital.IsPositive() {
		return decimal.Zero
	}
	return nonNegative(contribution).Mul(nonNegative(pool)).Div(capital)
}

// Distribute allocates pool across contributions proportionally to capital.
func Distribute(pool, capital decimal.Decimal, basis Basis, description string, contributions []Contribution) Distribution {
	d := Distribution{
		Pool:        nonNegative(pool),
		Capital:     nonNegative(capital),
		Basis:       basis,
		Description: description,
		Shares:      make([]Share, 0, len(contributions)),
	}
	for _, c := range contributions {
		amount := c.Amount(basis)
		share := ProportionalShare(amount, d.Capital, d.Pool)
		d.Shares = append(d.Shares, Share{
			MemberID:     c.MemberID,
			MemberName:   c.MemberName,
			Contribution: amount,
			Share:        share,
			Allocated:    share.Floor(),
		})
	}
	d.Key = d.fingerprint()
	return d
}

// TotalShare is the unrounded sum of all shares.
func (d Distribution) TotalShare() decimal.Decimal {
	total := decimal.Zero
	for _, s := range d.Shares {
		total = total.Add(s.Share)
	}
	return total
}

// TotalAllocated is the sum that Records would persist.
func (d Distribution) TotalAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, s := range d.Shares {
		total = total.Add(s.Allocated)
	}
	return total
}

// Records builds the profit records for this proposal. Zero allocations are skipped.
func (d Distribution) Records(distributionID uuid.UUID, at time.Time) []models.ProfitRecord {
	records := make([]models.ProfitRecord, 0, len(d.Shares))
	for _, s := range d.Shares {
		if !s.Allocated.IsPositive() {
			continue
		}
		records = append(records, models.ProfitRecord{
			ID:             uuid.New(),
			MemberID:       s.MemberID,
			AmountEarned:   s.Allocated,
			Description:    d.Description,
			DistributionID: distributionID,
			CreatedAt:      at,
		})
	}
	return records
}

// fingerprint identifies the declared pool and the allocation computed against it.
func (d Distribution) fingerprint() string {
	lines := make([]string, 0, len(d.Shares))
	for _, s := range d.Shares {
		lines = append(lines, s.MemberID.String()+"="+s.Allocated.String())
	}
	sort.Strings(lines)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s\n", d.Pool.String(), d.Capital.String(), d.Basis, strings.TrimSpace(d.Description))
	for _, l := range lines {
		fmt.Fprintln(h, l)
	}
	return hex.EncodeToString(h.Sum(nil))
}
