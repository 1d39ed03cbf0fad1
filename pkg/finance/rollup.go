package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/shopspring/decimal"
)

// Snapshot is the full set of fetched records a rollup is computed from.
type Snapshot struct {
	Members       []models.Member
	Installments  []models.Installment
	Deposits      []models.FixedDeposit
	ProfitRecords []models.ProfitRecord
}

// InterestPool selects which interest figure a screen adds to the fund.
type InterestPool string

const (
	PoolRealizedInterest  InterestPool = "realized"
	PoolDistributedProfit InterestPool = "distributed"
)

// ParseInterestPool defaults to PoolRealizedInterest for an empty string.
func ParseInterestPool(s string) (InterestPool, error) {
	switch InterestPool(strings.ToLower(strings.TrimSpace(s))) {
	case "", PoolRealizedInterest:
		return PoolRealizedInterest, nil
	case PoolDistributedProfit:
		return PoolDistributedProfit, nil
	}
	return "", fmt.Errorf("unknown interest pool %q", s)
}

// Totals are the society-wide figures every dashboard and report reads.
type Totals struct {
	TotalInstallments      decimal.Decimal `json:"total_installments"`
	PendingInstallments    decimal.Decimal `json:"pending_installments"`
	TotalFixedDeposits     decimal.Decimal `json:"total_fixed_deposits"`
	TotalRealizedInterest  decimal.Decimal `json:"total_realized_interest"`
	TotalAccruedInterest   decimal.Decimal `json:"total_accrued_interest"` // Not yet matured; display only
	TotalDistributedProfit decimal.Decimal `json:"total_distributed_profit"`
	ActiveMembers          int             `json:"active_members"`
	PendingMembers         int             `json:"pending_members"`
	MaturedDeposits        int             `json:"matured_deposits"`
}

// Pool returns the interest figure named by p.
func (t Totals) Pool(p InterestPool) decimal.Decimal {
	if p == PoolDistributedProfit {
		return t.TotalDistributedProfit
	}
	return t.TotalRealizedInterest
}

// Capital returns the capital base for basis.
func (t Totals) Capital(basis Basis) decimal.Decimal {
	if basis == BasisDeposits {
		return t.TotalFixedDeposits
	}
	return t.TotalInstallments.Add(t.TotalFixedDeposits)
}

// SocietyTotalFund is approved instalments + deposit principal + the pool in view.
func (t Totals) SocietyTotalFund(p InterestPool) decimal.Decimal {
	return t.TotalInstallments.Add(t.TotalFixedDeposits).Add(t.Pool(p))
}

// Summarize recomputes society totals from scratch.
func Summarize(s Snapshot, now time.Time) Totals {
	var t Totals
	for _, m := range s.Members {
		switch m.Status {
		case models.MemberStatusActive:
			t.ActiveMembers++
		case models.MemberStatusPending:
			t.PendingMembers++
		}
	}
	for _, inst := range s.Installments {
		switch inst.Status {
		case models.InstallmentStatusApproved:
			t.TotalInstallments = t.TotalInstallments.Add(nonNegative(inst.Amount))
		case models.InstallmentStatusPending:
			t.PendingInstallments = t.PendingInstallments.Add(nonNegative(inst.Amount))
		}
	}
	for _, d := range s.Deposits {
		ev := EvaluateDeposit(d, now)
		t.TotalFixedDeposits = t.TotalFixedDeposits.Add(ev.Principal)
		if ev.Matured {
			t.TotalRealizedInterest = t.TotalRealizedInterest.Add(ev.Interest)
			t.MaturedDeposits++
		} else {
			t.TotalAccruedInterest = t.TotalAccruedInterest.Add(ev.Interest)
		}
	}
	for _, p := range s.ProfitRecords {
		t.TotalDistributedProfit = t.TotalDistributedProfit.Add(nonNegative(p.AmountEarned))
	}
	return t
}

// MemberSummary is one member's dashboard. Share is unrounded.
type MemberSummary struct {
	MemberID            uuid.UUID       `json:"member_id"`
	MemberName          string          `json:"member_name"`
	Installments        decimal.Decimal `json:"installments"`
	PendingInstallments decimal.Decimal `json:"pending_installments"`
	DepositPrincipal    decimal.Decimal `json:"deposit_principal"`
	DepositInterest     decimal.Decimal `json:"deposit_interest"`
	ProfitReceived      decimal.Decimal `json:"profit_received"`
	Contribution        decimal.Decimal `json:"contribution"`
	Share               decimal.Decimal `json:"share"`
	TotalFund           decimal.Decimal `json:"total_fund"`
	NameFallbackRows    int             `json:"name_fallback_rows"`
}

// Report is the full per-member breakdown against one pool and basis.
type Report struct {
	Pool      InterestPool    `json:"pool"`
	Basis     Basis           `json:"basis"`
	Totals    Totals          `json:"totals"`
	TotalFund decimal.Decimal `json:"total_fund"`
	Members   []MemberSummary `json:"members"`
	Warnings  []Warning       `json:"warnings,omitempty"`
}

// BuildReport computes totals and every active member's summary in one pass.
// Pending members still count in the society totals but get no row.
func BuildReport(s Snapshot, pool InterestPool, basis Basis, now time.Time) Report {
	totals := Summarize(s, now)
	summaries, warnings := summarizeMembers(s, totals, pool, basis, now)

	active := make(map[uuid.UUID]bool, len(s.Members))
	for _, m := range s.Members {
		active[m.ID] = m.Status == models.MemberStatusActive
	}

	r := Report{
		Pool:      pool,
		Basis:     basis,
		Totals:    totals,
		TotalFund: totals.SocietyTotalFund(pool),
		Members:   make([]MemberSummary, 0, totals.ActiveMembers),
		Warnings:  warnings,
	}
	for _, m := range summaries {
		if active[m.MemberID] {
			r.Members = append(r.Members, m)
		}
	}
	return r
}

// summarizeMembers builds a summary for every member in s regardless of status.
//
// A member's TotalFund counts only money attributable to them, so the funds of all
// members never exceed the society fund for the same pool:
//
//	realized:    instalments + deposit principal + own realized deposit interest
//	distributed: instalments + deposit principal + profit already credited to them
//
// Share is what the member would receive if the pool were distributed now; it is
// reported alongside and not added to TotalFund.
func summarizeMembers(s Snapshot, totals Totals, pool InterestPool, basis Basis, now time.Time) ([]MemberSummary, []Warning) {
	contributions, warnings := BuildContributions(s, now)

	profit := make(map[uuid.UUID]decimal.Decimal)
	for _, p := range s.ProfitRecords {
		profit[p.MemberID] = profit[p.MemberID].Add(nonNegative(p.AmountEarned))
	}

	capital := totals.Capital(basis)
	poolAmount := totals.Pool(pool)

	out := make([]MemberSummary, 0, len(contributions))
	for _, c := range contributions {
		amount := c.Amount(basis)
		earned := c.DepositInterest
		if pool == PoolDistributedProfit {
			earned = profit[c.MemberID]
		}
		out = append(out, MemberSummary{
			MemberID:            c.MemberID,
			MemberName:          c.MemberName,
			Installments:        c.Installments,
			PendingInstallments: c.PendingInstallments,
			DepositPrincipal:    c.DepositPrincipal,
			DepositInterest:     c.DepositInterest,
			ProfitReceived:      profit[c.MemberID],
			Contribution:        amount,
			Share:               ProportionalShare(amount, capital, poolAmount),
			TotalFund:           c.Installments.Add(c.DepositPrincipal).Add(earned),
			NameFallbackRows:    c.NameFallbackRows,
		})
	}
	return out, warnings
}

// SummarizeMember returns one member's summary, or false if the member is not in s.
// Unlike BuildReport it also answers for pending members.
func SummarizeMember(s Snapshot, memberID uuid.UUID, pool InterestPool, basis Basis, now time.Time) (MemberSummary, bool) {
	summaries, _ := summarizeMembers(s, Summarize(s, now), pool, basis, now)
	for _, m := range summaries {
		if m.MemberID == memberID {
			return m, true
		}
	}
	return MemberSummary{}, false
}

// ProposeDistribution allocates pool over the snapshot's members on basis.
func ProposeDistribution(s Snapshot, pool decimal.Decimal, basis Basis, description string, now time.Time) Distribution {
	totals := Summarize(s, now)
	contributions, warnings := BuildContributions(s, now)
	d := Distribute(pool, totals.Capital(basis), basis, description, contributions)
	d.Warnings = warnings
	return d
}
