package finance

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/shopspring/decimal"
)

// MatchKind records how an instalment was linked to a member.
type MatchKind string

const (
	MatchedByID           MatchKind = "id"
	MatchedByNameFallback MatchKind = "name_fallback"
	Unmatched             MatchKind = "unmatched"
)

type WarningCode string

const (
	WarnNameFallback  WarningCode = "name_fallback"
	WarnInexactName   WarningCode = "inexact_name"
	WarnAmbiguousName WarningCode = "ambiguous_name"
	WarnUnknownMember WarningCode = "unknown_member"
)

// Warning is a data-quality finding surfaced to admins instead of being resolved silently.
type Warning struct {
	Code          WarningCode `json:"code"`
	InstallmentID uuid.UUID   `json:"installment_id"`
	MemberID      uuid.UUID   `json:"member_id,omitempty"`
	Message       string      `json:"message"`
}

// InstallmentMatch links one instalment row to a member.
type InstallmentMatch struct {
	InstallmentID uuid.UUID `json:"installment_id"`
	MemberID      uuid.UUID `json:"member_id"`
	Kind          MatchKind `json:"kind"`
	NeedsReview   bool      `json:"needs_review"`
}

// Contribution is one member's capital as seen by the distribution calculator.
type Contribution struct {
	MemberID            uuid.UUID       `json:"member_id"`
	MemberName          string          `json:"member_name"`
	Installments        decimal.Decimal `json:"installments"` // Approved only
	PendingInstallments decimal.Decimal `json:"pending_installments"`
	DepositPrincipal    decimal.Decimal `json:"deposit_principal"`
	DepositInterest     decimal.Decimal `json:"deposit_interest"` // Realized only
	NameFallbackRows    int             `json:"name_fallback_rows"`
}

// Amount is the member's contribution under the given capital basis.
func (c Contribution) Amount(basis Basis) decimal.Decimal {
	if basis == BasisDeposits {
		return c.DepositPrincipal
	}
	return c.Installments.Add(c.DepositPrincipal)
}

type memberIndex struct {
	byID   map[uuid.UUID]models.Member
	byName map[string][]models.Member
}

func newMemberIndex(members []models.Member) memberIndex {
	idx := memberIndex{
		byID:   make(map[uuid.UUID]models.Member, len(members)),
		byName: make(map[string][]models.Member, len(members)),
	}
	for _, m := range members {
		idx.byID[m.ID] = m
		key := normalizeName(m.Name)
		idx.byName[key] = append(idx.byName[key], m)
	}
	return idx
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// match links by member ID when the row carries one. The name fallback is used only for
// rows with no member ID at all, and every fallback produces a warning.
func (idx memberIndex) match(inst models.Installment) (InstallmentMatch, *Warning) {
	res := InstallmentMatch{InstallmentID: inst.ID, Kind: Unmatched}

	if inst.MemberID != uuid.Nil {
		if _, ok := idx.byID[inst.MemberID]; ok {
			res.MemberID = inst.MemberID
			res.Kind = MatchedByID
			return res, nil
		}
		return res, &Warning{
			Code:          WarnUnknownMember,
			InstallmentID: inst.ID,
			MemberID:      inst.MemberID,
			Message:       fmt.Sprintf("instalment references unknown member %s", inst.MemberID),
		}
	}

	candidates := idx.byName[normalizeName(inst.MemberName)]
	switch len(candidates) {
	case 0:
		return res, &Warning{
			Code:          WarnUnknownMember,
			InstallmentID: inst.ID,
			Message:       fmt.Sprintf("instalment has no member id and no member is named %q", inst.MemberName),
		}
	case 1:
	default:
		return res, &Warning{
			Code:          WarnAmbiguousName,
			InstallmentID: inst.ID,
			Message:       fmt.Sprintf("%d members match name %q", len(candidates), inst.MemberName),
		}
	}

	m := candidates[0]
	res.MemberID = m.ID
	res.Kind = MatchedByNameFallback
	w := &Warning{
		Code:          WarnNameFallback,
		InstallmentID: inst.ID,
		MemberID:      m.ID,
		Message:       fmt.Sprintf("instalment linked to %q by name only", m.Name),
	}
	if inst.MemberName != m.Name {
		res.NeedsReview = true
		w.Code = WarnInexactName
		w.Message = fmt.Sprintf("instalment name %q linked to member %q by normalized name, needs review", inst.MemberName, m.Name)
	}
	return res, w
}

// MatchInstallments links every instalment to a member and returns the warnings found.
func MatchInstallments(members []models.Member, installments []models.Installment) ([]InstallmentMatch, []Warning) {
	idx := newMemberIndex(members)
	matches := make([]InstallmentMatch, 0, len(installments))
	var warnings []Warning
	for _, inst := range installments {
		m, w := idx.match(inst)
		matches = append(matches, m)
		if w != nil {
			warnings = append(warnings, *w)
		}
	}
	return matches, warnings
}

// BuildContributions totals each member's instalments and fixed deposits.
// Rejected instalments are ignored; unmatched rows only produce warnings.
// The result is ordered by member name, then ID.
func BuildContributions(s Snapshot, now time.Time) ([]Contribution, []Warning) {
	byMember := make(map[uuid.UUID]*Contribution, len(s.Members))
	for _, m := range s.Members {
		byMember[m.ID] = &Contribution{MemberID: m.ID, MemberName: m.Name}
	}

	matches, warnings := MatchInstallments(s.Members, s.Installments)
	for i, inst := range s.Installments {
		c, ok := byMember[matches[i].MemberID]
		if !ok {
			continue
		}
		amount := nonNegative(inst.Amount)
		switch inst.Status {
		case models.InstallmentStatusApproved:
			c.Installments = c.Installments.Add(amount)
		case models.InstallmentStatusPending:
			c.PendingInstallments = c.PendingInstallments.Add(amount)
		default:
			continue
		}
		if matches[i].Kind == MatchedByNameFallback {
			c.NameFallbackRows++
		}
	}

	for _, d := range s.Deposits {
		c, ok := byMember[d.OwnerMemberID]
		if !ok {
			continue
		}
		ev := EvaluateDeposit(d, now)
		c.DepositPrincipal = c.DepositPrincipal.Add(ev.Principal)
		if ev.Matured {
			c.DepositInterest = c.DepositInterest.Add(ev.Interest)
		}
	}

	out := make([]Contribution, 0, len(byMember))
	for _, c := range byMember {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MemberName != out[j].MemberName {
			return out[i].MemberName < out[j].MemberName
		}
		return out[i].MemberID.String() < out[j].MemberID.String()
	})
	return out, warnings
}
