package society

import (
	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/finance"
	"github.com/mcclellann/fredSavings/pkg/metrics"
	"github.com/mcclellann/fredSavings/pkg/store"
	"github.com/shopspring/decimal"
)

// SocietyDashboard is the headline view of the whole fund.
type SocietyDashboard struct {
	Pool      finance.InterestPool `json:"pool"`
	Totals    finance.Totals       `json:"totals"`
	TotalFund decimal.Decimal      `json:"total_fund"`
}

func poolField(s string) (finance.InterestPool, error) {
	pool, err := finance.ParseInterestPool(s)
	if err != nil {
		return "", NewValidationError(err, FieldError{Field: "pool", Error: "must be realized or distributed"})
	}
	return pool, nil
}

func basisField(s string) (finance.Basis, error) {
	basis, err := finance.ParseBasis(s)
	if err != nil {
		return "", NewValidationError(err, FieldError{Field: "basis", Error: "must be equity or deposits"})
	}
	return basis, nil
}

func (svc *Service) SocietyDashboard(actorID uuid.UUID, pool string) (*SocietyDashboard, error) {
	if _, err := svc.requireMember(actorID); err != nil {
		return nil, err
	}
	p, err := poolField(pool)
	if err != nil {
		return nil, err
	}
	snap, err := svc.Snapshot()
	if err != nil {
		return nil, err
	}
	totals := finance.Summarize(snap, svc.now())
	return &SocietyDashboard{Pool: p, Totals: totals, TotalFund: totals.SocietyTotalFund(p)}, nil
}

// MemberDashboard returns a member's summary on the equity basis. Members may only
// read their own dashboard; admins may read any.
func (svc *Service) MemberDashboard(actorID, memberID uuid.UUID, pool string) (*finance.MemberSummary, error) {
	actor, err := svc.requireMember(actorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && actor.ID != memberID {
		return nil, ErrForbidden
	}
	p, err := poolField(pool)
	if err != nil {
		return nil, err
	}
	snap, err := svc.Snapshot()
	if err != nil {
		return nil, err
	}
	summary, ok := finance.SummarizeMember(snap, memberID, p, finance.BasisEquity, svc.now())
	if !ok {
		return nil, store.ErrNotFound
	}
	return &summary, nil
}

// Report is the admin breakdown of every member against one pool and basis.
func (svc *Service) Report(adminID uuid.UUID, pool, basis string) (*finance.Report, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return nil, err
	}
	p, err := poolField(pool)
	if err != nil {
		return nil, err
	}
	b, err := basisField(basis)
	if err != nil {
		return nil, err
	}
	snap, err := svc.Snapshot()
	if err != nil {
		return nil, err
	}
	r := finance.BuildReport(snap, p, b, svc.now())
	svc.recordWarnings(r.Warnings)
	return &r, nil
}

func (svc *Service) recordWarnings(warnings []finance.Warning) {
	for _, w := range warnings {
		metrics.DataQualityWarnings.WithLabelValues(string(w.Code)).Inc()
		svc.logger.Debug().
			Str("code", string(w.Code)).
			Str("installment_id", w.InstallmentID.String()).
			Msg(w.Message)
	}
}
