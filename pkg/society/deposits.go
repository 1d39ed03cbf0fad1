package society

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/finance"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/mcclellann/fredSavings/pkg/store"
	"github.com/shopspring/decimal"
)

// DepositInput is the admin form for creating or editing a fixed deposit.
// A nil OwnerMemberID books the deposit to the society treasury.
type DepositInput struct {
	OwnerMemberID *uuid.UUID      `json:"owner_member_id"`
	Principal     decimal.Decimal `json:"principal"`
	AnnualRate    decimal.Decimal `json:"annual_rate"`
	TenureMonths  int             `json:"tenure_months" validate:"gte=1,lte=600"`
	StartMonth    int             `json:"start_month" validate:"gte=1,lte=12"`
	StartYear     int             `json:"start_year" validate:"gte=1900,lte=9999"`
}

// DepositView is a stored deposit together with its current evaluation.
type DepositView struct {
	*models.FixedDeposit
	Evaluation finance.DepositEvaluation `json:"evaluation"`
}

func (svc *Service) checkDeposit(in DepositInput) error {
	var fields []FieldError
	if err := checkStruct(svc.validate, in); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		fields = append(fields, verr.Fields...)
	}
	if !in.Principal.IsPositive() {
		fields = append(fields, FieldError{Field: "principal", Error: "must be greater than 0"})
	}
	if in.AnnualRate.IsNegative() {
		fields = append(fields, FieldError{Field: "annual_rate", Error: "must be at least 0"})
	}
	if in.OwnerMemberID != nil && *in.OwnerMemberID != uuid.Nil {
		if _, err := svc.storage.GetMember(*in.OwnerMemberID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			fields = append(fields, FieldError{Field: "owner_member_id", Error: "no such member"})
		}
	}
	if len(fields) > 0 {
		return NewValidationError(errInvalidInput, fields...)
	}
	return nil
}

func (in DepositInput) owner() uuid.UUID {
	if in.OwnerMemberID == nil {
		return uuid.Nil
	}
	return *in.OwnerMemberID
}

// CreateFixedDeposit books a new deposit and refreshes the owner's totals.
func (svc *Service) CreateFixedDeposit(adminID uuid.UUID, in DepositInput) (*DepositView, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return nil, err
	}
	if err := svc.checkDeposit(in); err != nil {
		return nil, err
	}

	now := svc.now()
	deposit := &models.FixedDeposit{
		ID:            uuid.New(),
		OwnerMemberID: in.owner(),
		Principal:     in.Principal,
		AnnualRate:    in.AnnualRate,
		TenureMonths:  in.TenureMonths,
		StartMonth:    in.StartMonth,
		StartYear:     in.StartYear,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := svc.storage.CreateFixedDeposit(deposit); err != nil {
		return nil, fmt.Errorf("failed to store fixed deposit: %w", err)
	}
	svc.refreshOwner(deposit.OwnerMemberID)

	svc.logger.Info().Str("deposit_id", deposit.ID.String()).Str("admin_id", adminID.String()).Msg("fixed deposit created")
	return svc.view(deposit, now), nil
}

// UpdateFixedDeposit replaces a deposit's terms. Both old and new owners are refreshed.
func (svc *Service) UpdateFixedDeposit(adminID, id uuid.UUID, in DepositInput) (*DepositView, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return nil, err
	}
	deposit, err := svc.storage.GetFixedDeposit(id)
	if err != nil {
		return nil, err
	}
	if err := svc.checkDeposit(in); err != nil {
		return nil, err
	}

	previousOwner := deposit.OwnerMemberID
	now := svc.now()
	deposit.OwnerMemberID = in.owner()
	deposit.Principal = in.Principal
	deposit.AnnualRate = in.AnnualRate
	deposit.TenureMonths = in.TenureMonths
	deposit.StartMonth = in.StartMonth
	deposit.StartYear = in.StartYear
	deposit.UpdatedAt = now

	if err := svc.storage.UpdateFixedDeposit(deposit); err != nil {
		return nil, fmt.Errorf("failed to update fixed deposit: %w", err)
	}
	svc.refreshOwner(deposit.OwnerMemberID)
	if previousOwner != deposit.OwnerMemberID {
		svc.refreshOwner(previousOwner)
	}

	svc.logger.Info().Str("deposit_id", deposit.ID.String()).Str("admin_id", adminID.String()).Msg("fixed deposit updated")
	return svc.view(deposit, now), nil
}

func (svc *Service) DeleteFixedDeposit(adminID, id uuid.UUID) error {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return err
	}
	deposit, err := svc.storage.GetFixedDeposit(id)
	if err != nil {
		return err
	}
	if err := svc.storage.DeleteFixedDeposit(id); err != nil {
		return err
	}
	svc.refreshOwner(deposit.OwnerMemberID)
	svc.logger.Info().Str("deposit_id", id.String()).Str("admin_id", adminID.String()).Msg("fixed deposit deleted")
	return nil
}

// ListFixedDeposits returns every deposit with its maturity and interest as of now.
func (svc *Service) ListFixedDeposits(actorID uuid.UUID) ([]*DepositView, error) {
	if _, err := svc.requireMember(actorID); err != nil {
		return nil, err
	}
	deposits, err := svc.storage.GetAllFixedDeposits()
	if err != nil {
		return nil, err
	}
	now := svc.now()
	views := make([]*DepositView, 0, len(deposits))
	for _, d := range deposits {
		views = append(views, svc.view(d, now))
	}
	return views, nil
}

func (svc *Service) view(d *models.FixedDeposit, now time.Time) *DepositView {
	return &DepositView{FixedDeposit: d, Evaluation: finance.EvaluateDeposit(*d, now)}
}

// refreshOwner recomputes a member's denormalized deposit principal and realized
// interest. Failures are logged; the deposits table stays authoritative.
func (svc *Service) refreshOwner(memberID uuid.UUID) {
	if memberID == uuid.Nil {
		return
	}
	log := svc.logger.With().Str("member_id", memberID.String()).Logger()

	member, err := svc.storage.GetMember(memberID)
	if err != nil {
		log.Warn().Err(err).Msg("loading deposit owner")
		return
	}
	deposits, err := svc.storage.GetAllFixedDeposits()
	if err != nil {
		log.Warn().Err(err).Msg("loading deposits for owner refresh")
		return
	}

	now := svc.now()
	principal, interest := decimal.Zero, decimal.Zero
	for _, d := range deposits {
		if d.OwnerMemberID != memberID {
			continue
		}
		ev := finance.EvaluateDeposit(*d, now)
		principal = principal.Add(ev.Principal)
		if ev.Matured {
			interest = interest.Add(ev.Interest)
		}
	}

	member.FixedDepositAmount = principal
	member.FixedDepositInterest = interest
	member.UpdatedAt = now
	if err := svc.storage.UpdateMember(member); err != nil {
		log.Warn().Err(err).Msg("updating deposit owner totals")
	}
}

// RefreshDepositOwners recomputes every owner's deposit totals. Realized interest
// changes as deposits mature, so this runs periodically as well as after edits.
func (svc *Service) RefreshDepositOwners() int {
	deposits, err := svc.storage.GetAllFixedDeposits()
	if err != nil {
		svc.logger.Error().Err(err).Msg("loading deposits for refresh")
		return 0
	}
	owners := make(map[uuid.UUID]bool)
	for _, d := range deposits {
		if !d.IsTreasury() && !owners[d.OwnerMemberID] {
			owners[d.OwnerMemberID] = true
			svc.refreshOwner(d.OwnerMemberID)
		}
	}
	return len(owners)
}
