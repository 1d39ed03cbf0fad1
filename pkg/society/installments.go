package society

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/finance"
	"github.com/mcclellann/fredSavings/pkg/metrics"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/mcclellann/fredSavings/pkg/notify"
	"github.com/mcclellann/fredSavings/pkg/proofs"
	"github.com/mcclellann/fredSavings/pkg/store"
	"github.com/shopspring/decimal"
)

// Submission is a member's instalment claim. Proof is the uploaded image.
type Submission struct {
	Amount        decimal.Decimal
	Month         string
	Proof         io.Reader
	ProofFilename string
}

// SubmitInstallment records a Pending instalment for an active member. The late fee
// is fixed at submission time from the claimed month and the current date.
func (svc *Service) SubmitInstallment(ctx context.Context, memberID uuid.UUID, sub Submission) (*models.Installment, error) {
	member, err := svc.storage.GetMember(memberID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if member.Status != models.MemberStatusActive {
		return nil, ErrMemberNotActive
	}

	var fields []FieldError
	if !sub.Amount.IsPositive() {
		fields = append(fields, FieldError{Field: "amount", Error: "must be greater than 0"})
	}
	month, year, err := finance.ParseMonthLabel(sub.Month)
	if err != nil {
		fields = append(fields, FieldError{Field: "month", Error: "must be a month such as \"January 2025\""})
	}
	if sub.Proof == nil {
		fields = append(fields, FieldError{Field: "proof", Error: "this field is required"})
	}
	if len(fields) > 0 {
		return nil, NewValidationError(errInvalidInput, fields...)
	}

	ref, err := svc.proofs.Save(ctx, member.ID, sub.ProofFilename, sub.Proof)
	if err != nil {
		if errors.Is(err, proofs.ErrNotImage) || errors.Is(err, proofs.ErrTooLarge) {
			return nil, NewValidationError(err, FieldError{Field: "proof", Error: err.Error()})
		}
		return nil, fmt.Errorf("failed to store proof: %w", err)
	}

	now := svc.now()
	inst := &models.Installment{
		ID:         uuid.New(),
		MemberID:   member.ID,
		MemberName: member.Name,
		Amount:     sub.Amount,
		Month:      time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("January 2006"),
		Status:     models.InstallmentStatusPending,
		LateFee:    finance.LateFee(month, year, now),
		ProofRef:   ref,
		CreatedAt:  now,
	}
	if err := svc.storage.CreateInstallment(inst); err != nil {
		if derr := svc.proofs.Delete(ctx, ref); derr != nil {
			svc.logger.Warn().Err(derr).Str("proof_ref", ref).Msg("removing orphaned proof")
		}
		return nil, fmt.Errorf("failed to store installment: %w", err)
	}

	metrics.InstallmentsSubmitted.WithLabelValues(inst.LateFee.String()).Inc()
	svc.logger.Info().
		Str("installment_id", inst.ID.String()).
		Str("member_id", member.ID.String()).
		Str("month", inst.Month).
		Str("late_fee", inst.LateFee.String()).
		Msg("installment submitted")

	svc.mailer.SendMessages(&notify.Message{
		To:      svc.adminRecipients(),
		Subject: "Instalment awaiting review",
		Text:    fmt.Sprintf("%s submitted %s for %s (late fee %s).", member.Name, inst.Amount, inst.Month, inst.LateFee),
	})
	return inst, nil
}

// ReviewInstallment approves or rejects a Pending instalment exactly once. The proof
// object is removed after the row is updated.
func (svc *Service) ReviewInstallment(ctx context.Context, adminID, id uuid.UUID, decision models.InstallmentStatus) (*models.Installment, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return nil, err
	}
	if decision != models.InstallmentStatusApproved && decision != models.InstallmentStatusRejected {
		return nil, NewValidationError(errInvalidInput, FieldError{Field: "decision", Error: "must be Approved or Rejected"})
	}

	inst, err := svc.storage.GetInstallment(id)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.InstallmentStatusPending {
		return nil, ErrAlreadyReviewed
	}

	ref := inst.ProofRef
	now := svc.now()
	inst.Status = decision
	inst.ProofRef = ""
	inst.ApprovedAt = nil
	if decision == models.InstallmentStatusApproved {
		inst.ApprovedAt = &now
	}

	if err := svc.storage.ReviewInstallment(inst); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAlreadyReviewed
		}
		return nil, fmt.Errorf("failed to review installment: %w", err)
	}
	metrics.InstallmentReviews.WithLabelValues(string(decision)).Inc()

	if ref != "" {
		if err := svc.proofs.Delete(ctx, ref); err != nil {
			svc.logger.Warn().Err(err).Str("proof_ref", ref).Msg("deleting reviewed proof")
		}
	}

	svc.logger.Info().
		Str("installment_id", inst.ID.String()).
		Str("admin_id", adminID.String()).
		Str("decision", string(decision)).
		Msg("installment reviewed")

	if inst.MemberID != uuid.Nil {
		if member, err := svc.storage.GetMember(inst.MemberID); err == nil {
			svc.mailer.SendMessages(&notify.Message{
				To:      memberAddress(member),
				Subject: fmt.Sprintf("Your %s instalment was %s", inst.Month, decision),
				Text:    fmt.Sprintf("Hello %s, your instalment of %s for %s was %s.", member.Name, inst.Amount, inst.Month, decision),
			})
		}
	}
	return inst, nil
}

// ListInstallments returns instalments matching filter. Non-admins only see their own.
func (svc *Service) ListInstallments(actorID uuid.UUID, filter store.InstallmentFilter) ([]*models.Installment, error) {
	actor, err := svc.storage.GetMember(actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if !actor.IsAdmin {
		if filter.MemberID != uuid.Nil && filter.MemberID != actor.ID {
			return nil, ErrForbidden
		}
		filter.MemberID = actor.ID
	}
	return svc.storage.GetInstallments(filter)
}

// LateFeeFor quotes the fee a submission for label would carry right now.
func (svc *Service) LateFeeFor(label string) (decimal.Decimal, error) {
	fee, err := finance.LateFeeForLabel(label, svc.now())
	if err != nil {
		return decimal.Zero, NewValidationError(err, FieldError{Field: "month", Error: "must be a month such as \"January 2025\""})
	}
	return fee, nil
}
