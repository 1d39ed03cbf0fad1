package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MemberStatus string

const (
	MemberStatusPending MemberStatus = "pending"
	MemberStatusActive  MemberStatus = "active"
)

type Member struct {
	ID                   uuid.UUID       `json:"id"`
	Name                 string          `json:"name"`
	Email                string          `json:"email"`
	PasswordHash         []byte          `json:"-"`
	Status               MemberStatus    `json:"status"`
	IsAdmin              bool            `json:"is_admin"`
	FixedDepositAmount   decimal.Decimal `json:"fixed_deposit_amount"`   // Denormalized from the member's fixed deposits
	FixedDepositInterest decimal.Decimal `json:"fixed_deposit_interest"` // Denormalized, realized interest only
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type InstallmentStatus string

const (
	InstallmentStatusPending  InstallmentStatus = "Pending"
	InstallmentStatusApproved InstallmentStatus = "Approved"
	InstallmentStatusRejected InstallmentStatus = "Rejected"
)

type Installment struct {
	ID         uuid.UUID         `json:"id"`
	MemberID   uuid.UUID         `json:"member_id"`   // uuid.Nil for legacy rows linked only by name
	MemberName string            `json:"member_name"` // Denormalized at submission, may be stale
	Amount     decimal.Decimal   `json:"amount"`
	Month      string            `json:"month"` // e.g. "January 2025"
	Status     InstallmentStatus `json:"status"`
	LateFee    decimal.Decimal   `json:"late_fee"`
	ProofRef   string            `json:"proof_ref,omitempty"` // Cleared once an admin has reviewed the instalment
	CreatedAt  time.Time         `json:"created_at"`
	ApprovedAt *time.Time        `json:"approved_at,omitempty"`
}

type FixedDeposit struct {
	ID            uuid.UUID       `json:"id"`
	OwnerMemberID uuid.UUID       `json:"owner_member_id"` // uuid.Nil means the society treasury
	Principal     decimal.Decimal `json:"principal"`
	AnnualRate    decimal.Decimal `json:"annual_rate"` // Percent, e.g. 9.75
	TenureMonths  int             `json:"tenure_months"`
	StartMonth    int             `json:"start_month"` // 1-12
	StartYear     int             `json:"start_year"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsTreasury reports whether the deposit belongs to the society rather than a member.
func (d *FixedDeposit) IsTreasury() bool {
	return d.OwnerMemberID == uuid.Nil
}

type ProfitRecord struct {
	ID             uuid.UUID       `json:"id"`
	MemberID       uuid.UUID       `json:"member_id"`
	AmountEarned   decimal.Decimal `json:"amount_earned"`
	Description    string          `json:"description"`
	DistributionID uuid.UUID       `json:"distribution_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// DistributionRun is written once per applied profit distribution. Key is unique.
type DistributionRun struct {
	ID          uuid.UUID       `json:"id"`
	Key         string          `json:"key"`
	Pool        decimal.Decimal `json:"pool"`
	Capital     decimal.Decimal `json:"capital"`
	Basis       string          `json:"basis"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
