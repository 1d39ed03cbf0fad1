package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique column (member email, distribution key) already exists.
	ErrDuplicate = errors.New("already exists")
	// ErrConflict is returned when a row is no longer in the state an update expects.
	ErrConflict = errors.New("conflicting update")
)

// InstallmentFilter narrows GetInstallments. Zero values match everything.
type InstallmentFilter struct {
	MemberID uuid.UUID
	Status   models.InstallmentStatus
}

// Storage defines the interface for database operations of the society.
type Storage interface {
	CreateMember(member *models.Member) error
	GetMember(id uuid.UUID) (*models.Member, error)
	GetMemberByEmail(email string) (*models.Member, error)
	UpdateMember(member *models.Member) error
	GetAllMembers() ([]*models.Member, error)

	CreateInstallment(inst *models.Installment) error
	GetInstallment(id uuid.UUID) (*models.Installment, error)
	UpdateInstallment(inst *models.Installment) error
	// ReviewInstallment moves a Pending instalment to inst.Status, sets ApprovedAt and
	// clears the proof ref. It returns ErrConflict if the row is no longer Pending.
	ReviewInstallment(inst *models.Installment) error
	GetInstallments(filter InstallmentFilter) ([]*models.Installment, error)

	CreateFixedDeposit(deposit *models.FixedDeposit) error
	GetFixedDeposit(id uuid.UUID) (*models.FixedDeposit, error)
	UpdateFixedDeposit(deposit *models.FixedDeposit) error
	DeleteFixedDeposit(id uuid.UUID) error
	GetAllFixedDeposits() ([]*models.FixedDeposit, error)

	// ApplyDistribution writes the run and its records atomically.
	// It returns ErrDuplicate and writes nothing if run.Key was already applied.
	ApplyDistribution(run *models.DistributionRun, records []models.ProfitRecord) error
	GetDistributionRuns() ([]*models.DistributionRun, error)
	GetAllProfitRecords() ([]*models.ProfitRecord, error)

	GetSetting(key string) (*models.Setting, error)
	PutSetting(setting *models.Setting) error

	Close() error
}
