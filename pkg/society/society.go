// Package society holds the portal's business operations: membership, the instalment
// review workflow, fixed deposits, profit distribution and dashboards. All figures
// come from pkg/finance over a freshly loaded snapshot.
package society

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/finance"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/mcclellann/fredSavings/pkg/notify"
	"github.com/mcclellann/fredSavings/pkg/proofs"
	"github.com/mcclellann/fredSavings/pkg/store"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Service handles the business logic of the society over a Storage implementation.
type Service struct {
	storage  store.Storage
	proofs   proofs.Store
	mailer   notify.Mailer
	logger   zerolog.Logger
	validate *validator.Validate
	now      func() time.Time

	// adminInbox also receives admin notifications when set.
	adminInbox *mail.Address
}

func NewService(s store.Storage, p proofs.Store, m notify.Mailer, logger zerolog.Logger) *Service {
	return &Service{
		storage:  s,
		proofs:   p,
		mailer:   m,
		logger:   logger,
		validate: newValidator(),
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (svc *Service) SetClock(now func() time.Time) {
	svc.now = now
}

// SetAdminInbox copies admin notifications to addr.
func (svc *Service) SetAdminInbox(addr string) {
	if addr == "" {
		svc.adminInbox = nil
		return
	}
	svc.adminInbox = &mail.Address{Address: addr}
}

// Snapshot loads every record the calculation engine needs.
func (svc *Service) Snapshot() (finance.Snapshot, error) {
	return LoadSnapshot(svc.storage)
}

// LoadSnapshot fetches all members, instalments, deposits and profit records.
func LoadSnapshot(s store.Storage) (finance.Snapshot, error) {
	var snap finance.Snapshot

	members, err := s.GetAllMembers()
	if err != nil {
		return snap, fmt.Errorf("load members: %w", err)
	}
	installments, err := s.GetInstallments(store.InstallmentFilter{})
	if err != nil {
		return snap, fmt.Errorf("load installments: %w", err)
	}
	deposits, err := s.GetAllFixedDeposits()
	if err != nil {
		return snap, fmt.Errorf("load fixed deposits: %w", err)
	}
	profits, err := s.GetAllProfitRecords()
	if err != nil {
		return snap, fmt.Errorf("load profit records: %w", err)
	}

	snap.Members = make([]models.Member, 0, len(members))
	for _, m := range members {
		snap.Members = append(snap.Members, *m)
	}
	snap.Installments = make([]models.Installment, 0, len(installments))
	for _, i := range installments {
		snap.Installments = append(snap.Installments, *i)
	}
	snap.Deposits = make([]models.FixedDeposit, 0, len(deposits))
	for _, d := range deposits {
		snap.Deposits = append(snap.Deposits, *d)
	}
	snap.ProfitRecords = make([]models.ProfitRecord, 0, len(profits))
	for _, p := range profits {
		snap.ProfitRecords = append(snap.ProfitRecords, *p)
	}
	return snap, nil
}

// requireAdmin returns the acting member if they are an active admin.
func (svc *Service) requireAdmin(adminID uuid.UUID) (*models.Member, error) {
	admin, err := svc.storage.GetMember(adminID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if !admin.IsAdmin || admin.Status != models.MemberStatusActive {
		return nil, ErrForbidden
	}
	return admin, nil
}

// requireMember returns the acting member if they exist and are active.
func (svc *Service) requireMember(actorID uuid.UUID) (*models.Member, error) {
	member, err := svc.storage.GetMember(actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if member.Status != models.MemberStatusActive {
		return nil, ErrMemberNotActive
	}
	return member, nil
}

func (svc *Service) adminRecipients() []mail.Address {
	var to []mail.Address
	members, err := svc.storage.GetAllMembers()
	if err != nil {
		svc.logger.Error().Err(err).Msg("listing admins for notification")
	}
	for _, m := range members {
		if m.IsAdmin && m.Status == models.MemberStatusActive {
			to = append(to, mail.Address{Name: m.Name, Address: m.Email})
		}
	}
	if svc.adminInbox != nil {
		to = append(to, *svc.adminInbox)
	}
	return to
}

func memberAddress(m *models.Member) []mail.Address {
	return []mail.Address{{Name: m.Name, Address: m.Email}}
}

// Registration is the self-service signup form.
type Registration struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Register creates a pending member and tells the admins.
func (svc *Service) Register(reg Registration) (*models.Member, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	if err := checkStruct(svc.validate, reg); err != nil {
		return nil, err
	}

	member, err := svc.newMember(reg, false)
	if err != nil {
		return nil, err
	}

	svc.logger.Info().Str("member_id", member.ID.String()).Msg("member registered")
	svc.mailer.SendMessages(&notify.Message{
		To:      svc.adminRecipients(),
		Subject: "New member awaiting approval",
		Text:    fmt.Sprintf("%s <%s> registered and is waiting for approval.", member.Name, member.Email),
	})
	return member, nil
}

func (svc *Service) newMember(reg Registration, admin bool) (*models.Member, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := svc.now()
	member := &models.Member{
		ID:           uuid.New(),
		Name:         reg.Name,
		Email:        reg.Email,
		PasswordHash: hash,
		Status:       models.MemberStatusPending,
		IsAdmin:      admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if admin {
		member.Status = models.MemberStatusActive
	}

	if err := svc.storage.CreateMember(member); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, NewValidationError(err, FieldError{Field: "email", Error: "a member with this email already exists"})
		}
		return nil, fmt.Errorf("failed to store member: %w", err)
	}
	return member, nil
}

// EnsureAdmin creates an active admin account unless one with that email exists.
func (svc *Service) EnsureAdmin(reg Registration) (*models.Member, error) {
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	if existing, err := svc.storage.GetMemberByEmail(reg.Email); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := checkStruct(svc.validate, reg); err != nil {
		return nil, err
	}
	return svc.newMember(reg, true)
}

// Authenticate verifies credentials and returns the member record.
func (svc *Service) Authenticate(email, password string) (*models.Member, error) {
	member, err := svc.storage.GetMemberByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(member.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if member.Status != models.MemberStatusActive {
		return nil, ErrMemberNotActive
	}
	return member, nil
}

// ActivateMember approves a pending registration.
func (svc *Service) ActivateMember(adminID, memberID uuid.UUID) (*models.Member, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return nil, err
	}
	member, err := svc.storage.GetMember(memberID)
	if err != nil {
		return nil, err
	}
	if member.Status == models.MemberStatusActive {
		return member, nil
	}

	member.Status = models.MemberStatusActive
	member.UpdatedAt = svc.now()
	if err := svc.storage.UpdateMember(member); err != nil {
		return nil, fmt.Errorf("failed to activate member: %w", err)
	}

	svc.logger.Info().Str("member_id", member.ID.String()).Str("admin_id", adminID.String()).Msg("member activated")
	svc.mailer.SendMessages(&notify.Message{
		To:      memberAddress(member),
		Subject: "Your membership is active",
		Text:    fmt.Sprintf("Hello %s, your account has been approved. You can now sign in and submit instalments.", member.Name),
	})
	return member, nil
}

func (svc *Service) GetMember(id uuid.UUID) (*models.Member, error) {
	return svc.storage.GetMember(id)
}

// ListMembers is admin-only since it exposes every member's email.
func (svc *Service) ListMembers(adminID uuid.UUID) ([]*models.Member, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return nil, err
	}
	return svc.storage.GetAllMembers()
}

func (svc *Service) GetSetting(key string) (*models.Setting, error) {
	return svc.storage.GetSetting(key)
}

func (svc *Service) PutSetting(adminID uuid.UUID, key, value string) (*models.Setting, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, NewValidationError(errInvalidInput, FieldError{Field: "key", Error: "this field is required"})
	}
	setting := &models.Setting{Key: key, Value: value, UpdatedAt: svc.now()}
	if err := svc.storage.PutSetting(setting); err != nil {
		return nil, err
	}
	return setting, nil
}
