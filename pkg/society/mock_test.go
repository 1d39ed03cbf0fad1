package society

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/mcclellann/fredSavings/pkg/proofs"
	"github.com/mcclellann/fredSavings/pkg/store"
)

// MockStore is a simple in-memory implementation of the Storage interface for testing.
// Records are copied in and out so callers cannot mutate stored state.
type MockStore struct {
	mu           sync.Mutex
	members      map[uuid.UUID]models.Member
	installments map[uuid.UUID]models.Installment
	order        []uuid.UUID
	deposits     map[uuid.UUID]models.FixedDeposit
	runs         []models.DistributionRun
	profits      []models.ProfitRecord
	settings     map[string]models.Setting
}

var _ store.Storage = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{
		members:      make(map[uuid.UUID]models.Member),
		installments: make(map[uuid.UUID]models.Installment),
		deposits:     make(map[uuid.UUID]models.FixedDeposit),
		settings:     make(map[string]models.Setting),
	}
}

func (m *MockStore) CreateMember(member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.members {
		if existing.Email == member.Email {
			return fmt.Errorf("create member: %w", store.ErrDuplicate)
		}
	}
	m.members[member.ID] = *member
	return nil
}

func (m *MockStore) GetMember(id uuid.UUID) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &member, nil
}

func (m *MockStore) GetMemberByEmail(email string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range m.members {
		if member.Email == email {
			return &member, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MockStore) UpdateMember(member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[member.ID]; !ok {
		return store.ErrNotFound
	}
	m.members[member.ID] = *member
	return nil
}

func (m *MockStore) GetAllMembers() ([]*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := []*models.Member{}
	for _, member := range m.members {
		member := member
		members = append(members, &member)
	}
	return members, nil
}

func (m *MockStore) CreateInstallment(inst *models.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installments[inst.ID] = *inst
	m.order = append(m.order, inst.ID)
	return nil
}

func (m *MockStore) GetInstallment(id uuid.UUID) (*models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inst, nil
}

func (m *MockStore) UpdateInstallment(inst *models.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.installments[inst.ID]; !ok {
		return store.ErrNotFound
	}
	m.installments[inst.ID] = *inst
	return nil
}

func (m *MockStore) ReviewInstallment(inst *models.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.installments[inst.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != models.InstallmentStatusPending {
		return store.ErrConflict
	}
	current.Status = inst.Status
	current.ApprovedAt = inst.ApprovedAt
	current.ProofRef = ""
	m.installments[inst.ID] = current
	return nil
}

func (m *MockStore) GetInstallments(filter store.InstallmentFilter) ([]*models.Installment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Installment{}
	for _, id := range m.order {
		inst := m.installments[id]
		if filter.MemberID != uuid.Nil && inst.MemberID != filter.MemberID {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		out = append(out, &inst)
	}
	return out, nil
}

func (m *MockStore) CreateFixedDeposit(deposit *models.FixedDeposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits[deposit.ID] = *deposit
	return nil
}

func (m *MockStore) GetFixedDeposit(id uuid.UUID) (*models.FixedDeposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (m *MockStore) UpdateFixedDeposit(deposit *models.FixedDeposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deposits[deposit.ID]; !ok {
		return store.ErrNotFound
	}
	m.deposits[deposit.ID] = *deposit
	return nil
}

func (m *MockStore) DeleteFixedDeposit(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deposits[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.deposits, id)
	return nil
}

func (m *MockStore) GetAllFixedDeposits() ([]*models.FixedDeposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.FixedDeposit{}
	for _, d := range m.deposits {
		d := d
		out = append(out, &d)
	}
	return out, nil
}

func (m *MockStore) ApplyDistribution(run *models.DistributionRun, records []models.ProfitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Key == run.Key {
			return fmt.Errorf("apply distribution: %w", store.ErrDuplicate)
		}
	}
	m.runs = append(m.runs, *run)
	m.profits = append(m.profits, records...)
	return nil
}

func (m *MockStore) GetDistributionRuns() ([]*models.DistributionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.DistributionRun{}
	for _, r := range m.runs {
		r := r
		out = append(out, &r)
	}
	return out, nil
}

func (m *MockStore) GetAllProfitRecords() ([]*models.ProfitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.ProfitRecord{}
	for _, p := range m.profits {
		p := p
		out = append(out, &p)
	}
	return out, nil
}

func (m *MockStore) GetSetting(key string) (*models.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *MockStore) PutSetting(setting *models.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[setting.Key] = *setting
	return nil
}

func (m *MockStore) Close() error { return nil }

// memProofs keeps proof bytes in memory.
type memProofs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ proofs.Store = (*memProofs)(nil)

func newMemProofs() *memProofs {
	return &memProofs{objects: make(map[string][]byte)}
}

func (p *memProofs) Save(_ context.Context, memberID uuid.UUID, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(data, pngMagic) {
		return "", proofs.ErrNotImage
	}
	ref := "mem://" + memberID.String() + "/" + uuid.NewString()
	p.mu.Lock()
	p.objects[ref] = data
	p.mu.Unlock()
	return ref, nil
}

func (p *memProofs) Delete(_ context.Context, ref string) error {
	p.mu.Lock()
	delete(p.objects, ref)
	p.mu.Unlock()
	return nil
}

func (p *memProofs) has(ref string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.objects[ref]
	return ok
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")
