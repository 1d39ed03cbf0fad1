package society

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/fredSavings/pkg/finance"
	"github.com/mcclellann/fredSavings/pkg/metrics"
	"github.com/mcclellann/fredSavings/pkg/models"
	"github.com/mcclellann/fredSavings/pkg/notify"
	"github.com/mcclellann/fredSavings/pkg/store"
	"github.com/shopspring/decimal"
)

// DistributionRequest declares a profit pool to split across members.
// ExpectedKey, when set, must match the key of the recomputed proposal.
type DistributionRequest struct {
	Pool        decimal.Decimal `json:"pool"`
	Basis       string          `json:"basis"`
	Description string          `json:"description" validate:"required,max=200"`
	ExpectedKey string          `json:"key,omitempty"`
}

func (svc *Service) propose(req DistributionRequest) (finance.Distribution, error) {
	req.Description = strings.TrimSpace(req.Description)
	var fields []FieldError
	if err := checkStruct(svc.validate, req); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return finance.Distribution{}, err
		}
		fields = append(fields, verr.Fields...)
	}
	if !req.Pool.IsPositive() {
		fields = append(fields, FieldError{Field: "pool", Error: "must be greater than 0"})
	}
	basis, err := finance.ParseBasis(req.Basis)
	if err != nil {
		fields = append(fields, FieldError{Field: "basis", Error: "must be equity or deposits"})
	}
	if len(fields) > 0 {
		return finance.Distribution{}, NewValidationError(errInvalidInput, fields...)
	}

	snap, err := svc.Snapshot()
	if err != nil {
		return finance.Distribution{}, err
	}
	return finance.ProposeDistribution(snap, req.Pool, basis, req.Description, svc.now()), nil
}

// ProposeDistribution previews an allocation without writing anything.
func (svc *Service) ProposeDistribution(adminID uuid.UUID, req DistributionRequest) (finance.Distribution, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return finance.Distribution{}, err
	}
	d, err := svc.propose(req)
	if err != nil {
		return d, err
	}
	svc.recordWarnings(d.Warnings)
	return d, nil
}

// ApplyDistribution recomputes the proposal and persists it at most once per key.
func (svc *Service) ApplyDistribution(adminID uuid.UUID, req DistributionRequest) (*models.DistributionRun, finance.Distribution, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return nil, finance.Distribution{}, err
	}
	d, err := svc.propose(req)
	if err != nil {
		return nil, d, err
	}
	if req.ExpectedKey != "" && req.ExpectedKey != d.Key {
		metrics.Distributions.WithLabelValues("stale").Inc()
		return nil, d, ErrStaleProposal
	}

	now := svc.now()
	run := &models.DistributionRun{
		ID:          uuid.New(),
		Key:         d.Key,
		Pool:        d.Pool,
		Capital:     d.Capital,
		Basis:       string(d.Basis),
		Description: d.Description,
		CreatedAt:   now,
	}
	records := d.Records(run.ID, now)

	if err := svc.storage.ApplyDistribution(run, records); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			metrics.Distributions.WithLabelValues("duplicate").Inc()
			return nil, d, ErrDistributionApplied
		}
		return nil, d, fmt.Errorf("failed to apply distribution: %w", err)
	}
	metrics.Distributions.WithLabelValues("applied").Inc()

	svc.logger.Info().
		Str("distribution_id", run.ID.String()).
		Str("key", run.Key).
		Str("pool", run.Pool.String()).
		Str("allocated", d.TotalAllocated().String()).
		Int("records", len(records)).
		Msg("distribution applied")

	svc.notifyRecipients(records, d.Description)
	return run, d, nil
}

func (svc *Service) notifyRecipients(records []models.ProfitRecord, description string) {
	messages := make([]*notify.Message, 0, len(records))
	for _, r := range records {
		member, err := svc.storage.GetMember(r.MemberID)
		if err != nil {
			continue
		}
		messages = append(messages, &notify.Message{
			To:      memberAddress(member),
			Subject: "Profit distributed to your account",
			Text:    fmt.Sprintf("Hello %s, %s has been credited to you for %q.", member.Name, r.AmountEarned, description),
		})
	}
	if len(messages) > 0 {
		svc.mailer.SendMessages(messages...)
	}
}

func (svc *Service) ListDistributionRuns(adminID uuid.UUID) ([]*models.DistributionRun, error) {
	if _, err := svc.requireAdmin(adminID); err != nil {
		return nil, err
	}
	return svc.storage.GetDistributionRuns()
}
