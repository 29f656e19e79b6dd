package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/finance"
	"github.com/mmeshcher/association-finance/internal/model"
	"github.com/mmeshcher/association-finance/internal/repository"
	"github.com/mmeshcher/association-finance/internal/validation"
)

// PenaltyInput содержит параметры штрафа.
type PenaltyInput struct {
	MemberID    int64
	RoundID     int64
	Amount      decimal.Decimal
	Reason      string
	PenaltyType string
	PenaltyDate time.Time
}

// ContributionUpdate содержит изменяемые поля взноса.
type ContributionUpdate struct {
	Amount           decimal.Decimal
	ContributionDate time.Time
	Status           string
}

// requireMemberAndRound проверяет существование участника и раунда.
func (s *Service) requireMemberAndRound(ctx context.Context, memberID, roundID int64) error {
	if _, err := s.repo.FindMember(ctx, memberID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: id %d", err, memberID)
		}
		return err
	}
	if _, err := s.repo.GetRound(ctx, roundID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: id %d", err, roundID)
		}
		return err
	}
	return nil
}

// MakeContribution записывает оплаченный взнос участника в раунд.
func (s *Service) MakeContribution(ctx context.Context, memberID, roundID int64, amount decimal.Decimal, date time.Time) (*model.Contribution, error) {
	if err := validation.PositiveAmount("amount", amount); err != nil {
		return nil, invalid(err)
	}
	if err := s.requireMemberAndRound(ctx, memberID, roundID); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = s.now()
	}

	c := &model.Contribution{
		MemberID:         memberID,
		RoundID:          roundID,
		Amount:           amount,
		ContributionDate: date,
		Status:           model.ContributionStatusPaid,
	}

	if err := s.repo.CreateContribution(ctx, c, s.opts.StrictContributions); err != nil {
		if errors.Is(err, repository.ErrDuplicateContribution) {
			return nil, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return nil, err
	}

	s.publish(ctx, model.EventContributionCreated, c.ID, memberID, c)
	return c, nil
}

// GetContribution возвращает взнос по идентификатору.
func (s *Service) GetContribution(ctx context.Context, id int64) (*model.Contribution, error) {
	return s.repo.GetContribution(ctx, id)
}

// ListContributionsByRound возвращает взносы раунда.
func (s *Service) ListContributionsByRound(ctx context.Context, roundID int64) ([]model.Contribution, error) {
	if _, err := s.repo.GetRound(ctx, roundID); err != nil {
		return nil, err
	}
	return s.repo.ListContributionsByRound(ctx, roundID)
}

// ListContributionsByMember возвращает взносы участника.
func (s *Service) ListContributionsByMember(ctx context.Context, memberID int64) ([]model.Contribution, error) {
	return s.repo.ListContributionsByMember(ctx, memberID)
}

// UpdateContribution заменяет сумму, дату и статус взноса.
func (s *Service) UpdateContribution(ctx context.Context, id int64, upd ContributionUpdate) (*model.Contribution, error) {
	if err := validation.PositiveAmount("amount", upd.Amount); err != nil {
		return nil, invalid(err)
	}
	if upd.ContributionDate.IsZero() {
		return nil, invalidf("contribution_date is required")
	}

	return s.repo.UpdateContribution(ctx, id, func(c *model.Contribution) error {
		c.Amount = upd.Amount
		c.ContributionDate = upd.ContributionDate
		if st := strings.TrimSpace(upd.Status); st != "" {
			c.Status = strings.ToUpper(st)
		}
		return nil
	})
}

// DeleteContribution удаляет взнос.
func (s *Service) DeleteContribution(ctx context.Context, id int64) error {
	return s.repo.DeleteContribution(ctx, id)
}

// ApplyPenalty начисляет участнику штраф в рамках раунда.
func (s *Service) ApplyPenalty(ctx context.Context, in PenaltyInput) (*model.Penalty, error) {
	if err := validation.PositiveAmount("amount", in.Amount); err != nil {
		return nil, invalid(err)
	}
	if err := s.requireMemberAndRound(ctx, in.MemberID, in.RoundID); err != nil {
		return nil, err
	}
	if in.PenaltyDate.IsZero() {
		in.PenaltyDate = s.now()
	}

	p := &model.Penalty{
		MemberID:    in.MemberID,
		RoundID:     in.RoundID,
		Amount:      in.Amount,
		Reason:      in.Reason,
		PenaltyType: strings.ToUpper(strings.TrimSpace(in.PenaltyType)),
		PenaltyDate: in.PenaltyDate,
		Status:      model.PenaltyStatusPending,
	}

	if err := s.repo.CreatePenalty(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventPenaltyApplied, p.ID, p.MemberID, p)
	return p, nil
}

// GetPenalty возвращает штраф по идентификатору.
func (s *Service) GetPenalty(ctx context.Context, id int64) (*model.Penalty, error) {
	return s.repo.GetPenalty(ctx, id)
}

// ListPenaltiesByRound возвращает штрафы раунда.
func (s *Service) ListPenaltiesByRound(ctx context.Context, roundID int64) ([]model.Penalty, error) {
	if _, err := s.repo.GetRound(ctx, roundID); err != nil {
		return nil, err
	}
	return s.repo.ListPenaltiesByRound(ctx, roundID)
}

// ListPenaltiesByMember возвращает штрафы участника.
func (s *Service) ListPenaltiesByMember(ctx context.Context, memberID int64) ([]model.Penalty, error) {
	return s.repo.ListPenaltiesByMember(ctx, memberID)
}

// PayPenalty переводит штраф из PENDING в PAID.
func (s *Service) PayPenalty(ctx context.Context, id int64) (*model.Penalty, error) {
	p, err := s.repo.UpdatePenalty(ctx, id, func(p *model.Penalty) error {
		if p.Status == model.PenaltyStatusPaid {
			return conflictf("penalty %d is already paid", p.ID)
		}
		p.Status = model.PenaltyStatusPaid
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventPenaltyPaid, p.ID, p.MemberID, p)
	return p, nil
}

// DeletePenalty удаляет штраф.
func (s *Service) DeletePenalty(ctx context.Context, id int64) error {
	return s.repo.DeletePenalty(ctx, id)
}

// CalculateTotalContributionsForMember возвращает сумму всех взносов участника.
func (s *Service) CalculateTotalContributionsForMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	return s.repo.SumContributionsByMember(ctx, memberID)
}

// CalculateTotalPenaltiesForMember возвращает сумму всех штрафов участника.
func (s *Service) CalculateTotalPenaltiesForMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	return s.repo.SumPenaltiesByMember(ctx, memberID)
}

// CalculateRemainingAmountForMember возвращает взносы минус штрафы участника.
// Значение может быть отрицательным.
func (s *Service) CalculateRemainingAmountForMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	contributions, err := s.repo.SumContributionsByMember(ctx, memberID)
	if err != nil {
		return decimal.Zero, err
	}
	penalties, err := s.repo.SumPenaltiesByMember(ctx, memberID)
	if err != nil {
		return decimal.Zero, err
	}
	return finance.Remaining(contributions, penalties), nil
}

// MemberStanding собирает финансовую позицию участника из актуальных данных хранилища.
func (s *Service) MemberStanding(ctx context.Context, memberID int64) (*model.Standing, error) {
	m, err := s.repo.FindMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	contributions, err := s.repo.SumContributionsByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	penalties, err := s.repo.SumPenaltiesByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	loans, err := s.repo.SumLoansByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	return &model.Standing{
		MemberID:           memberID,
		TotalContributions: contributions,
		TotalPenalties:     penalties,
		Remaining:          finance.Remaining(contributions, penalties),
		TotalLoans:         loans,
		Eligibility:        eligibilityOf(m, s.now()),
	}, nil
}
