package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/model"
	"github.com/mmeshcher/association-finance/internal/repository"
	"github.com/mmeshcher/association-finance/internal/validation"
)

// GroupInput содержит параметры накопительной группы.
type GroupInput struct {
	Name               string
	Description        string
	ContributionAmount decimal.Decimal
	MaxMembers         *int
	RotationFrequency  string
	StartDate          time.Time
	EndDate            *time.Time
	// Status учитывается только при обновлении; пустое значение оставляет статус прежним.
	Status string
}

// RoundInput содержит параметры раунда.
type RoundInput struct {
	RoundNumber int
	StartDate   time.Time
	EndDate     *time.Time
	// Status учитывается только при обновлении; пустое значение оставляет статус прежним.
	Status string
}

func validateGroup(in GroupInput) (model.RotationFrequency, error) {
	if strings.TrimSpace(in.Name) == "" {
		return "", invalidf("name is required")
	}
	freq, err := validation.RotationFrequency(in.RotationFrequency)
	if err != nil {
		return "", invalid(err)
	}
	if err := validation.PositiveAmount("contribution_amount", in.ContributionAmount); err != nil {
		return "", invalid(err)
	}
	if in.MaxMembers != nil && *in.MaxMembers <= 0 {
		return "", invalidf("max_members must be positive")
	}
	if err := validation.DateRange(in.StartDate, in.EndDate); err != nil {
		return "", invalid(err)
	}
	return freq, nil
}

// groupTransitionAllowed разрешает только ACTIVE -> COMPLETED|CANCELLED.
func groupTransitionAllowed(from, to model.GroupStatus) bool {
	if from == to {
		return true
	}
	return from == model.GroupStatusActive &&
		(to == model.GroupStatusCompleted || to == model.GroupStatusCancelled)
}

// roundTransitionAllowed разрешает только UPCOMING -> ACTIVE -> COMPLETED.
func roundTransitionAllowed(from, to model.RoundStatus) bool {
	switch {
	case from == to:
		return true
	case from == model.RoundStatusUpcoming:
		return to == model.RoundStatusActive
	case from == model.RoundStatusActive:
		return to == model.RoundStatusCompleted
	}
	return false
}

// CreateRotatingGroup создаёт активную группу без участников и раундов.
func (s *Service) CreateRotatingGroup(ctx context.Context, in GroupInput) (*model.RotatingGroup, error) {
	freq, err := validateGroup(in)
	if err != nil {
		return nil, err
	}

	g := &model.RotatingGroup{
		Name:               strings.TrimSpace(in.Name),
		Description:        in.Description,
		ContributionAmount: in.ContributionAmount,
		MaxMembers:         in.MaxMembers,
		RotationFrequency:  freq,
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		Status:             model.GroupStatusActive,
		MemberIDs:          []int64{},
	}

	if err := s.repo.CreateGroup(ctx, g); err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventGroupCreated, g.ID, 0, g)
	return g, nil
}

// GetRotatingGroup возвращает группу по идентификатору.
func (s *Service) GetRotatingGroup(ctx context.Context, id int64) (*model.RotatingGroup, error) {
	return s.repo.GetGroup(ctx, id)
}

// ListRotatingGroups возвращает все группы.
func (s *Service) ListRotatingGroups(ctx context.Context) ([]model.RotatingGroup, error) {
	return s.repo.ListGroups(ctx)
}

// UpdateRotatingGroup заменяет параметры группы. Смена статуса допускается
// только из ACTIVE; покинувшая ACTIVE группа больше не меняется.
func (s *Service) UpdateRotatingGroup(ctx context.Context, id int64, in GroupInput) (*model.RotatingGroup, error) {
	freq, err := validateGroup(in)
	if err != nil {
		return nil, err
	}

	var status model.GroupStatus
	if in.Status != "" {
		if status, err = validation.GroupStatus(in.Status); err != nil {
			return nil, invalid(err)
		}
	}

	g, err := s.repo.UpdateGroup(ctx, id, func(g *model.RotatingGroup) error {
		if g.Status != model.GroupStatusActive {
			return conflictf("rotating group %d is %s", g.ID, g.Status)
		}
		if status != "" && !groupTransitionAllowed(g.Status, status) {
			return conflictf("rotating group %d cannot move from %s to %s", g.ID, g.Status, status)
		}
		if in.MaxMembers != nil && len(g.MemberIDs) > *in.MaxMembers {
			return conflictf("rotating group %d already has %d members", g.ID, len(g.MemberIDs))
		}

		g.Name = strings.TrimSpace(in.Name)
		g.Description = in.Description
		g.ContributionAmount = in.ContributionAmount
		g.MaxMembers = in.MaxMembers
		g.RotationFrequency = freq
		g.StartDate = in.StartDate
		g.EndDate = in.EndDate
		if status != "" {
			g.Status = status
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventGroupUpdated, g.ID, 0, g)
	return g, nil
}

// DeleteRotatingGroup удаляет группу вместе с раундами. Группа, в раундах которой
// есть взносы или штрафы, не удаляется.
func (s *Service) DeleteRotatingGroup(ctx context.Context, id int64) error {
	err := s.repo.DeleteGroup(ctx, id)
	if errors.Is(err, repository.ErrLedgerNotEmpty) {
		return conflictf("rotating group %d has contributions or penalties", id)
	}
	return err
}

// AddGroupMember добавляет участника в активную группу с учётом ограничения численности.
func (s *Service) AddGroupMember(ctx context.Context, groupID, memberID int64) (*model.RotatingGroup, error) {
	if _, err := s.repo.FindMember(ctx, memberID); err != nil {
		return nil, err
	}

	g, err := s.repo.AddGroupMember(ctx, groupID, memberID, func(g *model.RotatingGroup) error {
		if g.Status != model.GroupStatusActive {
			return conflictf("rotating group %d is %s", g.ID, g.Status)
		}
		if slices.Contains(g.MemberIDs, memberID) {
			return conflictf("member %d already belongs to rotating group %d", memberID, g.ID)
		}
		if g.MaxMembers != nil && len(g.MemberIDs) >= *g.MaxMembers {
			return conflictf("rotating group %d is full (%d members)", g.ID, *g.MaxMembers)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventGroupMemberAdded, g.ID, memberID, nil)
	return g, nil
}

// RemoveGroupMember исключает участника из группы.
func (s *Service) RemoveGroupMember(ctx context.Context, groupID, memberID int64) error {
	return s.repo.RemoveGroupMember(ctx, groupID, memberID)
}

// ListGroupMembers возвращает участников группы в порядке вступления.
func (s *Service) ListGroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	g, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g.MemberIDs, nil
}

// CreateRound добавляет в группу раунд со статусом UPCOMING.
func (s *Service) CreateRound(ctx context.Context, groupID int64, in RoundInput) (*model.Round, error) {
	if in.RoundNumber <= 0 {
		return nil, invalidf("round_number must be positive")
	}
	if err := validation.DateRange(in.StartDate, in.EndDate); err != nil {
		return nil, invalid(err)
	}

	rd, err := s.repo.CreateRound(ctx, groupID, func(g *model.RotatingGroup, existing []model.Round) (*model.Round, error) {
		if g.Status != model.GroupStatusActive {
			return nil, conflictf("rotating group %d is %s", g.ID, g.Status)
		}
		if s.opts.StrictRounds {
			last := 0
			for _, r := range existing {
				last = max(last, r.RoundNumber)
			}
			if in.RoundNumber != last+1 {
				return nil, conflictf("round number %d is not next after %d", in.RoundNumber, last)
			}
		}
		return &model.Round{
			GroupID:     g.ID,
			RoundNumber: in.RoundNumber,
			StartDate:   in.StartDate,
			EndDate:     in.EndDate,
			Status:      model.RoundStatusUpcoming,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventRoundCreated, rd.ID, 0, rd)
	return rd, nil
}

// GetRound возвращает раунд по идентификатору.
func (s *Service) GetRound(ctx context.Context, id int64) (*model.Round, error) {
	return s.repo.GetRound(ctx, id)
}

// ListRounds возвращает раунды группы по возрастанию номера.
func (s *Service) ListRounds(ctx context.Context, groupID int64) ([]model.Round, error) {
	return s.repo.ListRounds(ctx, groupID)
}

// UpdateRound заменяет параметры раунда; статус меняется только вперёд по циклу
// UPCOMING -> ACTIVE -> COMPLETED.
func (s *Service) UpdateRound(ctx context.Context, id int64, in RoundInput) (*model.Round, error) {
	if in.RoundNumber <= 0 {
		return nil, invalidf("round_number must be positive")
	}
	if err := validation.DateRange(in.StartDate, in.EndDate); err != nil {
		return nil, invalid(err)
	}

	var status model.RoundStatus
	if in.Status != "" {
		var err error
		if status, err = validation.RoundStatus(in.Status); err != nil {
			return nil, invalid(err)
		}
	}

	rd, err := s.repo.UpdateRound(ctx, id, func(rd *model.Round) error {
		if status != "" && !roundTransitionAllowed(rd.Status, status) {
			return conflictf("round %d cannot move from %s to %s", rd.ID, rd.Status, status)
		}
		if s.opts.StrictRounds && in.RoundNumber != rd.RoundNumber {
			return conflictf("round %d cannot be renumbered from %d to %d", rd.ID, rd.RoundNumber, in.RoundNumber)
		}
		rd.RoundNumber = in.RoundNumber
		rd.StartDate = in.StartDate
		rd.EndDate = in.EndDate
		if status != "" {
			rd.Status = status
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventRoundUpdated, rd.ID, 0, rd)
	return rd, nil
}

// DeleteRound удаляет раунд. Раунд со взносами или штрафами не удаляется.
func (s *Service) DeleteRound(ctx context.Context, id int64) error {
	err := s.repo.DeleteRound(ctx, id)
	if errors.Is(err, repository.ErrLedgerNotEmpty) {
		return conflictf("round %d has contributions or penalties", id)
	}
	return err
}
