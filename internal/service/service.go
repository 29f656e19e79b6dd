// Package service реализует бизнес-логику финансовых обязательств участников:
// займы, накопительные группы, взносы и штрафы.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/model"
)

// MemberDirectory предоставляет участников ассоциации только для чтения.
type MemberDirectory interface {
	FindMember(ctx context.Context, id int64) (*model.Member, error)
}

// LoanRepository описывает хранилище займов.
type LoanRepository interface {
	CreateLoan(ctx context.Context, memberID int64, build func(m *model.Member) (*model.Loan, error)) (*model.Loan, error)
	GetLoan(ctx context.Context, id int64) (*model.Loan, error)
	ModifyLoan(ctx context.Context, id int64, fn func(l *model.Loan) error) (*model.Loan, error)
	RepayLoan(ctx context.Context, id int64, fn func(l *model.Loan) error) (*model.Loan, error)
	SoftDeleteLoan(ctx context.Context, id int64) error
	ListLoans(ctx context.Context, f model.LoanFilter, now time.Time) ([]model.Loan, error)
	ListUnsettledLoans(ctx context.Context) ([]model.Loan, error)
	ListOverdueLoans(ctx context.Context, now time.Time) ([]model.Loan, error)
	ListRepayments(ctx context.Context, loanID int64) ([]model.Repayment, error)
	SumLoansByMember(ctx context.Context, memberID int64) (decimal.Decimal, error)
}

// GroupRepository описывает хранилище накопительных групп и раундов.
type GroupRepository interface {
	CreateGroup(ctx context.Context, g *model.RotatingGroup) error
	GetGroup(ctx context.Context, id int64) (*model.RotatingGroup, error)
	ListGroups(ctx context.Context) ([]model.RotatingGroup, error)
	UpdateGroup(ctx context.Context, id int64, fn func(g *model.RotatingGroup) error) (*model.RotatingGroup, error)
	DeleteGroup(ctx context.Context, id int64) error
	AddGroupMember(ctx context.Context, groupID, memberID int64, check func(g *model.RotatingGroup) error) (*model.RotatingGroup, error)
	RemoveGroupMember(ctx context.Context, groupID, memberID int64) error

	CreateRound(ctx context.Context, groupID int64, build func(g *model.RotatingGroup, existing []model.Round) (*model.Round, error)) (*model.Round, error)
	GetRound(ctx context.Context, id int64) (*model.Round, error)
	ListRounds(ctx context.Context, groupID int64) ([]model.Round, error)
	UpdateRound(ctx context.Context, id int64, fn func(rd *model.Round) error) (*model.Round, error)
	DeleteRound(ctx context.Context, id int64) error
}

// LedgerRepository описывает хранилище взносов и штрафов.
type LedgerRepository interface {
	CreateContribution(ctx context.Context, c *model.Contribution, unique bool) error
	GetContribution(ctx context.Context, id int64) (*model.Contribution, error)
	UpdateContribution(ctx context.Context, id int64, fn func(c *model.Contribution) error) (*model.Contribution, error)
	DeleteContribution(ctx context.Context, id int64) error
	ListContributionsByRound(ctx context.Context, roundID int64) ([]model.Contribution, error)
	ListContributionsByMember(ctx context.Context, memberID int64) ([]model.Contribution, error)

	CreatePenalty(ctx context.Context, p *model.Penalty) error
	GetPenalty(ctx context.Context, id int64) (*model.Penalty, error)
	UpdatePenalty(ctx context.Context, id int64, fn func(p *model.Penalty) error) (*model.Penalty, error)
	DeletePenalty(ctx context.Context, id int64) error
	ListPenaltiesByRound(ctx context.Context, roundID int64) ([]model.Penalty, error)
	ListPenaltiesByMember(ctx context.Context, memberID int64) ([]model.Penalty, error)

	SumContributionsByMember(ctx context.Context, memberID int64) (decimal.Decimal, error)
	SumPenaltiesByMember(ctx context.Context, memberID int64) (decimal.Decimal, error)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	MemberDirectory
	LoanRepository
	GroupRepository
	LedgerRepository
	Close() error
}

// Publisher принимает доменные события после успешного перехода состояния.
type Publisher interface {
	Publish(ctx context.Context, e model.Event)
}

// Options задаёт необязательные проверки инвариантов.
type Options struct {
	// StrictRounds требует, чтобы номер нового раунда был на единицу больше последнего.
	StrictRounds bool
	// StrictContributions запрещает повторный взнос участника в один раунд.
	StrictContributions bool
}

// Service содержит бизнес-логику финансовых обязательств.
type Service struct {
	repo      Repository
	publisher Publisher
	opts      Options
	now       func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и издателем событий.
func NewService(repo Repository, publisher Publisher, opts Options) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) publish(ctx context.Context, t model.EventType, entityID, memberID int64, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, model.NewEvent(t, entityID, memberID, s.now(), payload))
}
