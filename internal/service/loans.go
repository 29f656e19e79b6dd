package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/finance"
	"github.com/mmeshcher/association-finance/internal/model"
	"github.com/mmeshcher/association-finance/internal/validation"
)

// CreateLoanInput содержит параметры нового займа.
type CreateLoanInput struct {
	MemberID      int64
	Amount        decimal.Decimal
	InterestRate  decimal.Decimal
	PenaltyRate   decimal.Decimal
	DueDate       time.Time
	DepositAmount *decimal.Decimal
	Notes         string
}

// RepaymentResult описывает событие погашения займа.
type RepaymentResult struct {
	Amount decimal.Decimal  `json:"amount"`
	Status model.LoanStatus `json:"status"`
}

func validateLoanTerms(amount, interestRate, penaltyRate decimal.Decimal, dueDate time.Time, deposit *decimal.Decimal) error {
	if err := validation.PositiveAmount("amount", amount); err != nil {
		return invalid(err)
	}
	if err := validation.Rate("interest_rate", interestRate); err != nil {
		return invalid(err)
	}
	if err := validation.Rate("penalty_rate", penaltyRate); err != nil {
		return invalid(err)
	}
	if dueDate.IsZero() {
		return invalidf("due_date is required")
	}
	if deposit != nil {
		if err := validation.PositiveAmount("deposit_amount", *deposit); err != nil {
			return invalid(err)
		}
	}
	return nil
}

// CreateLoan выдаёт займ участнику после проверки права на займ и лимита.
// Проверки и запись выполняются атомарно под блокировкой участника.
func (s *Service) CreateLoan(ctx context.Context, in CreateLoanInput) (*model.Loan, error) {
	if err := validateLoanTerms(in.Amount, in.InterestRate, in.PenaltyRate, in.DueDate, in.DepositAmount); err != nil {
		return nil, err
	}

	now := s.now()

	loan, err := s.repo.CreateLoan(ctx, in.MemberID, func(m *model.Member) (*model.Loan, error) {
		if reasons := finance.IneligibilityReasons(m, now); len(reasons) > 0 {
			return nil, &IneligibleError{MemberID: m.ID, Reasons: reasons}
		}

		maxAmount, err := finance.MaxLoanAmount(m, now)
		if err != nil {
			return nil, err
		}
		if in.Amount.GreaterThan(maxAmount) {
			return nil, &LimitExceededError{Requested: in.Amount, Max: maxAmount}
		}

		l := &model.Loan{
			MemberID:      m.ID,
			Amount:        in.Amount,
			InterestRate:  in.InterestRate,
			PenaltyRate:   in.PenaltyRate,
			LoanDate:      now,
			DueDate:       in.DueDate,
			Status:        model.LoanStatusActive,
			DepositAmount: in.DepositAmount,
			Notes:         in.Notes,
		}
		l.Status = finance.DeriveStatus(*l, now)
		return l, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventLoanCreated, loan.ID, loan.MemberID, loan)
	return loan, nil
}

// RepayLoan фиксирует погашение займа. Займ переходит в REPAID, только если
// сумма в точности равна полной сумме к погашению.
func (s *Service) RepayLoan(ctx context.Context, loanID int64, amount decimal.Decimal) (*model.Loan, error) {
	if err := validation.PositiveAmount("amount", amount); err != nil {
		return nil, invalid(err)
	}

	now := s.now()

	loan, err := s.repo.RepayLoan(ctx, loanID, func(l *model.Loan) error {
		if l.Status == model.LoanStatusRepaid {
			return conflictf("loan %d is already repaid", l.ID)
		}

		due := finance.TotalAmountDue(*l, now)
		if amount.GreaterThan(due) {
			return invalidf("repayment %s exceeds total amount due %s", amount.StringFixed(2), due.StringFixed(2))
		}

		paid := amount
		l.AmountRepaid = &paid
		l.RepaymentDate = &now

		if amount.Equal(due) {
			l.Status = model.LoanStatusRepaid
			if l.ReturnDate == nil {
				l.ReturnDate = &now
			}
		}
		l.Status = finance.DeriveStatus(*l, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventLoanRepaid, loan.ID, loan.MemberID, RepaymentResult{Amount: amount, Status: loan.Status})
	return loan, nil
}

// GetLoan возвращает займ со статусом, вычисленным на текущий момент.
func (s *Service) GetLoan(ctx context.Context, loanID int64) (*model.Loan, error) {
	l, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	l.Status = finance.DeriveStatus(*l, s.now())
	return l, nil
}

// GetTotalAmountDue возвращает полную сумму к погашению по займу.
func (s *Service) GetTotalAmountDue(ctx context.Context, loanID int64) (decimal.Decimal, error) {
	l, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return finance.TotalAmountDue(*l, s.now()), nil
}

// IsOverdue сообщает, просрочен ли займ.
func (s *Service) IsOverdue(ctx context.Context, loanID int64) (bool, error) {
	l, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return false, err
	}
	return finance.IsOverdue(*l, s.now()), nil
}

// UpdateLoan заменяет изменяемые администратором поля займа и пересчитывает статус.
func (s *Service) UpdateLoan(ctx context.Context, loanID int64, upd model.LoanUpdate) (*model.Loan, error) {
	if err := validateLoanTerms(upd.Amount, upd.InterestRate, upd.PenaltyRate, upd.DueDate, upd.DepositAmount); err != nil {
		return nil, err
	}

	now := s.now()

	loan, err := s.repo.ModifyLoan(ctx, loanID, func(l *model.Loan) error {
		if l.Status == model.LoanStatusRepaid {
			if !l.Amount.Equal(upd.Amount) || !l.InterestRate.Equal(upd.InterestRate) || !l.PenaltyRate.Equal(upd.PenaltyRate) {
				return conflictf("loan %d is repaid, its terms cannot change", l.ID)
			}
		}

		l.Amount = upd.Amount
		l.InterestRate = upd.InterestRate
		l.PenaltyRate = upd.PenaltyRate
		l.DueDate = upd.DueDate
		if upd.ReturnDate != nil || l.Status != model.LoanStatusRepaid {
			l.ReturnDate = upd.ReturnDate
		}
		l.DepositAmount = upd.DepositAmount
		l.DepositRefunded = upd.DepositRefunded && upd.DepositAmount != nil
		l.Notes = upd.Notes
		l.Status = finance.DeriveStatus(*l, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventLoanUpdated, loan.ID, loan.MemberID, loan)
	return loan, nil
}

// DeleteLoan помечает займ удалённым.
func (s *Service) DeleteLoan(ctx context.Context, loanID int64) error {
	l, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDeleteLoan(ctx, loanID); err != nil {
		return err
	}
	s.publish(ctx, model.EventLoanDeleted, loanID, l.MemberID, nil)
	return nil
}

// RefundDeposit отмечает возврат залога по погашенному займу.
func (s *Service) RefundDeposit(ctx context.Context, loanID int64) (*model.Loan, error) {
	loan, err := s.repo.ModifyLoan(ctx, loanID, func(l *model.Loan) error {
		switch {
		case l.DepositAmount == nil:
			return conflictf("loan %d has no deposit", l.ID)
		case l.DepositRefunded:
			return conflictf("deposit of loan %d is already refunded", l.ID)
		case l.Status != model.LoanStatusRepaid:
			return conflictf("loan %d is not repaid", l.ID)
		}
		l.DepositRefunded = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, model.EventLoanUpdated, loan.ID, loan.MemberID, loan)
	return loan, nil
}

// ListRepayments возвращает историю погашений займа.
func (s *Service) ListRepayments(ctx context.Context, loanID int64) ([]model.Repayment, error) {
	return s.repo.ListRepayments(ctx, loanID)
}

func (s *Service) derive(loans []model.Loan) []model.Loan {
	now := s.now()
	for i := range loans {
		loans[i].Status = finance.DeriveStatus(loans[i], now)
	}
	return loans
}

// ListLoansByMember возвращает займы участника.
func (s *Service) ListLoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error) {
	m, err := s.repo.FindMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return s.derive(m.Loans), nil
}

// ListOverdueLoans возвращает займы, просроченные на текущий момент.
func (s *Service) ListOverdueLoans(ctx context.Context) ([]model.Loan, error) {
	loans, err := s.repo.ListOverdueLoans(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return s.derive(loans), nil
}

// ListActiveLoans возвращает все непогашенные займы.
func (s *Service) ListActiveLoans(ctx context.Context) ([]model.Loan, error) {
	loans, err := s.repo.ListUnsettledLoans(ctx)
	if err != nil {
		return nil, err
	}
	return s.derive(loans), nil
}

// ListOverdueLoansWithDays возвращает просроченные займы с числом дней просрочки.
func (s *Service) ListOverdueLoansWithDays(ctx context.Context) ([]model.OverdueLoan, error) {
	now := s.now()
	loans, err := s.repo.ListOverdueLoans(ctx, now)
	if err != nil {
		return nil, err
	}

	res := make([]model.OverdueLoan, 0, len(loans))
	for _, l := range loans {
		l.Status = finance.DeriveStatus(l, now)
		res = append(res, model.OverdueLoan{Loan: l, DaysOverdue: finance.DaysOverdue(l, now)})
	}
	return res, nil
}

// SearchLoans ищет займы по фильтру; незаданные условия игнорируются.
func (s *Service) SearchLoans(ctx context.Context, f model.LoanFilter) ([]model.Loan, error) {
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.GreaterThan(*f.MaxAmount) {
		return nil, invalidf("min_amount is greater than max_amount")
	}
	if f.DueFrom != nil && f.DueTo != nil && f.DueFrom.After(*f.DueTo) {
		return nil, invalidf("due_from is after due_to")
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, invalidf("unknown loan status %q", *f.Status)
	}

	loans, err := s.repo.ListLoans(ctx, f, s.now())
	if err != nil {
		return nil, err
	}
	return s.derive(loans), nil
}

// CalculateTotalLoansForMember возвращает сумму основного долга по всем займам участника.
func (s *Service) CalculateTotalLoansForMember(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	return s.repo.SumLoansByMember(ctx, memberID)
}

// CheckEligibility проверяет право участника на займ без создания займа.
func (s *Service) CheckEligibility(ctx context.Context, memberID int64) (*model.Eligibility, error) {
	m, err := s.repo.FindMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	e := eligibilityOf(m, s.now())
	return &e, nil
}

// CalculateMaxLoanAmount возвращает лимит займа участника.
// Для участника без права на займ возвращается IneligibleError.
func (s *Service) CalculateMaxLoanAmount(ctx context.Context, memberID int64) (decimal.Decimal, error) {
	m, err := s.repo.FindMember(ctx, memberID)
	if err != nil {
		return decimal.Zero, err
	}

	now := s.now()
	if reasons := finance.IneligibilityReasons(m, now); len(reasons) > 0 {
		return decimal.Zero, &IneligibleError{MemberID: m.ID, Reasons: reasons}
	}
	return finance.MaxLoanAmount(m, now)
}

func eligibilityOf(m *model.Member, now time.Time) model.Eligibility {
	e := model.Eligibility{MemberID: m.ID}
	e.Reasons = finance.IneligibilityReasons(m, now)
	e.Eligible = len(e.Reasons) == 0
	if e.Eligible {
		if maxAmount, err := finance.MaxLoanAmount(m, now); err == nil {
			e.MaxLoanAmount = &maxAmount
		}
	}
	return e
}
