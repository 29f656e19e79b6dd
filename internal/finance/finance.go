// Package finance содержит чистые правила расчёта займов и позиций участников.
package finance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/model"
)

// MaxLoanMultiplier задаёт отношение лимита займа к сумме уплаченных взносов.
const MaxLoanMultiplier = 3

// ErrIneligible возвращается при расчёте лимита для участника, не имеющего права на займ.
var ErrIneligible = errors.New("member is not eligible for a loan")

// Причины отказа в займе.
const (
	ReasonInactive    = "member is not active"
	ReasonNoFees      = "member has not paid any membership fee"
	ReasonOverdueLoan = "member has an overdue loan"
)

var hundred = decimal.NewFromInt(100)

// RoundMoney округляет сумму до копеек по правилу half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// DeriveStatus вычисляет статус займа на момент now. REPAID не меняется.
func DeriveStatus(l model.Loan, now time.Time) model.LoanStatus {
	if l.Status == model.LoanStatusRepaid {
		return model.LoanStatusRepaid
	}
	if l.DueDate.Before(now) {
		return model.LoanStatusOverdue
	}
	return model.LoanStatusActive
}

// IsOverdue сообщает, просрочен ли займ на момент now.
func IsOverdue(l model.Loan, now time.Time) bool {
	switch l.Status {
	case model.LoanStatusOverdue:
		return true
	case model.LoanStatusActive:
		return l.DueDate.Before(now)
	}
	return false
}

// Interest возвращает начисленные проценты по займу.
func Interest(l model.Loan) decimal.Decimal {
	return l.Amount.Mul(l.InterestRate)
}

// Penalty возвращает штраф за просрочку; для непросроченного займа он равен нулю.
func Penalty(l model.Loan, now time.Time) decimal.Decimal {
	if !IsOverdue(l, now) {
		return decimal.Zero
	}
	return l.Amount.Mul(l.PenaltyRate)
}

// TotalAmountDue возвращает сумму к погашению: основной долг, проценты и штраф.
func TotalAmountDue(l model.Loan, now time.Time) decimal.Decimal {
	if l.Amount.IsZero() {
		return decimal.Zero
	}
	return RoundMoney(l.Amount.Add(Interest(l)).Add(Penalty(l, now)))
}

// DaysOverdue возвращает число календарных дней между датой погашения и now.
func DaysOverdue(l model.Loan, now time.Time) int {
	loc := now.Location()
	today := calendarDay(now, loc)
	due := calendarDay(l.DueDate, loc)
	if !due.Before(today) {
		return 0
	}
	return int(today.Sub(due) / (24 * time.Hour))
}

// calendarDay переносит дату t в зоне loc на полночь UTC, чтобы переходы на
// летнее время не меняли длину суток.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IneligibilityReasons возвращает все нарушенные условия права на займ.
// Пустой результат означает, что участник может получить займ.
func IneligibilityReasons(m *model.Member, now time.Time) []string {
	var reasons []string
	if !m.Active {
		reasons = append(reasons, ReasonInactive)
	}
	if len(m.Fees) == 0 {
		reasons = append(reasons, ReasonNoFees)
	}
	for _, l := range m.Loans {
		if IsOverdue(l, now) {
			reasons = append(reasons, ReasonOverdueLoan)
			break
		}
	}
	return reasons
}

// TotalFees возвращает сумму уплаченных участником взносов.
func TotalFees(m *model.Member) decimal.Decimal {
	total := decimal.Zero
	for _, f := range m.Fees {
		total = total.Add(f.Amount)
	}
	return total
}

// MaxLoanAmount возвращает максимальную сумму займа участника.
func MaxLoanAmount(m *model.Member, now time.Time) (decimal.Decimal, error) {
	if reasons := IneligibilityReasons(m, now); len(reasons) > 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrIneligible, strings.Join(reasons, "; "))
	}
	return RoundMoney(TotalFees(m).Mul(decimal.NewFromInt(MaxLoanMultiplier))), nil
}

// Remaining возвращает чистую позицию участника: взносы минус штрафы.
func Remaining(contributions, penalties decimal.Decimal) decimal.Decimal {
	return contributions.Sub(penalties)
}

// ToCents переводит сумму в целые копейки.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromCents переводит копейки в сумму.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
