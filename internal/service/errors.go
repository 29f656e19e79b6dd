package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/repository"
	"github.com/mmeshcher/association-finance/internal/validation"
)

var (
	// ErrNotFound возвращается, если участник, займ, группа, раунд, взнос или штраф не найдены.
	ErrNotFound = repository.ErrNotFound
	// ErrIneligible возвращается, если участник не имеет права на займ.
	ErrIneligible = errors.New("member is not eligible for a loan")
	// ErrLimitExceeded возвращается, если сумма займа превышает лимит участника.
	ErrLimitExceeded = errors.New("loan limit exceeded")
	// ErrConflict возвращается, если операция противоречит текущему состоянию записи.
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument возвращается при некорректных входных данных.
	ErrInvalidArgument = errors.New("invalid argument")
)

// IneligibleError перечисляет все нарушенные условия права на займ.
type IneligibleError struct {
	MemberID int64
	Reasons  []string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("member %d is not eligible for a loan: %s", e.MemberID, strings.Join(e.Reasons, "; "))
}

func (e *IneligibleError) Unwrap() error {
	return ErrIneligible
}

// LimitExceededError содержит запрошенную и максимальную сумму займа.
type LimitExceededError struct {
	Requested decimal.Decimal
	Max       decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("requested loan amount %s exceeds maximum %s", e.Requested.StringFixed(2), e.Max.StringFixed(2))
}

func (e *LimitExceededError) Unwrap() error {
	return ErrLimitExceeded
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// invalid переводит ошибку валидации в ErrInvalidArgument.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, validation.ErrInvalid) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return err
}
