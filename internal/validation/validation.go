// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/association-finance/internal/model"
)

// ErrInvalid возвращается для любых некорректных входных данных.
var ErrInvalid = errors.New("invalid value")

var one = decimal.NewFromInt(1)

// PositiveAmount проверяет, что сумма строго больше нуля и не дробнее копейки.
func PositiveAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalid, field)
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return fmt.Errorf("%w: %s must have at most two decimal places", ErrInvalid, field)
	}
	return nil
}

// RatePlaces совпадает с масштабом колонок ставок в хранилище.
const RatePlaces = 6

// Rate проверяет, что ставка лежит в диапазоне [0, 1] и хранится без округления.
func Rate(field string, d decimal.Decimal) error {
	if d.IsNegative() || d.GreaterThan(one) {
		return fmt.Errorf("%w: %s must be between 0 and 1", ErrInvalid, field)
	}
	if d.Exponent() < -RatePlaces && !d.Equal(d.Round(RatePlaces)) {
		return fmt.Errorf("%w: %s must have at most %d decimal places", ErrInvalid, field, RatePlaces)
	}
	return nil
}

// DateRange проверяет, что дата окончания, если задана, не раньше даты начала.
func DateRange(start time.Time, end *time.Time) error {
	if start.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalid)
	}
	if end != nil && end.Before(start) {
		return fmt.Errorf("%w: end date is before start date", ErrInvalid)
	}
	return nil
}

// RotationFrequency разбирает периодичность группы из закрытого перечня.
func RotationFrequency(s string) (model.RotationFrequency, error) {
	f := model.RotationFrequency(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case model.FrequencyWeekly, model.FrequencyBiweekly, model.FrequencyMonthly, model.FrequencyQuarterly:
		return f, nil
	}
	return "", fmt.Errorf("%w: unknown rotation frequency %q", ErrInvalid, s)
}

// LoanStatus разбирает статус займа.
func LoanStatus(s string) (model.LoanStatus, error) {
	st := model.LoanStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown loan status %q", ErrInvalid, s)
	}
	return st, nil
}

// GroupStatus разбирает статус группы.
func GroupStatus(s string) (model.GroupStatus, error) {
	st := model.GroupStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case model.GroupStatusActive, model.GroupStatusCompleted, model.GroupStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown group status %q", ErrInvalid, s)
}

// RoundStatus разбирает статус раунда.
func RoundStatus(s string) (model.RoundStatus, error) {
	st := model.RoundStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case model.RoundStatusUpcoming, model.RoundStatusActive, model.RoundStatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown round status %q", ErrInvalid, s)
}
