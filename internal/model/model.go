// Package model содержит доменные сущности финансового учёта ассоциации.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fee описывает уплаченный членский взнос.
type Fee struct {
	Amount decimal.Decimal `json:"amount"`
	PaidAt time.Time       `json:"paid_at"`
}

// Member представляет участника ассоциации. Ядро только читает участников.
type Member struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Fees   []Fee  `json:"fees"`
	Loans  []Loan `json:"loans"`
}

// LoanStatus описывает состояние займа.
type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "ACTIVE"
	LoanStatusOverdue LoanStatus = "OVERDUE"
	LoanStatusRepaid  LoanStatus = "REPAID"
)

// Valid сообщает, входит ли статус в известный набор.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusActive, LoanStatusOverdue, LoanStatusRepaid:
		return true
	}
	return false
}

// Loan описывает займ участника.
type Loan struct {
	ID              int64            `json:"id"`
	MemberID        int64            `json:"member_id"`
	Amount          decimal.Decimal  `json:"amount"`
	InterestRate    decimal.Decimal  `json:"interest_rate"`
	PenaltyRate     decimal.Decimal  `json:"penalty_rate"`
	LoanDate        time.Time        `json:"loan_date"`
	DueDate         time.Time        `json:"due_date"`
	ReturnDate      *time.Time       `json:"return_date,omitempty"`
	AmountRepaid    *decimal.Decimal `json:"amount_repaid,omitempty"`
	RepaymentDate   *time.Time       `json:"repayment_date,omitempty"`
	Status          LoanStatus       `json:"status"`
	DepositAmount   *decimal.Decimal `json:"deposit_amount,omitempty"`
	DepositRefunded bool             `json:"deposit_refunded"`
	Notes           string           `json:"notes,omitempty"`
}

// Repayment фиксирует отдельный вызов погашения займа.
type Repayment struct {
	ID     int64           `json:"id"`
	LoanID int64           `json:"loan_id"`
	Amount decimal.Decimal `json:"amount"`
	PaidAt time.Time       `json:"paid_at"`
}

// OverdueLoan дополняет просроченный займ числом дней просрочки.
type OverdueLoan struct {
	Loan
	DaysOverdue int `json:"days_overdue"`
}

// LoanFilter задаёт условия поиска займов. Пустые поля не участвуют в отборе.
type LoanFilter struct {
	MemberID  *int64
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Status    *LoanStatus
	DueFrom   *time.Time
	DueTo     *time.Time
}

// LoanUpdate содержит поля займа, изменяемые администратором.
type LoanUpdate struct {
	Amount          decimal.Decimal
	InterestRate    decimal.Decimal
	PenaltyRate     decimal.Decimal
	DueDate         time.Time
	ReturnDate      *time.Time
	DepositAmount   *decimal.Decimal
	DepositRefunded bool
	Notes           string
}

// Eligibility содержит результат проверки права участника на займ.
type Eligibility struct {
	MemberID      int64            `json:"member_id"`
	Eligible      bool             `json:"eligible"`
	Reasons       []string         `json:"reasons,omitempty"`
	MaxLoanAmount *decimal.Decimal `json:"max_loan_amount,omitempty"`
}

// RotationFrequency описывает периодичность раундов группы.
type RotationFrequency string

const (
	FrequencyWeekly    RotationFrequency = "WEEKLY"
	FrequencyBiweekly  RotationFrequency = "BIWEEKLY"
	FrequencyMonthly   RotationFrequency = "MONTHLY"
	FrequencyQuarterly RotationFrequency = "QUARTERLY"
)

// GroupStatus описывает состояние накопительной группы.
type GroupStatus string

const (
	GroupStatusActive    GroupStatus = "ACTIVE"
	GroupStatusCompleted GroupStatus = "COMPLETED"
	GroupStatusCancelled GroupStatus = "CANCELLED"
)

// RotatingGroup описывает накопительную группу (likelemba).
type RotatingGroup struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	ContributionAmount decimal.Decimal   `json:"contribution_amount"`
	MaxMembers         *int              `json:"max_members,omitempty"`
	RotationFrequency  RotationFrequency `json:"rotation_frequency"`
	StartDate          time.Time         `json:"start_date"`
	EndDate            *time.Time        `json:"end_date,omitempty"`
	Status             GroupStatus       `json:"status"`
	MemberIDs          []int64           `json:"member_ids"`
}

// RoundStatus описывает состояние раунда.
type RoundStatus string

const (
	RoundStatusUpcoming  RoundStatus = "UPCOMING"
	RoundStatusActive    RoundStatus = "ACTIVE"
	RoundStatusCompleted RoundStatus = "COMPLETED"
)

// Round описывает один цикл взносов группы.
type Round struct {
	ID          int64       `json:"id"`
	GroupID     int64       `json:"group_id"`
	RoundNumber int         `json:"round_number"`
	StartDate   time.Time   `json:"start_date"`
	EndDate     *time.Time  `json:"end_date,omitempty"`
	Status      RoundStatus `json:"status"`
}

// Статусы взносов и штрафов образуют открытый набор строк.
const (
	ContributionStatusPending = "PENDING"
	ContributionStatusPaid    = "PAID"
	ContributionStatusLate    = "LATE"

	PenaltyStatusPending = "PENDING"
	PenaltyStatusPaid    = "PAID"
)

// Contribution описывает взнос участника в раунд.
type Contribution struct {
	ID               int64           `json:"id"`
	MemberID         int64           `json:"member_id"`
	RoundID          int64           `json:"round_id"`
	Amount           decimal.Decimal `json:"amount"`
	ContributionDate time.Time       `json:"contribution_date"`
	Status           string          `json:"status"`
}

// Penalty описывает штраф участника в рамках раунда.
type Penalty struct {
	ID          int64           `json:"id"`
	MemberID    int64           `json:"member_id"`
	RoundID     int64           `json:"round_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	PenaltyType string          `json:"penalty_type"`
	PenaltyDate time.Time       `json:"penalty_date"`
	Status      string          `json:"status"`
}

// Standing содержит сводную финансовую позицию участника.
type Standing struct {
	MemberID           int64           `json:"member_id"`
	TotalContributions decimal.Decimal `json:"total_contributions"`
	TotalPenalties     decimal.Decimal `json:"total_penalties"`
	Remaining          decimal.Decimal `json:"remaining"`
	TotalLoans         decimal.Decimal `json:"total_loans"`
	Eligibility        Eligibility     `json:"eligibility"`
}
