// Package handler содержит HTTP-обработчики API финансового учёта ассоциации.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/association-finance/internal/model"
	"github.com/mmeshcher/association-finance/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateLoan(ctx context.Context, in service.CreateLoanInput) (*model.Loan, error)
	GetLoan(ctx context.Context, loanID int64) (*model.Loan, error)
	UpdateLoan(ctx context.Context, loanID int64, upd model.LoanUpdate) (*model.Loan, error)
	DeleteLoan(ctx context.Context, loanID int64) error
	RepayLoan(ctx context.Context, loanID int64, amount decimal.Decimal) (*model.Loan, error)
	RefundDeposit(ctx context.Context, loanID int64) (*model.Loan, error)
	GetTotalAmountDue(ctx context.Context, loanID int64) (decimal.Decimal, error)
	IsOverdue(ctx context.Context, loanID int64) (bool, error)
	ListRepayments(ctx context.Context, loanID int64) ([]model.Repayment, error)
	SearchLoans(ctx context.Context, f model.LoanFilter) ([]model.Loan, error)
	ListActiveLoans(ctx context.Context) ([]model.Loan, error)
	ListOverdueLoansWithDays(ctx context.Context) ([]model.OverdueLoan, error)

	ListLoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error)
	CheckEligibility(ctx context.Context, memberID int64) (*model.Eligibility, error)
	CalculateMaxLoanAmount(ctx context.Context, memberID int64) (decimal.Decimal, error)
	CalculateRemainingAmountForMember(ctx context.Context, memberID int64) (decimal.Decimal, error)
	MemberStanding(ctx context.Context, memberID int64) (*model.Standing, error)

	CreateRotatingGroup(ctx context.Context, in service.GroupInput) (*model.RotatingGroup, error)
	GetRotatingGroup(ctx context.Context, id int64) (*model.RotatingGroup, error)
	ListRotatingGroups(ctx context.Context) ([]model.RotatingGroup, error)
	UpdateRotatingGroup(ctx context.Context, id int64, in service.GroupInput) (*model.RotatingGroup, error)
	DeleteRotatingGroup(ctx context.Context, id int64) error
	AddGroupMember(ctx context.Context, groupID, memberID int64) (*model.RotatingGroup, error)
	RemoveGroupMember(ctx context.Context, groupID, memberID int64) error
	ListGroupMembers(ctx context.Context, groupID int64) ([]int64, error)

	CreateRound(ctx context.Context, groupID int64, in service.RoundInput) (*model.Round, error)
	GetRound(ctx context.Context, id int64) (*model.Round, error)
	ListRounds(ctx context.Context, groupID int64) ([]model.Round, error)
	UpdateRound(ctx context.Context, id int64, in service.RoundInput) (*model.Round, error)
	DeleteRound(ctx context.Context, id int64) error

	MakeContribution(ctx context.Context, memberID, roundID int64, amount decimal.Decimal, date time.Time) (*model.Contribution, error)
	GetContribution(ctx context.Context, id int64) (*model.Contribution, error)
	ListContributionsByRound(ctx context.Context, roundID int64) ([]model.Contribution, error)
	ListContributionsByMember(ctx context.Context, memberID int64) ([]model.Contribution, error)
	UpdateContribution(ctx context.Context, id int64, upd service.ContributionUpdate) (*model.Contribution, error)
	DeleteContribution(ctx context.Context, id int64) error

	ApplyPenalty(ctx context.Context, in service.PenaltyInput) (*model.Penalty, error)
	GetPenalty(ctx context.Context, id int64) (*model.Penalty, error)
	ListPenaltiesByRound(ctx context.Context, roundID int64) ([]model.Penalty, error)
	ListPenaltiesByMember(ctx context.Context, memberID int64) ([]model.Penalty, error)
	PayPenalty(ctx context.Context, id int64) (*model.Penalty, error)
	DeletePenalty(ctx context.Context, id int64) error
}

// Handler реализует HTTP-обработчики API финансового учёта.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type errorResponse struct {
	Error   string           `json:"error"`
	Reasons []string         `json:"reasons,omitempty"`
	Max     *decimal.Decimal `json:"max_loan_amount,omitempty"`
}

var errBadDate = errors.New("bad date")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeList отвечает 204 на пустой список.
func writeList[T any](w http.ResponseWriter, items []T) {
	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func badRequest(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}

// writeError переводит ошибку сервиса в HTTP-ответ. Непредвиденные ошибки журналируются.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	var ineligible *service.IneligibleError
	var limit *service.LimitExceededError

	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &ineligible):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Reasons: ineligible.Reasons})
	case errors.As(err, &limit):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Max: &limit.Max})
	case errors.Is(err, service.ErrIneligible),
		errors.Is(err, service.ErrLimitExceeded),
		errors.Is(err, service.ErrInvalidArgument):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseDate принимает дату в формате YYYY-MM-DD или RFC 3339.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errBadDate, s)
	}
	return t, nil
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
