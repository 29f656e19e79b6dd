package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/association-finance/internal/model"
	"github.com/mmeshcher/association-finance/internal/service"
)

type createLoanRequest struct {
	MemberID      int64            `json:"member_id"`
	Amount        decimal.Decimal  `json:"amount"`
	InterestRate  decimal.Decimal  `json:"interest_rate"`
	PenaltyRate   decimal.Decimal  `json:"penalty_rate"`
	DueDate       string           `json:"due_date"`
	DepositAmount *decimal.Decimal `json:"deposit_amount,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

type updateLoanRequest struct {
	Amount          decimal.Decimal  `json:"amount"`
	InterestRate    decimal.Decimal  `json:"interest_rate"`
	PenaltyRate     decimal.Decimal  `json:"penalty_rate"`
	DueDate         string           `json:"due_date"`
	ReturnDate      *string          `json:"return_date,omitempty"`
	DepositAmount   *decimal.Decimal `json:"deposit_amount,omitempty"`
	DepositRefunded bool             `json:"deposit_refunded"`
	Notes           string           `json:"notes,omitempty"`
}

type repayRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type dueResponse struct {
	LoanID         int64           `json:"loan_id"`
	TotalAmountDue decimal.Decimal `json:"total_amount_due"`
	Overdue        bool            `json:"overdue"`
}

// CreateLoan выдаёт займ участнику.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}

	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		badRequest(w)
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), service.CreateLoanInput{
		MemberID:      req.MemberID,
		Amount:        req.Amount,
		InterestRate:  req.InterestRate,
		PenaltyRate:   req.PenaltyRate,
		DueDate:       dueDate,
		DepositAmount: req.DepositAmount,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "create loan error", zap.Int64("memberID", req.MemberID))
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

// GetLoan возвращает займ.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get loan error", zap.Int64("loanID", id))
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

// UpdateLoan заменяет параметры займа.
func (h *Handler) UpdateLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	var req updateLoanRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		badRequest(w)
		return
	}
	returnDate, err := parseOptionalDate(req.ReturnDate)
	if err != nil {
		badRequest(w)
		return
	}

	loan, err := h.service.UpdateLoan(r.Context(), id, model.LoanUpdate{
		Amount:          req.Amount,
		InterestRate:    req.InterestRate,
		PenaltyRate:     req.PenaltyRate,
		DueDate:         dueDate,
		ReturnDate:      returnDate,
		DepositAmount:   req.DepositAmount,
		DepositRefunded: req.DepositRefunded,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeError(w, err, "update loan error", zap.Int64("loanID", id))
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

// DeleteLoan помечает займ удалённым.
func (h *Handler) DeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	if err := h.service.DeleteLoan(r.Context(), id); err != nil {
		h.writeError(w, err, "delete loan error", zap.Int64("loanID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RepayLoan фиксирует погашение займа.
func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	var req repayRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}

	loan, err := h.service.RepayLoan(r.Context(), id, req.Amount)
	if err != nil {
		h.writeError(w, err, "repay loan error", zap.Int64("loanID", id))
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

// RefundDeposit отмечает возврат залога.
func (h *Handler) RefundDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	loan, err := h.service.RefundDeposit(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "refund deposit error", zap.Int64("loanID", id))
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

// GetAmountDue возвращает полную сумму к погашению и признак просрочки.
func (h *Handler) GetAmountDue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	due, err := h.service.GetTotalAmountDue(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get amount due error", zap.Int64("loanID", id))
		return
	}
	overdue, err := h.service.IsOverdue(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "check overdue error", zap.Int64("loanID", id))
		return
	}

	writeJSON(w, http.StatusOK, dueResponse{LoanID: id, TotalAmountDue: due, Overdue: overdue})
}

// ListRepayments возвращает историю погашений займа.
func (h *Handler) ListRepayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	repayments, err := h.service.ListRepayments(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "list repayments error", zap.Int64("loanID", id))
		return
	}

	writeList(w, repayments)
}

// SearchLoans ищет займы по параметрам запроса.
func (h *Handler) SearchLoans(w http.ResponseWriter, r *http.Request) {
	f, err := loanFilterFromQuery(r)
	if err != nil {
		badRequest(w)
		return
	}

	loans, err := h.service.SearchLoans(r.Context(), f)
	if err != nil {
		h.writeError(w, err, "search loans error")
		return
	}

	writeList(w, loans)
}

// ListActiveLoans возвращает непогашенные займы.
func (h *Handler) ListActiveLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListActiveLoans(r.Context())
	if err != nil {
		h.writeError(w, err, "list active loans error")
		return
	}

	writeList(w, loans)
}

// ListOverdueLoans возвращает просроченные займы с числом дней просрочки.
func (h *Handler) ListOverdueLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListOverdueLoansWithDays(r.Context())
	if err != nil {
		h.writeError(w, err, "list overdue loans error")
		return
	}

	writeList(w, loans)
}

func loanFilterFromQuery(r *http.Request) (model.LoanFilter, error) {
	q := r.URL.Query()
	var f model.LoanFilter

	if v := q.Get("member_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, err
		}
		f.MemberID = &id
	}
	if v := q.Get("min_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, err
		}
		f.MinAmount = &d
	}
	if v := q.Get("max_amount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, err
		}
		f.MaxAmount = &d
	}
	if v := q.Get("status"); v != "" {
		status := model.LoanStatus(strings.ToUpper(strings.TrimSpace(v)))
		f.Status = &status
	}
	if v := q.Get("due_from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.DueFrom = &t
	}
	if v := q.Get("due_to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.DueTo = &t
	}
	return f, nil
}
