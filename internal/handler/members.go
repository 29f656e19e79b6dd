package handler

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type amountResponse struct {
	MemberID int64           `json:"member_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// ListMemberLoans возвращает займы участника.
func (h *Handler) ListMemberLoans(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	loans, err := h.service.ListLoansByMember(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "list member loans error", zap.Int64("memberID", id))
		return
	}

	writeList(w, loans)
}

// GetEligibility проверяет право участника на займ.
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	e, err := h.service.CheckEligibility(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "check eligibility error", zap.Int64("memberID", id))
		return
	}

	writeJSON(w, http.StatusOK, e)
}

// GetMaxLoanAmount возвращает лимит займа участника.
func (h *Handler) GetMaxLoanAmount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	amount, err := h.service.CalculateMaxLoanAmount(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "calculate max loan amount error", zap.Int64("memberID", id))
		return
	}

	writeJSON(w, http.StatusOK, amountResponse{MemberID: id, Amount: amount})
}

// GetRemaining возвращает взносы участника за вычетом штрафов.
func (h *Handler) GetRemaining(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	amount, err := h.service.CalculateRemainingAmountForMember(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "calculate remaining amount error", zap.Int64("memberID", id))
		return
	}

	writeJSON(w, http.StatusOK, amountResponse{MemberID: id, Amount: amount})
}

// GetStanding возвращает сводную финансовую позицию участника.
func (h *Handler) GetStanding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	st, err := h.service.MemberStanding(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "member standing error", zap.Int64("memberID", id))
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// ListMemberContributions возвращает взносы участника.
func (h *Handler) ListMemberContributions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	list, err := h.service.ListContributionsByMember(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "list member contributions error", zap.Int64("memberID", id))
		return
	}

	writeList(w, list)
}

// ListMemberPenalties возвращает штрафы участника.
func (h *Handler) ListMemberPenalties(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	list, err := h.service.ListPenaltiesByMember(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "list member penalties error", zap.Int64("memberID", id))
		return
	}

	writeList(w, list)
}
