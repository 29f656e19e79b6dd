package handler

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/association-finance/internal/service"
)

type contributionRequest struct {
	MemberID         int64           `json:"member_id"`
	Amount           decimal.Decimal `json:"amount"`
	ContributionDate string          `json:"contribution_date,omitempty"`
}

type contributionUpdateRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	ContributionDate string          `json:"contribution_date"`
	Status           string          `json:"status,omitempty"`
}

type penaltyRequest struct {
	MemberID    int64           `json:"member_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	PenaltyType string          `json:"penalty_type"`
	PenaltyDate string          `json:"penalty_date,omitempty"`
}

// MakeContribution записывает взнос участника в раунд.
func (h *Handler) MakeContribution(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	var req contributionRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}
	date, err := parseDate(req.ContributionDate)
	if err != nil {
		badRequest(w)
		return
	}

	c, err := h.service.MakeContribution(r.Context(), req.MemberID, roundID, req.Amount, date)
	if err != nil {
		h.writeError(w, err, "make contribution error", zap.Int64("roundID", roundID), zap.Int64("memberID", req.MemberID))
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// ListRoundContributions возвращает взносы раунда.
func (h *Handler) ListRoundContributions(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	list, err := h.service.ListContributionsByRound(r.Context(), roundID)
	if err != nil {
		h.writeError(w, err, "list round contributions error", zap.Int64("roundID", roundID))
		return
	}

	writeList(w, list)
}

// GetContribution возвращает взнос.
func (h *Handler) GetContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	c, err := h.service.GetContribution(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get contribution error", zap.Int64("contributionID", id))
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// UpdateContribution заменяет сумму, дату и статус взноса.
func (h *Handler) UpdateContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	var req contributionUpdateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}
	date, err := parseDate(req.ContributionDate)
	if err != nil {
		badRequest(w)
		return
	}

	c, err := h.service.UpdateContribution(r.Context(), id, service.ContributionUpdate{
		Amount:           req.Amount,
		ContributionDate: date,
		Status:           req.Status,
	})
	if err != nil {
		h.writeError(w, err, "update contribution error", zap.Int64("contributionID", id))
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// DeleteContribution удаляет взнос.
func (h *Handler) DeleteContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	if err := h.service.DeleteContribution(r.Context(), id); err != nil {
		h.writeError(w, err, "delete contribution error", zap.Int64("contributionID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApplyPenalty начисляет штраф участнику в рамках раунда.
func (h *Handler) ApplyPenalty(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	var req penaltyRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}
	date, err := parseDate(req.PenaltyDate)
	if err != nil {
		badRequest(w)
		return
	}

	p, err := h.service.ApplyPenalty(r.Context(), service.PenaltyInput{
		MemberID:    req.MemberID,
		RoundID:     roundID,
		Amount:      req.Amount,
		Reason:      req.Reason,
		PenaltyType: req.PenaltyType,
		PenaltyDate: date,
	})
	if err != nil {
		h.writeError(w, err, "apply penalty error", zap.Int64("roundID", roundID), zap.Int64("memberID", req.MemberID))
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// ListRoundPenalties возвращает штрафы раунда.
func (h *Handler) ListRoundPenalties(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	list, err := h.service.ListPenaltiesByRound(r.Context(), roundID)
	if err != nil {
		h.writeError(w, err, "list round penalties error", zap.Int64("roundID", roundID))
		return
	}

	writeList(w, list)
}

// GetPenalty возвращает штраф.
func (h *Handler) GetPenalty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	p, err := h.service.GetPenalty(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get penalty error", zap.Int64("penaltyID", id))
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// PayPenalty отмечает штраф оплаченным.
func (h *Handler) PayPenalty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	p, err := h.service.PayPenalty(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "pay penalty error", zap.Int64("penaltyID", id))
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// DeletePenalty удаляет штраф.
func (h *Handler) DeletePenalty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	if err := h.service.DeletePenalty(r.Context(), id); err != nil {
		h.writeError(w, err, "delete penalty error", zap.Int64("penaltyID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
