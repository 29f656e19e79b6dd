package handler

import (
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/association-finance/internal/service"
)

type groupRequest struct {
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	ContributionAmount decimal.Decimal `json:"contribution_amount"`
	MaxMembers         *int            `json:"max_members,omitempty"`
	RotationFrequency  string          `json:"rotation_frequency"`
	StartDate          string          `json:"start_date"`
	EndDate            *string         `json:"end_date,omitempty"`
	Status             string          `json:"status,omitempty"`
}

type groupMemberRequest struct {
	MemberID int64 `json:"member_id"`
}

type roundRequest struct {
	RoundNumber int     `json:"round_number"`
	StartDate   string  `json:"start_date"`
	EndDate     *string `json:"end_date,omitempty"`
	Status      string  `json:"status,omitempty"`
}

func (req groupRequest) input() (service.GroupInput, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return service.GroupInput{}, err
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		return service.GroupInput{}, err
	}
	return service.GroupInput{
		Name:               req.Name,
		Description:        req.Description,
		ContributionAmount: req.ContributionAmount,
		MaxMembers:         req.MaxMembers,
		RotationFrequency:  req.RotationFrequency,
		StartDate:          start,
		EndDate:            end,
		Status:             req.Status,
	}, nil
}

func (req roundRequest) input() (service.RoundInput, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return service.RoundInput{}, err
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		return service.RoundInput{}, err
	}
	return service.RoundInput{
		RoundNumber: req.RoundNumber,
		StartDate:   start,
		EndDate:     end,
		Status:      req.Status,
	}, nil
}

// CreateGroup создаёт накопительную группу.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(w)
		return
	}

	g, err := h.service.CreateRotatingGroup(r.Context(), in)
	if err != nil {
		h.writeError(w, err, "create group error")
		return
	}

	writeJSON(w, http.StatusCreated, g)
}

// ListGroups возвращает все группы.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListRotatingGroups(r.Context())
	if err != nil {
		h.writeError(w, err, "list groups error")
		return
	}

	writeList(w, groups)
}

// GetGroup возвращает группу.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	g, err := h.service.GetRotatingGroup(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get group error", zap.Int64("groupID", id))
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// UpdateGroup заменяет параметры группы.
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	var req groupRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(w)
		return
	}

	g, err := h.service.UpdateRotatingGroup(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err, "update group error", zap.Int64("groupID", id))
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// DeleteGroup удаляет группу вместе с раундами.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	if err := h.service.DeleteRotatingGroup(r.Context(), id); err != nil {
		h.writeError(w, err, "delete group error", zap.Int64("groupID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddGroupMember добавляет участника в группу.
func (h *Handler) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	var req groupMemberRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}

	g, err := h.service.AddGroupMember(r.Context(), id, req.MemberID)
	if err != nil {
		h.writeError(w, err, "add group member error", zap.Int64("groupID", id), zap.Int64("memberID", req.MemberID))
		return
	}

	writeJSON(w, http.StatusOK, g)
}

// ListGroupMembers возвращает участников группы.
func (h *Handler) ListGroupMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	members, err := h.service.ListGroupMembers(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "list group members error", zap.Int64("groupID", id))
		return
	}

	writeList(w, members)
}

// RemoveGroupMember исключает участника из группы.
func (h *Handler) RemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}
	memberID, ok := pathID(r, "memberID")
	if !ok {
		badRequest(w)
		return
	}

	if err := h.service.RemoveGroupMember(r.Context(), id, memberID); err != nil {
		h.writeError(w, err, "remove group member error", zap.Int64("groupID", id), zap.Int64("memberID", memberID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateRound добавляет раунд в группу.
func (h *Handler) CreateRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	var req roundRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(w)
		return
	}

	rd, err := h.service.CreateRound(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err, "create round error", zap.Int64("groupID", id))
		return
	}

	writeJSON(w, http.StatusCreated, rd)
}

// ListRounds возвращает раунды группы.
func (h *Handler) ListRounds(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	rounds, err := h.service.ListRounds(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "list rounds error", zap.Int64("groupID", id))
		return
	}

	writeList(w, rounds)
}

// GetRound возвращает раунд.
func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	rd, err := h.service.GetRound(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get round error", zap.Int64("roundID", id))
		return
	}

	writeJSON(w, http.StatusOK, rd)
}

// UpdateRound заменяет параметры раунда.
func (h *Handler) UpdateRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	var req roundRequest
	if err := decode(r, &req); err != nil {
		badRequest(w)
		return
	}
	in, err := req.input()
	if err != nil {
		badRequest(w)
		return
	}

	rd, err := h.service.UpdateRound(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err, "update round error", zap.Int64("roundID", id))
		return
	}

	writeJSON(w, http.StatusOK, rd)
}

// DeleteRound удаляет раунд.
func (h *Handler) DeleteRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w)
		return
	}

	if err := h.service.DeleteRound(r.Context(), id); err != nil {
		h.writeError(w, err, "delete round error", zap.Int64("roundID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
