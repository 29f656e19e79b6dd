package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType определяет вид доменного события.
type EventType string

const (
	EventLoanCreated         EventType = "loan.created"
	EventLoanRepaid          EventType = "loan.repaid"
	EventLoanUpdated         EventType = "loan.updated"
	EventLoanDeleted         EventType = "loan.deleted"
	EventGroupCreated        EventType = "group.created"
	EventGroupUpdated        EventType = "group.updated"
	EventGroupMemberAdded    EventType = "group.member_added"
	EventRoundCreated        EventType = "round.created"
	EventRoundUpdated        EventType = "round.updated"
	EventContributionCreated EventType = "contribution.created"
	EventPenaltyApplied      EventType = "penalty.applied"
	EventPenaltyPaid         EventType = "penalty.paid"
)

// Event описывает успешно выполненный переход состояния.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	EntityID   int64     `json:"entity_id"`
	MemberID   int64     `json:"member_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// NewEvent создаёт событие с новым идентификатором.
func NewEvent(t EventType, entityID, memberID int64, at time.Time, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		EntityID:   entityID,
		MemberID:   memberID,
		OccurredAt: at,
		Payload:    payload,
	}
}
