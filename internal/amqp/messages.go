package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"zerobudget/internal/core"
)

// EventType names a committed ledger change.
type EventType string

const (
	AccountCreated     EventType = "account.created"
	AccountUpdated     EventType = "account.updated"
	AccountDeleted     EventType = "account.deleted"
	CategoryCreated    EventType = "category.created"
	CategoryRenamed    EventType = "category.renamed"
	CategoryDeleted    EventType = "category.deleted"
	AllocationCreated  EventType = "allocation.created"
	AllocationMoved    EventType = "allocation.moved"
	TransactionCreated EventType = "transaction.created"
	TransactionDeleted EventType = "transaction.deleted"
)

var knownEventTypes = map[EventType]struct{}{
	AccountCreated: {}, AccountUpdated: {}, AccountDeleted: {},
	CategoryCreated: {}, CategoryRenamed: {}, CategoryDeleted: {},
	AllocationCreated: {}, AllocationMoved: {},
	TransactionCreated: {}, TransactionDeleted: {},
}

// LedgerEvent announces a committed change. It carries ids and the amount
// moved, not full entities; consumers re-read the ledger when they need more.
type LedgerEvent struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	Owner      string     `json:"owner"`
	EntityID   int64      `json:"entity_id"`
	Amount     core.Money `json:"amount"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func NewLedgerEvent(typ EventType, owner string, entityID int64, amount core.Money) LedgerEvent {
	return LedgerEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		Owner:      owner,
		EntityID:   entityID,
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	}
}

func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and checks an event body.
func LedgerEventFromJSON(data []byte) (LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return e, err
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return e, fmt.Errorf("invalid event id %q: %w", e.ID, err)
	}
	if _, ok := knownEventTypes[e.Type]; !ok {
		return e, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Owner == "" {
		return e, fmt.Errorf("event %s has no owner", e.ID)
	}
	return e, nil
}
