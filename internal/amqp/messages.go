package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a ledger change.
type EventType string

const (
	EventExpenseCreated EventType = "expense.created"
	EventExpenseDeleted EventType = "expense.deleted"
)

// LedgerEvent is a lightweight notice that an owner's ledger changed.
// It carries only identifiers; consumers read the record from the store.
type LedgerEvent struct {
	EventID    string    `json:"event_id"`
	Type       EventType `json:"type"`
	Owner      string    `json:"owner"`
	ExpenseID  int64     `json:"expense_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewLedgerEvent(t EventType, owner string, expenseID int64) *LedgerEvent {
	return &LedgerEvent{
		EventID:    uuid.NewString(),
		Type:       t,
		Owner:      owner,
		ExpenseID:  expenseID,
		OccurredAt: time.Now().UTC(),
	}
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and sanity-checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventExpenseCreated, EventExpenseDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Owner == "" || e.ExpenseID <= 0 {
		return nil, fmt.Errorf("event %s missing owner or expense id", e.EventID)
	}
	return &e, nil
}
