package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"expensetracker/internal/core"
)

// EventExpenseRecorded is the type of the message published after an insert.
const EventExpenseRecorded = "expense.recorded"

// ExpenseRecordedMessage announces a new ledger entry. Consumers re-read the
// ledger rather than trusting the payload; amount and category are carried
// for logging.
type ExpenseRecordedMessage struct {
	Type      string    `json:"type"`
	ID        int64     `json:"id"`
	DateMs    int64     `json:"date_ms"`
	Amount    string    `json:"amount"`
	Category  string    `json:"category"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseRecordedMessage(e core.Expense, version uint64) *ExpenseRecordedMessage {
	return &ExpenseRecordedMessage{
		Type:      EventExpenseRecorded,
		ID:        e.ID,
		DateMs:    e.Millis(),
		Amount:    e.Amount.String(),
		Category:  string(e.Category),
		Version:   version,
		Timestamp: time.Now(),
	}
}

// Date returns the expense date in the local zone.
func (m *ExpenseRecordedMessage) Date() time.Time {
	return core.FromMillis(m.DateMs)
}

func (m *ExpenseRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseRecordedMessageFromJSON decodes a message and rejects other event types.
func ExpenseRecordedMessageFromJSON(data []byte) (*ExpenseRecordedMessage, error) {
	var msg ExpenseRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != EventExpenseRecorded {
		return nil, fmt.Errorf("unexpected event type %q", msg.Type)
	}
	if msg.ID <= 0 {
		return nil, fmt.Errorf("invalid expense id %d", msg.ID)
	}
	return &msg, nil
}
