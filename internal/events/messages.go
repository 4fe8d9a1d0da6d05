package events

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	TransactionInserted Kind = "inserted"
	TransactionDeleted  Kind = "deleted"
)

// TransactionEvent is the lightweight message published on every record
// mutation. It carries identifiers only; the export worker fetches full
// row data from the database and locates spreadsheet rows by record id.
type TransactionEvent struct {
	Kind      Kind      `json:"kind"`
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Timestamp time.Time `json:"timestamp"`
}

func NewInsertedEvent(id, owner string) *TransactionEvent {
	return &TransactionEvent{
		Kind:      TransactionInserted,
		ID:        id,
		Owner:     owner,
		Timestamp: time.Now(),
	}
}

func NewDeletedEvent(id, owner string) *TransactionEvent {
	return &TransactionEvent{
		Kind:      TransactionDeleted,
		ID:        id,
		Owner:     owner,
		Timestamp: time.Now(),
	}
}

func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
