package assist

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"finsight/internal/core"
)

// TransactionMarker delimits the structured payload inside model output.
const TransactionMarker = "TRANSACTION_DATA:"

// Extraction is the result of parsing raw model output. Transaction is nil
// when no marker is present or the payload fails validation.
type Extraction struct {
	Narrative   string
	Transaction *core.Transaction
}

// payload is the JSON shape the model is instructed to emit.
type payload struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Date        string  `json:"date"`
}

// Extract splits raw text on the first marker occurrence. Text before the
// marker is the narrative; text after is parsed as a transaction candidate.
// A payload that is malformed or fails enum/amount validation yields a
// narrative-only result and a recoverable error describing the failure.
// The transaction carries no id or owner; the store assigns both on insert.
func Extract(raw string, today time.Time) (Extraction, error) {
	before, after, found := strings.Cut(raw, TransactionMarker)
	if !found {
		return Extraction{Narrative: strings.TrimSpace(raw)}, nil
	}

	result := Extraction{Narrative: strings.TrimSpace(before)}

	var p payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(after)), &p); err != nil {
		return result, fmt.Errorf("parse transaction payload: %w", err)
	}

	t, err := payloadToTransaction(p, today)
	if err != nil {
		return result, fmt.Errorf("validate transaction payload: %w", err)
	}

	result.Transaction = &t
	return result, nil
}

func payloadToTransaction(p payload, today time.Time) (core.Transaction, error) {
	date := core.DateOf(today)
	if strings.TrimSpace(p.Date) != "" {
		parsed, err := core.ParseDate(p.Date)
		if err != nil {
			return core.Transaction{}, err
		}
		date = parsed
	}

	t := core.Transaction{
		Amount:      core.MoneyFromFloat(p.Amount),
		Description: strings.TrimSpace(p.Description),
		Category:    core.Category(p.Category),
		Type:        core.TxType(p.Type),
		Date:        date,
	}

	// Validate field-by-field so the error names what the model got wrong.
	// Id and owner are not set yet; the store assigns them on insert.
	if err := t.Amount.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if t.Description == "" {
		return core.Transaction{}, core.ErrEmptyDescription
	}
	if !t.Category.Valid() {
		return core.Transaction{}, core.ErrInvalidCategory
	}
	if !t.Type.Valid() {
		return core.Transaction{}, core.ErrInvalidType
	}
	return t, nil
}
