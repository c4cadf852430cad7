package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventLog is an append-only list of records stored as one JSONB column.
// Entries are never exposed for mutation: Append returns a new log and
// Entries returns a copy.
type EventLog[T any] struct {
	entries []T
}

// NewEventLog builds a log from existing entries (used when loading).
func NewEventLog[T any](entries ...T) EventLog[T] {
	return EventLog[T]{entries: append([]T(nil), entries...)}
}

// Append returns a log with e added after every existing entry.
func (l EventLog[T]) Append(e T) EventLog[T] {
	next := make([]T, len(l.entries), len(l.entries)+1)
	copy(next, l.entries)
	return EventLog[T]{entries: append(next, e)}
}

func (l EventLog[T]) Len() int { return len(l.entries) }

func (l EventLog[T]) Entries() []T {
	return append([]T(nil), l.entries...)
}

// Last returns the newest entry.
func (l EventLog[T]) Last() (T, bool) {
	if len(l.entries) == 0 {
		var zero T
		return zero, false
	}
	return l.entries[len(l.entries)-1], true
}

func (l EventLog[T]) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.entries)
}

func (l *EventLog[T]) UnmarshalJSON(data []byte) error {
	var entries []T
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	l.entries = entries
	return nil
}

func (l EventLog[T]) Value() (driver.Value, error) {
	return l.MarshalJSON()
}

func (l *EventLog[T]) Scan(value interface{}) error {
	if value == nil {
		l.entries = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan event log: %w", err)
	}
	return l.UnmarshalJSON(bytes)
}

// JSONList JSONB array column of structured values
type JSONList[T any] []T

func (j JSONList[T]) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]T(j))
}

func (j *JSONList[T]) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan JSON list: %w", err)
	}
	return json.Unmarshal(bytes, (*[]T)(j))
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("unsupported type %T", value)
}

// PickupKind distinguishes material pickups from finished part pickups.
type PickupKind string

const (
	PickupMaterials PickupKind = "materials"
	PickupPart      PickupKind = "part"
)

// PickupEvent one pickup of materials or parts
type PickupEvent struct {
	Date             time.Time        `json:"date"`
	Kind             PickupKind       `json:"kind"`
	WorkstationIndex int              `json:"workstation_index"`
	QuantityReceived *decimal.Decimal `json:"quantity_received,omitempty"`
	InvoiceURL       string           `json:"invoice_url,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	UserID           string           `json:"user_id"`
}

// FollowupEvent one production follow-up check-in
type FollowupEvent struct {
	Date                  time.Time      `json:"date"`
	Status                FollowUpStatus `json:"status"`
	Notes                 string         `json:"notes,omitempty"`
	RevisedCompletionDate *time.Time     `json:"revised_completion_date,omitempty"`
	UserID                string         `json:"user_id"`
}

// QCEvent one QC decision or scrap review
type QCEvent struct {
	Date          time.Time     `json:"date"`
	Decision      QCDecision    `json:"decision,omitempty"`
	ScrapDecision ScrapDecision `json:"scrap_decision,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	UserID        string        `json:"user_id"`
}
