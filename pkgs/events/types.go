// Package events publishes relay lifecycle events.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event being emitted
type EventType string

const (
	// Submission lifecycle
	EventStageSubmitted   EventType = "stage_submitted"
	EventStageConfirmed   EventType = "stage_confirmed"
	EventSubmissionFailed EventType = "submission_failed"

	// Reads
	EventHistoryDegraded EventType = "history_degraded"

	// Storage
	EventMediaStored EventType = "media_stored"
)

// EventSeverity indicates the importance of an event
type EventSeverity string

const (
	SeverityInfo    EventSeverity = "info"
	SeverityWarning EventSeverity = "warning"
	SeverityError   EventSeverity = "error"
)

// Event is one relay notification
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	Timestamp time.Time     `json:"timestamp"`

	Component string `json:"component"`
	Contract  string `json:"contract,omitempty"`

	ProductID string `json:"product_id,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	Error     string `json:"error,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubmissionPayload describes a broadcast or confirmed stage transaction
type SubmissionPayload struct {
	TransactionHash string `json:"transaction_hash"`
	Nonce           uint64 `json:"nonce"`
	GasLimit        uint64 `json:"gas_limit"`
	GasPrice        string `json:"gas_price"`
	MediaRef        string `json:"media_ref,omitempty"`
	BlockNumber     uint64 `json:"block_number,omitempty"`
	GasUsed         uint64 `json:"gas_used,omitempty"`
	DurationMs      int64  `json:"duration_ms"`
}

// FailurePayload describes a rejected submission
type FailurePayload struct {
	Category  string `json:"category"`
	Retryable bool   `json:"retryable"`
}

// DegradedHistoryPayload lists the events a history read had to skip
type DegradedHistoryPayload struct {
	Returned int      `json:"returned"`
	Skipped  []string `json:"skipped"`
}

// MediaStoredPayload describes a blob written to the media store
type MediaStoredPayload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size"`
	Reference   string `json:"reference"`
}

// String returns a string representation of the event
func (e *Event) String() string {
	return fmt.Sprintf("[%s] %s: %s (component=%s, product=%s)",
		e.Timestamp.Format(time.RFC3339),
		e.Severity,
		e.Type,
		e.Component,
		e.ProductID,
	)
}

// ToJSON serializes the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new event with the given parameters
func NewEvent(eventType EventType, severity EventSeverity, component string, payload interface{}) (*Event, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		payloadBytes = data
	}

	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
		Component: component,
		Payload:   payloadBytes,
	}, nil
}
