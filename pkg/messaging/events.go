package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Template lifecycle events
	EventTemplateCreated        = "template.created"
	EventTemplateUpdated        = "template.updated"
	EventTemplateDeleted        = "template.deleted"
	EventTemplateVersionCreated = "template.version.created"
	EventTemplateRolledBack     = "template.rolled_back"

	// Matching events
	EventMatchCompleted = "template.match.completed"

	// Exchange events
	EventTemplatesImported = "template.import.completed"
)

// Exchange names
const (
	ExchangeTemplateEvents = "template.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// TemplateChangedEvent is published when a template is created, updated or deleted
type TemplateChangedEvent struct {
	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	Category   string `json:"category,omitempty"`
	ChangedBy  string `json:"changed_by,omitempty"`
}

// TemplateVersionEvent is published when a version is created or rolled back
type TemplateVersionEvent struct {
	TemplateID   string `json:"template_id"`
	NewID        string `json:"new_id,omitempty"`
	VersionLabel string `json:"version_label"`
	Reason       string `json:"reason,omitempty"`
	ChangedBy    string `json:"changed_by,omitempty"`
}

// MatchCompletedEvent is published after a document has been matched
// against the candidate template set
type MatchCompletedEvent struct {
	Fingerprint    string  `json:"fingerprint"`
	BestTemplateID string  `json:"best_template_id,omitempty"`
	Confidence     float64 `json:"confidence"`
	Candidates     int     `json:"candidates"`
}

// TemplatesImportedEvent is published after a batch import completes
type TemplatesImportedEvent struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
