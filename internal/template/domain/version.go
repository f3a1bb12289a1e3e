package domain

import (
	"encoding/json"
	"time"
)

// TemplateVersion is an immutable snapshot of a template at a point in time.
// Exactly one version per lineage is current.
type TemplateVersion struct {
	ID           string          `json:"id"`
	TemplateID   string          `json:"template_id"`
	LineageID    string          `json:"lineage_id"`
	VersionLabel string          `json:"version_label"`
	Snapshot     json.RawMessage `json:"snapshot"`
	IsCurrent    bool            `json:"is_current"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DecodeSnapshot unmarshals the snapshot back into a template
func (v *TemplateVersion) DecodeSnapshot() (*Template, error) {
	var t Template
	if err := json.Unmarshal(v.Snapshot, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ChangeType classifies a change-log entry
type ChangeType string

const (
	ChangeCreated        ChangeType = "created"
	ChangeUpdated        ChangeType = "updated"
	ChangeDeleted        ChangeType = "deleted"
	ChangeVersionCreated ChangeType = "version_created"
	ChangeRolledBack     ChangeType = "rolled_back"
	ChangeImported       ChangeType = "imported"
)

// ChangeRecord is a discrete change-log entry for a template
type ChangeRecord struct {
	ID            string     `json:"id"`
	TemplateID    string     `json:"template_id"`
	Type          ChangeType `json:"type"`
	ChangedBy     string     `json:"changed_by,omitempty"`
	ChangedAt     time.Time  `json:"changed_at"`
	ChangedFields []string   `json:"changed_fields,omitempty"`
	Note          string     `json:"note,omitempty"`
}
