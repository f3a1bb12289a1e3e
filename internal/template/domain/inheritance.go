package domain

import "time"

// InheritanceType controls which parts of a parent template are inherited
type InheritanceType string

const (
	InheritFull         InheritanceType = "full"
	InheritFieldsOnly   InheritanceType = "fields_only"
	InheritSettingsOnly InheritanceType = "settings_only"
	InheritCustom       InheritanceType = "custom"
)

// FieldOverrideAction says what a child does with an inherited field
type FieldOverrideAction string

const (
	FieldInherit  FieldOverrideAction = "inherit"
	FieldOverride FieldOverrideAction = "override"
	FieldRemove   FieldOverrideAction = "remove"
)

// MaxInheritanceDepth is the default bound on chain length
const MaxInheritanceDepth = 10

// TemplateInheritance is a directed child->parent edge. Edges reference
// templates by ID only and do not own them.
type TemplateInheritance struct {
	ID       string          `json:"id"`
	ChildID  string          `json:"child_id"`
	ParentID string          `json:"parent_id"`
	Type     InheritanceType `json:"type"`

	// FieldOverrides maps inherited field names to what the child does
	// with them. Absent fields default to FieldInherit.
	FieldOverrides map[string]FieldOverrideAction `json:"field_overrides,omitempty"`

	// SettingsOverrides pins template-level settings by name, e.g.
	// "confidence_threshold" -> "0.8". Applied only when the edge
	// allows settings override.
	SettingsOverrides map[string]string `json:"settings_overrides,omitempty"`

	AllowFieldAddition     bool `json:"allow_field_addition"`
	AllowFieldRemoval      bool `json:"allow_field_removal"`
	AllowFieldModification bool `json:"allow_field_modification"`
	AllowSettingsOverride  bool `json:"allow_settings_override"`

	// Priority orders parents when a child has more than one
	Priority int  `json:"priority"`
	IsActive bool `json:"is_active"`

	ValidationStatus string    `json:"validation_status,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ResolvedTemplate is the outcome of inheritance resolution
type ResolvedTemplate struct {
	// EffectiveTemplate is the merged template, base ancestors applied
	// first and each descendant's overrides on top
	EffectiveTemplate *Template `json:"effective_template"`

	// InheritanceChain lists ancestor template IDs, closest parent first
	InheritanceChain []string `json:"inheritance_chain"`

	// PropertySources records which template contributed each final
	// field ("field:<name>") and setting ("setting:<name>") value
	PropertySources map[string]string `json:"property_sources"`
}
