package domain

// FieldType identifies the semantic type of an extracted field
type FieldType string

const (
	FieldTypeText           FieldType = "text"
	FieldTypeDate           FieldType = "date"
	FieldTypeNumber         FieldType = "number"
	FieldTypeEmail          FieldType = "email"
	FieldTypeDropdownList   FieldType = "dropdown_list"
	FieldTypeUsername       FieldType = "username"
	FieldTypeTicketNumber   FieldType = "ticket_number"
	FieldTypeApprovalStatus FieldType = "approval_status"
	FieldTypeRiskLevel      FieldType = "risk_level"
	FieldTypeCustom         FieldType = "custom"
)

// ExtractionMethod identifies how a field's value is obtained
type ExtractionMethod string

const (
	MethodPlainText ExtractionMethod = "plain_text"
	MethodZone      ExtractionMethod = "zone"
	MethodOCR       ExtractionMethod = "ocr"
	MethodMetadata  ExtractionMethod = "metadata"
	MethodHybrid    ExtractionMethod = "hybrid"
)

// Field is a single named datum a template extracts
type Field struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	Type        FieldType `json:"type"`

	Method   ExtractionMethod `json:"method"`
	Required bool             `json:"required"`

	// Patterns are regular expressions applied to document text.
	// The first capture group, when present, is the extracted value.
	Patterns []string `json:"patterns,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	Zones            []ExtractionZone  `json:"zones,omitempty"`
	Rules            []ExtractionRule  `json:"rules,omitempty"`
	ConditionalRules []ConditionalRule `json:"conditional_rules,omitempty"`

	DefaultValue    string `json:"default_value,omitempty"`
	FormatTransform string `json:"format_transform,omitempty"`

	// ConfidenceThreshold overrides the template-level threshold when set
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`

	MultiValue bool   `json:"multi_value,omitempty"`
	Separator  string `json:"separator,omitempty"`

	// Options are the allowed values for dropdown_list fields
	Options []string `json:"options,omitempty"`

	// MinValue/MaxValue bound number fields when set
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`

	ProcessingOrder int `json:"processing_order"`
}

// Clone returns a deep copy of the field
func (f Field) Clone() Field {
	c := f
	c.Patterns = append([]string(nil), f.Patterns...)
	c.Keywords = append([]string(nil), f.Keywords...)
	c.Zones = append([]ExtractionZone(nil), f.Zones...)
	c.Rules = append([]ExtractionRule(nil), f.Rules...)
	c.ConditionalRules = append([]ConditionalRule(nil), f.ConditionalRules...)
	c.Options = append([]string(nil), f.Options...)
	if f.ConfidenceThreshold != nil {
		v := *f.ConfidenceThreshold
		c.ConfidenceThreshold = &v
	}
	if f.MinValue != nil {
		v := *f.MinValue
		c.MinValue = &v
	}
	if f.MaxValue != nil {
		v := *f.MaxValue
		c.MaxValue = &v
	}
	return c
}
