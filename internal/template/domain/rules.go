package domain

// ExtractionRule is a prioritized regular-expression rule on a field.
// Rules are applied in descending priority; the first rule that matches wins.
type ExtractionRule struct {
	Pattern  string `json:"pattern"`
	Priority int    `json:"priority"`
}

// ConditionOperator compares another field's extracted value
type ConditionOperator string

const (
	OpEquals    ConditionOperator = "equals"
	OpNotEquals ConditionOperator = "not_equals"
	OpContains  ConditionOperator = "contains"
	OpMatches   ConditionOperator = "matches"
)

// ConditionalAction is what happens when a condition holds
type ConditionalAction string

const (
	ActionSkip       ConditionalAction = "skip"
	ActionUseDefault ConditionalAction = "use_default"
	ActionSetValue   ConditionalAction = "set_value"
)

// ConditionalRule makes extraction of a field depend on another field's value
type ConditionalRule struct {
	SourceField string            `json:"source_field"`
	Operator    ConditionOperator `json:"operator"`
	Value       string            `json:"value"`
	Action      ConditionalAction `json:"action"`
	ActionValue string            `json:"action_value,omitempty"`
}

// KnownOperator reports whether the operator is part of the condition syntax
func KnownOperator(op ConditionOperator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpMatches:
		return true
	}
	return false
}

// KnownAction reports whether the action is part of the condition syntax
func KnownAction(a ConditionalAction) bool {
	switch a {
	case ActionSkip, ActionUseDefault, ActionSetValue:
		return true
	}
	return false
}
