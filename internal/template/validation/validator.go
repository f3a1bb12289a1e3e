package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
)

// MaxNameLength bounds template names
const MaxNameLength = 255

// pathHostileChars are rejected in template names because names end up
// in export file paths
var pathHostileChars = regexp.MustCompile(`[/\\:*?"<>|\x00]`)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options control validation strictness
type Options struct {
	// StrictZones promotes overlapping-zone and zone+pattern warnings
	// to errors
	StrictZones bool
}

// Result is the outcome of validating a template. Validation is
// exhaustive: all errors and warnings are collected, never just the
// first one found.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *Result) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validator performs pure structural template validation. It does no
// I/O; name uniqueness against the store is checked by the service
// layer before persistence.
type Validator struct {
	opts Options
}

// New creates a validator with the given options
func New(opts Options) *Validator {
	return &Validator{opts: opts}
}

// Validate checks all structural invariants of a template
func (v *Validator) Validate(t *domain.Template) *Result {
	res := &Result{Errors: []string{}, Warnings: []string{}}

	v.checkName(t, res)
	v.checkFields(t, res)
	v.checkFormats(t, res)
	v.checkCriteria(t, res)

	if t.ConfidenceThreshold < 0 || t.ConfidenceThreshold > 1 {
		res.addError("confidence threshold %v must be between 0 and 1", t.ConfidenceThreshold)
	}
	if t.Priority < 0 {
		res.addError("priority must not be negative")
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func (v *Validator) checkName(t *domain.Template, res *Result) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		res.addError("template name must not be empty")
		return
	}
	if len(t.Name) > MaxNameLength {
		res.addError("template name exceeds %d characters", MaxNameLength)
	}
	if pathHostileChars.MatchString(t.Name) {
		res.addError("template name contains forbidden characters")
	}
}

func (v *Validator) checkFields(t *domain.Template, res *Result) {
	if len(t.Fields) == 0 {
		res.addError("template must define at least one field")
		return
	}

	seen := make(map[string]bool, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]

		if f.Name == "" {
			res.addError("field %d has no name", i)
		} else {
			if !identifierPattern.MatchString(f.Name) {
				res.addError("field %q: name must be identifier-safe", f.Name)
			}
			if seen[f.Name] {
				res.addError("duplicate field name %q", f.Name)
			}
			seen[f.Name] = true
		}

		v.checkField(t, f, res)
	}

	// Conditional rules may only reference fields that exist
	for i := range t.Fields {
		f := &t.Fields[i]
		for _, cr := range f.ConditionalRules {
			if cr.SourceField != "" && !seen[cr.SourceField] {
				res.addError("field %q: conditional rule references unknown field %q", f.Name, cr.SourceField)
			}
		}
	}
}

func (v *Validator) checkField(t *domain.Template, f *domain.Field, res *Result) {
	for _, p := range f.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			res.addError("field %q: pattern %q does not compile: %v", f.Name, p, err)
		}
	}

	switch f.Type {
	case domain.FieldTypeDropdownList:
		if len(f.Options) == 0 {
			res.addError("field %q: dropdown fields require at least one option", f.Name)
		}
	case domain.FieldTypeNumber:
		if f.MinValue != nil && f.MaxValue != nil && *f.MinValue > *f.MaxValue {
			res.addError("field %q: minimum value %v exceeds maximum %v", f.Name, *f.MinValue, *f.MaxValue)
		}
	case domain.FieldTypeEmail:
		if len(f.Patterns) == 0 && len(f.Rules) == 0 {
			res.addWarning("field %q: email field has no validation pattern", f.Name)
		}
	}

	if f.ConfidenceThreshold != nil && (*f.ConfidenceThreshold < 0 || *f.ConfidenceThreshold > 1) {
		res.addError("field %q: confidence threshold must be between 0 and 1", f.Name)
	}

	if f.MultiValue && f.Separator == "" {
		res.addWarning("field %q: multi-value field has no separator, defaulting to comma", f.Name)
	}

	v.checkZones(f, res)
	v.checkRules(f, res)
	v.checkConditionalRules(f, res)

	// Zones plus text patterns on the same field is legal but usually
	// a sign of an unfinished edit
	if len(f.Zones) > 0 && len(f.Patterns) > 0 {
		if v.opts.StrictZones {
			res.addError("field %q: combines extraction zones with text patterns", f.Name)
		} else {
			res.addWarning("field %q: combines extraction zones with text patterns", f.Name)
		}
	}
}

func (v *Validator) checkZones(f *domain.Field, res *Result) {
	for i, z := range f.Zones {
		if z.Width <= 0 || z.Height <= 0 {
			res.addError("field %q: zone %d must have positive dimensions", f.Name, i)
		}
		if z.X < 0 || z.Y < 0 {
			res.addError("field %q: zone %d must have non-negative coordinates", f.Name, i)
		}
		if z.PageNumber < 1 {
			res.addError("field %q: zone %d page number must be 1 or greater", f.Name, i)
		}

		switch z.CoordinateSystem {
		case domain.CoordsPercentage:
			if z.X+z.Width > 100 || z.Y+z.Height > 100 {
				res.addError("field %q: zone %d exceeds percentage bounds [0,100]", f.Name, i)
			}
		case domain.CoordsNormalized:
			if z.X+z.Width > 1 || z.Y+z.Height > 1 {
				res.addError("field %q: zone %d exceeds normalized bounds [0,1]", f.Name, i)
			}
		case domain.CoordsPixel, domain.CoordsPoints:
			// bounded by document dimensions, checked at extraction time
		default:
			res.addError("field %q: zone %d has unknown coordinate system %q", f.Name, i, z.CoordinateSystem)
		}
	}

	// Overlapping zones on the same field are allowed but flagged
	for i := 0; i < len(f.Zones); i++ {
		for j := i + 1; j < len(f.Zones); j++ {
			if f.Zones[i].Overlaps(f.Zones[j]) {
				if v.opts.StrictZones {
					res.addError("field %q: zones %d and %d overlap on page %d", f.Name, i, j, f.Zones[i].PageNumber)
				} else {
					res.addWarning("field %q: zones %d and %d overlap on page %d", f.Name, i, j, f.Zones[i].PageNumber)
				}
			}
		}
	}
}

func (v *Validator) checkRules(f *domain.Field, res *Result) {
	priorities := make(map[int]int)
	for i, r := range f.Rules {
		if strings.TrimSpace(r.Pattern) == "" {
			res.addError("field %q: rule %d has an empty pattern", f.Name, i)
			continue
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			res.addError("field %q: rule %d pattern does not compile: %v", f.Name, i, err)
		}
		priorities[r.Priority]++
	}

	for prio, count := range priorities {
		if count > 1 {
			res.addWarning("field %q: %d rules share priority %d", f.Name, count, prio)
		}
	}
}

func (v *Validator) checkConditionalRules(f *domain.Field, res *Result) {
	for i, cr := range f.ConditionalRules {
		if cr.SourceField == "" {
			res.addError("field %q: conditional rule %d has no source field", f.Name, i)
		}
		if !domain.KnownOperator(cr.Operator) {
			res.addError("field %q: conditional rule %d has unknown operator %q", f.Name, i, cr.Operator)
		}
		if !domain.KnownAction(cr.Action) {
			res.addError("field %q: conditional rule %d has unknown action %q", f.Name, i, cr.Action)
		}
		if cr.Operator == domain.OpMatches {
			if _, err := regexp.Compile(cr.Value); err != nil {
				res.addError("field %q: conditional rule %d condition pattern does not compile: %v", f.Name, i, err)
			}
		}
		if cr.Action == domain.ActionSetValue && cr.ActionValue == "" {
			res.addWarning("field %q: conditional rule %d sets an empty value", f.Name, i)
		}
	}
}

func (v *Validator) checkFormats(t *domain.Template, res *Result) {
	if len(t.SupportedFormats) == 0 {
		res.addError("template must support at least one document format")
		return
	}
	for _, f := range t.SupportedFormats {
		if !domain.IsKnownFormat(f) {
			res.addError("unknown document format %q", f)
		}
	}
}

func (v *Validator) checkCriteria(t *domain.Template, res *Result) {
	c := t.MatchingCriteria
	for _, group := range [][]string{c.FilenamePatterns, c.TitlePatterns, c.AuthorPatterns} {
		for _, p := range group {
			if _, err := regexp.Compile(p); err != nil {
				res.addError("matching criteria pattern %q does not compile: %v", p, err)
			}
		}
	}
	if c.MinimumConfidence < 0 || c.MinimumConfidence > 1 {
		res.addError("matching criteria minimum confidence must be between 0 and 1")
	}
}

// ValidateEdge checks the structural invariants of an inheritance edge
// that do not require graph access: self-reference and flag coherence.
// Cycle and depth checks live in the resolver, which can see the graph.
func ValidateEdge(e *domain.TemplateInheritance) *Result {
	res := &Result{Errors: []string{}, Warnings: []string{}}

	if e.ChildID == e.ParentID {
		res.addError("a template cannot inherit from itself")
	}

	for name, action := range e.FieldOverrides {
		switch action {
		case domain.FieldRemove:
			if !e.AllowFieldRemoval {
				res.addError("field %q is marked for removal but the edge forbids field removal", name)
			}
		case domain.FieldOverride:
			if !e.AllowFieldModification {
				res.addError("field %q is marked for override but the edge forbids field modification", name)
			}
		case domain.FieldInherit:
			// always allowed
		default:
			res.addError("field %q has unknown override action %q", name, action)
		}
	}

	if len(e.SettingsOverrides) > 0 && !e.AllowSettingsOverride {
		res.addError("edge carries settings overrides but forbids settings override")
	}

	switch e.Type {
	case domain.InheritFull, domain.InheritFieldsOnly, domain.InheritSettingsOnly, domain.InheritCustom:
	default:
		res.addError("unknown inheritance type %q", e.Type)
	}

	res.IsValid = len(res.Errors) == 0
	return res
}
