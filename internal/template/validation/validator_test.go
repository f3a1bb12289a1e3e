package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
)

func validTemplate() *domain.Template {
	return &domain.Template{
		Name:                "Security Exception Request",
		ConfidenceThreshold: 0.6,
		SupportedFormats:    []domain.DocumentFormat{domain.FormatPDF},
		Fields: []domain.Field{
			{
				Name:     "ThreatLevel",
				Type:     domain.FieldTypeRiskLevel,
				Method:   domain.MethodPlainText,
				Patterns: []string{`Threat Level:\s*(\w+)`},
			},
		},
	}
}

func TestValidateAcceptsWellFormedTemplate(t *testing.T) {
	v := New(Options{})
	res := v.Validate(validTemplate())

	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Name = ""
	tmpl.ConfidenceThreshold = 1.5
	tmpl.Priority = -1
	tmpl.SupportedFormats = nil

	res := New(Options{}).Validate(tmpl)

	require.False(t, res.IsValid)
	// Exhaustive validation: every violation is reported, not just the first
	assert.GreaterOrEqual(t, len(res.Errors), 4)
}

func TestValidateRejectsPathHostileNames(t *testing.T) {
	for _, name := range []string{"a/b", `a\b`, "a:b", "what?", "<tag>", "pipe|name"} {
		tmpl := validTemplate()
		tmpl.Name = name

		res := New(Options{}).Validate(tmpl)
		assert.False(t, res.IsValid, "name %q should be rejected", name)
	}
}

func TestValidateRejectsOverlongName(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Name = strings.Repeat("x", MaxNameLength+1)

	res := New(Options{}).Validate(tmpl)
	assert.False(t, res.IsValid)
}

func TestValidateRejectsDuplicateFieldNames(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Fields = append(tmpl.Fields, tmpl.Fields[0])

	res := New(Options{}).Validate(tmpl)

	require.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "duplicate field name")
}

func TestValidateRejectsUncompilablePattern(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Fields[0].Patterns = []string{`[unclosed`}

	res := New(Options{}).Validate(tmpl)
	assert.False(t, res.IsValid)
}

func TestValidateDropdownRequiresOptions(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Fields[0].Type = domain.FieldTypeDropdownList
	tmpl.Fields[0].Options = nil

	res := New(Options{}).Validate(tmpl)
	assert.False(t, res.IsValid)
}

func TestValidateNumberBounds(t *testing.T) {
	lo, hi := 10.0, 5.0
	tmpl := validTemplate()
	tmpl.Fields[0].Type = domain.FieldTypeNumber
	tmpl.Fields[0].MinValue = &lo
	tmpl.Fields[0].MaxValue = &hi

	res := New(Options{}).Validate(tmpl)
	assert.False(t, res.IsValid)
}

func TestValidateConditionalRuleSourceMustExist(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Fields[0].ConditionalRules = []domain.ConditionalRule{{
		SourceField: "NoSuchField",
		Operator:    domain.OpEquals,
		Value:       "x",
		Action:      domain.ActionSkip,
	}}

	res := New(Options{}).Validate(tmpl)

	require.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "unknown field")
}

func TestValidateZoneBounds(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Fields[0].Patterns = nil
	tmpl.Fields[0].Zones = []domain.ExtractionZone{
		{X: 50, Y: 60, Width: 60, Height: 10, PageNumber: 1, CoordinateSystem: domain.CoordsPercentage, Type: domain.ZoneText},
	}

	res := New(Options{}).Validate(tmpl)

	require.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "percentage bounds")
}

func TestValidateZonePageNumber(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Fields[0].Patterns = nil
	tmpl.Fields[0].Zones = []domain.ExtractionZone{
		{X: 0, Y: 0, Width: 10, Height: 10, PageNumber: 0, CoordinateSystem: domain.CoordsPixel, Type: domain.ZoneText},
	}

	res := New(Options{}).Validate(tmpl)
	assert.False(t, res.IsValid)
}

func TestValidateOverlappingZonesWarnByDefault(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Fields[0].Patterns = nil
	tmpl.Fields[0].Zones = []domain.ExtractionZone{
		{X: 0, Y: 0, Width: 10, Height: 10, PageNumber: 1, CoordinateSystem: domain.CoordsPixel, Type: domain.ZoneText},
		{X: 5, Y: 5, Width: 10, Height: 10, PageNumber: 1, CoordinateSystem: domain.CoordsPixel, Type: domain.ZoneText},
	}

	res := New(Options{}).Validate(tmpl)

	assert.True(t, res.IsValid)
	assert.NotEmpty(t, res.Warnings)
}

func TestValidateOverlappingZonesFailInStrictMode(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Fields[0].Patterns = nil
	tmpl.Fields[0].Zones = []domain.ExtractionZone{
		{X: 0, Y: 0, Width: 10, Height: 10, PageNumber: 1, CoordinateSystem: domain.CoordsPixel, Type: domain.ZoneText},
		{X: 5, Y: 5, Width: 10, Height: 10, PageNumber: 1, CoordinateSystem: domain.CoordsPixel, Type: domain.ZoneText},
	}

	res := New(Options{StrictZones: true}).Validate(tmpl)
	assert.False(t, res.IsValid)
}

func TestValidateZonesPlusPatternsWarns(t *testing.T) {
	tmpl := validTemplate()
	tmpl.Fields[0].Zones = []domain.ExtractionZone{
		{X: 0, Y: 0, Width: 10, Height: 10, PageNumber: 1, CoordinateSystem: domain.CoordsPixel, Type: domain.ZoneText},
	}

	res := New(Options{}).Validate(tmpl)

	assert.True(t, res.IsValid)
	assert.NotEmpty(t, res.Warnings)
}

func TestValidateEdgeRejectsSelfInheritance(t *testing.T) {
	res := ValidateEdge(&domain.TemplateInheritance{
		ChildID:  "a",
		ParentID: "a",
		Type:     domain.InheritFull,
	})

	assert.False(t, res.IsValid)
}

func TestValidateEdgeFlagCoherence(t *testing.T) {
	res := ValidateEdge(&domain.TemplateInheritance{
		ChildID:  "a",
		ParentID: "b",
		Type:     domain.InheritFull,
		FieldOverrides: map[string]domain.FieldOverrideAction{
			"ThreatLevel": domain.FieldRemove,
		},
		AllowFieldRemoval: false,
	})

	require.False(t, res.IsValid)
	assert.Contains(t, res.Errors[0], "forbids field removal")
}

func TestValidateEdgeSettingsOverridesNeedPermission(t *testing.T) {
	res := ValidateEdge(&domain.TemplateInheritance{
		ChildID:           "a",
		ParentID:          "b",
		Type:              domain.InheritFull,
		SettingsOverrides: map[string]string{"priority": "5"},
	})

	assert.False(t, res.IsValid)
}
