package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docdomain "github.com/threatdocs/threatdocs-backend/internal/docprocess/domain"
	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/testutil"
)

func securityReviewTemplate() *domain.Template {
	tmpl := testutil.NewTemplateFixture("Security Review")
	tmpl.Fields = []domain.Field{
		{
			Name:            "ThreatLevel",
			Type:            domain.FieldTypeRiskLevel,
			Method:          domain.MethodPlainText,
			Required:        true,
			Patterns:        []string{`Threat Level:\s*(\w+)`},
			ProcessingOrder: 1,
		},
		{
			Name:            "Analyst",
			Type:            domain.FieldTypeUsername,
			Method:          domain.MethodPlainText,
			Required:        true,
			Patterns:        []string{`Analyst:\s*(\S+)`},
			ProcessingOrder: 2,
		},
	}
	return tmpl
}

func reviewDoc() *docdomain.ProcessedDocument {
	return &docdomain.ProcessedDocument{
		Text: "Security Review Report\nThreat Level: High\nAnalyst: jdoe\n",
		Metadata: docdomain.DocumentMetadata{
			FileName: "review.txt",
			Format:   "txt",
		},
	}
}

func valueByField(outcome *docdomain.ExtractionOutcome, name string) *docdomain.ExtractedValue {
	for i := range outcome.Values {
		if outcome.Values[i].Field == name {
			return &outcome.Values[i]
		}
	}
	return nil
}

func TestExtractCaptureGroups(t *testing.T) {
	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(securityReviewTemplate(), reviewDoc())

	require.Empty(t, outcome.Missing)

	threat := valueByField(outcome, "ThreatLevel")
	require.NotNil(t, threat)
	assert.Equal(t, "High", threat.Value)

	analyst := valueByField(outcome, "Analyst")
	require.NotNil(t, analyst)
	assert.Equal(t, "jdoe", analyst.Value)

	assert.Greater(t, outcome.Confidence, 0.7)
}

func TestExtractReportsMissingRequiredFields(t *testing.T) {
	doc := reviewDoc()
	doc.Text = "Security Review Report\nThreat Level: High\n"

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(securityReviewTemplate(), doc)

	assert.Equal(t, []string{"Analyst"}, outcome.Missing)
	assert.Less(t, outcome.Confidence, 0.7)
}

func TestExtractRulePriorityOrder(t *testing.T) {
	tmpl := securityReviewTemplate()
	tmpl.Fields = tmpl.Fields[:1]
	tmpl.Fields[0].Patterns = nil
	tmpl.Fields[0].Rules = []domain.ExtractionRule{
		{Pattern: `Level:\s*(\w+)`, Priority: 1},
		{Pattern: `Threat Level:\s*(\w+)`, Priority: 10},
	}

	doc := reviewDoc()
	doc.Text = "Alert Level: Low\nThreat Level: Critical\n"

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(tmpl, doc)

	threat := valueByField(outcome, "ThreatLevel")
	require.NotNil(t, threat)
	assert.Equal(t, "Critical", threat.Value)
	assert.Equal(t, "rule", threat.Source)
}

func TestExtractConditionalSkip(t *testing.T) {
	tmpl := securityReviewTemplate()
	tmpl.Fields = append(tmpl.Fields, domain.Field{
		Name:            "EscalationContact",
		Type:            domain.FieldTypeText,
		Method:          domain.MethodPlainText,
		Patterns:        []string{`Escalation:\s*(\S+)`},
		ProcessingOrder: 3,
		ConditionalRules: []domain.ConditionalRule{{
			SourceField: "ThreatLevel",
			Operator:    domain.OpEquals,
			Value:       "High",
			Action:      domain.ActionSkip,
		}},
	})

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(tmpl, reviewDoc())

	assert.Nil(t, valueByField(outcome, "EscalationContact"))
	assert.NotContains(t, outcome.Missing, "EscalationContact")
}

func TestExtractConditionalUseDefault(t *testing.T) {
	tmpl := securityReviewTemplate()
	tmpl.Fields = append(tmpl.Fields, domain.Field{
		Name:            "ApprovalStatus",
		Type:            domain.FieldTypeApprovalStatus,
		Method:          domain.MethodPlainText,
		DefaultValue:    "pending_review",
		ProcessingOrder: 3,
		ConditionalRules: []domain.ConditionalRule{{
			SourceField: "ThreatLevel",
			Operator:    domain.OpEquals,
			Value:       "High",
			Action:      domain.ActionUseDefault,
		}},
	})

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(tmpl, reviewDoc())

	status := valueByField(outcome, "ApprovalStatus")
	require.NotNil(t, status)
	assert.Equal(t, "pending_review", status.Value)
	assert.Equal(t, "default", status.Source)
}

func TestExtractMultiValueSplitting(t *testing.T) {
	tmpl := securityReviewTemplate()
	tmpl.Fields = []domain.Field{{
		Name:       "AffectedSystems",
		Type:       domain.FieldTypeText,
		Method:     domain.MethodPlainText,
		Patterns:   []string{`Systems:\s*(.+)`},
		MultiValue: true,
		Separator:  ",",
	}}

	doc := reviewDoc()
	doc.Text = "Systems: web-frontend, auth-service, billing-db\n"

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(tmpl, doc)

	systems := valueByField(outcome, "AffectedSystems")
	require.NotNil(t, systems)
	assert.Equal(t, []string{"web-frontend", "auth-service", "billing-db"}, systems.Values)
}

func TestExtractFormatTransform(t *testing.T) {
	tmpl := securityReviewTemplate()
	tmpl.Fields = tmpl.Fields[:1]
	tmpl.Fields[0].FormatTransform = "uppercase"

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(tmpl, reviewDoc())

	threat := valueByField(outcome, "ThreatLevel")
	require.NotNil(t, threat)
	assert.Equal(t, "HIGH", threat.Value)
}

func TestExtractKeywordLineValue(t *testing.T) {
	tmpl := securityReviewTemplate()
	tmpl.Fields = []domain.Field{{
		Name:     "Severity",
		Type:     domain.FieldTypeText,
		Method:   domain.MethodPlainText,
		Keywords: []string{"Severity"},
	}}

	doc := reviewDoc()
	doc.Text = "Severity: Medium\n"

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(tmpl, doc)

	sev := valueByField(outcome, "Severity")
	require.NotNil(t, sev)
	assert.Equal(t, "Medium", sev.Value)
	assert.Equal(t, "keyword", sev.Source)
}

func TestExtractDropdownOptionWarning(t *testing.T) {
	tmpl := securityReviewTemplate()
	tmpl.Fields = []domain.Field{{
		Name:     "Verdict",
		Type:     domain.FieldTypeDropdownList,
		Method:   domain.MethodPlainText,
		Patterns: []string{`Verdict:\s*(\w+)`},
		Options:  []string{"approved", "rejected"},
	}}

	doc := reviewDoc()
	doc.Text = "Verdict: maybe\n"

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(tmpl, doc)

	require.NotNil(t, valueByField(outcome, "Verdict"))
	assert.NotEmpty(t, outcome.Warnings)
}

func TestExtractMetadataMethod(t *testing.T) {
	tmpl := securityReviewTemplate()
	tmpl.Fields = []domain.Field{{
		Name:   "Author",
		Type:   domain.FieldTypeText,
		Method: domain.MethodMetadata,
	}}

	doc := reviewDoc()
	doc.Metadata.Author = "J. Doe"

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(tmpl, doc)

	author := valueByField(outcome, "Author")
	require.NotNil(t, author)
	assert.Equal(t, "J. Doe", author.Value)
	assert.Equal(t, "metadata", author.Source)
}

func TestExtractZoneScopedToPage(t *testing.T) {
	tmpl := securityReviewTemplate()
	tmpl.Fields = []domain.Field{{
		Name:     "Signature",
		Type:     domain.FieldTypeText,
		Method:   domain.MethodZone,
		Patterns: []string{`Signed:\s*(\S+)`},
		Zones: []domain.ExtractionZone{{
			X: 0, Y: 0, Width: 100, Height: 50,
			PageNumber:       2,
			CoordinateSystem: domain.CoordsPixel,
			Type:             domain.ZoneText,
		}},
	}}

	doc := reviewDoc()
	doc.Pages = []string{"Signed: wrong-page\nOther content", "Final page\nSigned: jdoe"}
	doc.Text = doc.Pages[0] + "\n" + doc.Pages[1]
	doc.PageCount = 2

	e := NewFieldExtractor(testLogger())
	outcome := e.Extract(tmpl, doc)

	sig := valueByField(outcome, "Signature")
	require.NotNil(t, sig)
	assert.Equal(t, "jdoe", sig.Value)
}
