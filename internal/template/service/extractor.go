package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	docdomain "github.com/threatdocs/threatdocs-backend/internal/docprocess/domain"
	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
)

// Per-value confidence by how the value was obtained. Pattern hits on
// text are strong; keyword proximity and zone-scoped matches less so;
// defaults are weakest.
const (
	confidencePattern  = 0.9
	confidenceKeyword  = 0.7
	confidenceZone     = 0.75
	confidenceMetadata = 0.95
	confidenceDefault  = 0.5
)

// FieldExtractor applies a template's field definitions to a processed
// document
type FieldExtractor struct {
	logger *logger.Logger
}

// NewFieldExtractor creates a new extractor
func NewFieldExtractor(log *logger.Logger) *FieldExtractor {
	return &FieldExtractor{logger: log}
}

// Extract runs every field of the template against the document in
// processing order. Conditional rules see the values extracted before
// them, which is why ordering matters.
func (e *FieldExtractor) Extract(tmpl *domain.Template, doc *docdomain.ProcessedDocument) *docdomain.ExtractionOutcome {
	started := time.Now()
	outcome := &docdomain.ExtractionOutcome{TemplateID: tmpl.ID}
	extracted := make(map[string]string)

	for _, field := range tmpl.OrderedFields() {
		value, ok, warning := e.extractField(&field, doc, extracted)
		if warning != "" {
			outcome.Warnings = append(outcome.Warnings, warning)
		}
		if !ok {
			if field.Required {
				outcome.Missing = append(outcome.Missing, field.Name)
			}
			continue
		}
		extracted[field.Name] = value.Value
		outcome.Values = append(outcome.Values, *value)
	}

	outcome.Confidence = overallConfidence(tmpl, outcome)
	outcome.Elapsed = time.Since(started)
	outcome.ElapsedMs = outcome.Elapsed.Milliseconds()

	e.logger.Debug().
		Str("template_id", tmpl.ID).
		Int("extracted", len(outcome.Values)).
		Int("missing", len(outcome.Missing)).
		Float64("confidence", outcome.Confidence).
		Msg("fields extracted")

	return outcome
}

func (e *FieldExtractor) extractField(field *domain.Field, doc *docdomain.ProcessedDocument, prior map[string]string) (*docdomain.ExtractedValue, bool, string) {
	// Conditional rules run first; they can short-circuit extraction
	for _, rule := range field.ConditionalRules {
		if !conditionHolds(rule, prior) {
			continue
		}
		switch rule.Action {
		case domain.ActionSkip:
			return nil, false, ""
		case domain.ActionUseDefault:
			if field.DefaultValue == "" {
				return nil, false, fmt.Sprintf("field %q: conditional use_default with no default value", field.Name)
			}
			return e.finish(field, field.DefaultValue, confidenceDefault, "default"), true, ""
		case domain.ActionSetValue:
			return e.finish(field, rule.ActionValue, confidencePattern, "conditional"), true, ""
		}
	}

	if field.Method == domain.MethodMetadata {
		if v := metadataValue(field, doc); v != "" {
			return e.finish(field, v, confidenceMetadata, "metadata"), true, ""
		}
		return e.fallbackDefault(field)
	}

	text := e.scopeText(field, doc)

	if raw, conf, source := e.matchRules(field, text); raw != "" {
		value := e.finish(field, raw, conf, source)
		if warn := e.checkValue(field, value.Value); warn != "" {
			return value, true, warn
		}
		return value, true, ""
	}

	if raw := keywordValue(field, text); raw != "" {
		value := e.finish(field, raw, confidenceKeyword, "keyword")
		if warn := e.checkValue(field, value.Value); warn != "" {
			return value, true, warn
		}
		return value, true, ""
	}

	return e.fallbackDefault(field)
}

// scopeText narrows the searched text to the pages the field's zones
// name when page structure is available. Pixel-accurate zone cropping
// lives with the document processors; here zones bound the search.
func (e *FieldExtractor) scopeText(field *domain.Field, doc *docdomain.ProcessedDocument) string {
	if len(field.Zones) == 0 || len(doc.Pages) == 0 {
		return doc.Text
	}
	var parts []string
	seen := make(map[int]bool)
	for _, zone := range field.Zones {
		idx := zone.PageNumber - 1
		if idx < 0 || idx >= len(doc.Pages) || seen[idx] {
			continue
		}
		seen[idx] = true
		parts = append(parts, doc.Pages[idx])
	}
	if len(parts) == 0 {
		return doc.Text
	}
	return strings.Join(parts, "\n")
}

// matchRules tries prioritized rules first, then the field's plain
// pattern list. First match wins.
func (e *FieldExtractor) matchRules(field *domain.Field, text string) (string, float64, string) {
	rules := append([]domain.ExtractionRule(nil), field.Rules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	for _, rule := range rules {
		if v := applyPattern(rule.Pattern, text); v != "" {
			return v, confidencePattern, "rule"
		}
	}
	for _, pattern := range field.Patterns {
		if v := applyPattern(pattern, text); v != "" {
			return v, confidencePattern, "pattern"
		}
	}
	return "", 0, ""
}

// applyPattern returns the first capture group when the pattern has
// one, the whole match otherwise
func applyPattern(pattern, text string) string {
	re, err := regexp.Compile("(?im)" + pattern)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if len(m) > 1 && m[1] != "" {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[0])
}

// keywordValue grabs the remainder of the line after a keyword, the
// usual "Label: value" document shape
func keywordValue(field *domain.Field, text string) string {
	for _, kw := range field.Keywords {
		re, err := regexp.Compile(`(?im)` + regexp.QuoteMeta(kw) + `\s*[:\-]?\s*(.+)$`)
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func metadataValue(field *domain.Field, doc *docdomain.ProcessedDocument) string {
	switch strings.ToLower(field.Name) {
	case "title":
		return doc.Metadata.Title
	case "author":
		return doc.Metadata.Author
	case "filename", "file_name":
		return doc.Metadata.FileName
	}
	for _, kw := range field.Keywords {
		switch strings.ToLower(kw) {
		case "title":
			return doc.Metadata.Title
		case "author":
			return doc.Metadata.Author
		case "filename", "file_name":
			return doc.Metadata.FileName
		}
	}
	return ""
}

func (e *FieldExtractor) fallbackDefault(field *domain.Field) (*docdomain.ExtractedValue, bool, string) {
	if field.DefaultValue == "" {
		return nil, false, ""
	}
	return e.finish(field, field.DefaultValue, confidenceDefault, "default"), true, ""
}

// finish applies transforms and multi-value splitting to a raw value
func (e *FieldExtractor) finish(field *domain.Field, raw string, confidence float64, source string) *docdomain.ExtractedValue {
	value := &docdomain.ExtractedValue{
		Field:      field.Name,
		Confidence: confidence,
		Source:     source,
	}

	if field.MultiValue {
		sep := field.Separator
		if sep == "" {
			sep = ","
		}
		for _, part := range strings.Split(raw, sep) {
			part = transform(strings.TrimSpace(part), field.FormatTransform)
			if part != "" {
				value.Values = append(value.Values, part)
			}
		}
		if len(value.Values) > 0 {
			value.Value = value.Values[0]
		}
		return value
	}

	value.Value = transform(strings.TrimSpace(raw), field.FormatTransform)
	return value
}

func transform(v, name string) string {
	switch name {
	case "uppercase":
		return strings.ToUpper(v)
	case "lowercase":
		return strings.ToLower(v)
	case "trim":
		return strings.TrimSpace(v)
	default:
		return v
	}
}

// checkValue reports a warning when the extracted value violates the
// field's own constraints. Extraction still returns the value; policy
// decides what to do with the warning.
func (e *FieldExtractor) checkValue(field *domain.Field, v string) string {
	switch field.Type {
	case domain.FieldTypeDropdownList:
		for _, opt := range field.Options {
			if strings.EqualFold(opt, v) {
				return ""
			}
		}
		return fmt.Sprintf("field %q: value %q is not an allowed option", field.Name, v)
	case domain.FieldTypeNumber:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Sprintf("field %q: value %q is not numeric", field.Name, v)
		}
		if field.MinValue != nil && n < *field.MinValue {
			return fmt.Sprintf("field %q: value %v below minimum %v", field.Name, n, *field.MinValue)
		}
		if field.MaxValue != nil && n > *field.MaxValue {
			return fmt.Sprintf("field %q: value %v above maximum %v", field.Name, n, *field.MaxValue)
		}
	}
	return ""
}

func conditionHolds(rule domain.ConditionalRule, prior map[string]string) bool {
	source, ok := prior[rule.SourceField]
	if !ok {
		return false
	}
	switch rule.Operator {
	case domain.OpEquals:
		return strings.EqualFold(source, rule.Value)
	case domain.OpNotEquals:
		return !strings.EqualFold(source, rule.Value)
	case domain.OpContains:
		return strings.Contains(strings.ToLower(source), strings.ToLower(rule.Value))
	case domain.OpMatches:
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			return false
		}
		return re.MatchString(source)
	}
	return false
}

// overallConfidence averages per-value confidences over all fields,
// counting absent fields as zero
func overallConfidence(tmpl *domain.Template, outcome *docdomain.ExtractionOutcome) float64 {
	if len(tmpl.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, v := range outcome.Values {
		sum += v.Confidence
	}
	return sum / float64(len(tmpl.Fields))
}
