package domain

import (
	"time"
)

// DocumentFormat identifies a supported input document format
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatDOC  DocumentFormat = "doc"
	FormatDOCX DocumentFormat = "docx"
	FormatXLS  DocumentFormat = "xls"
	FormatXLSX DocumentFormat = "xlsx"
	FormatTXT  DocumentFormat = "txt"
	FormatRTF  DocumentFormat = "rtf"
	FormatPNG  DocumentFormat = "png"
	FormatJPEG DocumentFormat = "jpeg"
	FormatTIFF DocumentFormat = "tiff"
)

var knownFormats = map[DocumentFormat]bool{
	FormatPDF:  true,
	FormatDOC:  true,
	FormatDOCX: true,
	FormatXLS:  true,
	FormatXLSX: true,
	FormatTXT:  true,
	FormatRTF:  true,
	FormatPNG:  true,
	FormatJPEG: true,
	FormatTIFF: true,
}

// IsKnownFormat reports whether the format is in the supported set
func IsKnownFormat(f DocumentFormat) bool {
	return knownFormats[f]
}

// Template is a named, versioned definition of what metadata to extract
// from a class of documents. It exclusively owns its Fields and their
// zones/rules; inheritance edges and cache entries reference it by ID only.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
	Category    string `json:"category,omitempty"`
	IsActive    bool   `json:"is_active"`

	ConfidenceThreshold float64 `json:"confidence_threshold"`
	AutoApply           bool    `json:"auto_apply"`
	AllowPartialMatches bool    `json:"allow_partial_matches"`
	Priority            int     `json:"priority"`

	Tags             []string         `json:"tags,omitempty"`
	SupportedFormats []DocumentFormat `json:"supported_formats"`

	MatchingCriteria MatchingCriteria `json:"matching_criteria"`
	OCRSettings      OCRSettings      `json:"ocr_settings"`
	ValidationPolicy ValidationPolicy `json:"validation_policy"`
	UsageStats       UsageStatistics  `json:"usage_stats"`

	Fields []Field `json:"fields"`

	// LineageID groups all versions of the same logical template.
	// createVersion produces a new identity within the same lineage.
	LineageID string `json:"lineage_id,omitempty"`

	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastModifiedBy string    `json:"last_modified_by,omitempty"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// FieldByName returns the field with the given name, or nil
func (t *Template) FieldByName(name string) *Field {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// OrderedFields returns the fields sorted by ascending processing order.
// The receiver's slice is not modified.
func (t *Template) OrderedFields() []Field {
	out := make([]Field, len(t.Fields))
	copy(out, t.Fields)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ProcessingOrder < out[j-1].ProcessingOrder; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Clone returns a deep copy of the template
func (t *Template) Clone() *Template {
	c := *t
	c.Tags = append([]string(nil), t.Tags...)
	c.SupportedFormats = append([]DocumentFormat(nil), t.SupportedFormats...)
	c.MatchingCriteria = t.MatchingCriteria.clone()
	c.OCRSettings.Languages = append([]string(nil), t.OCRSettings.Languages...)
	c.Fields = make([]Field, len(t.Fields))
	for i := range t.Fields {
		c.Fields[i] = t.Fields[i].Clone()
	}
	return &c
}

// ResolveThreshold returns the confidence threshold that applies,
// resolving field-level over template-level over the criteria minimum
// over the system default. The criteria minimum is a matching concern;
// it participates only in whole-template resolution, never per-field.
func ResolveThreshold(f *Field, t *Template, systemDefault float64) float64 {
	if f != nil && f.ConfidenceThreshold != nil {
		return *f.ConfidenceThreshold
	}
	if t != nil && t.ConfidenceThreshold > 0 {
		return t.ConfidenceThreshold
	}
	if f == nil && t != nil && t.MatchingCriteria.MinimumConfidence > 0 {
		return t.MatchingCriteria.MinimumConfidence
	}
	return systemDefault
}

// MatchingCriteria drives document-to-template matching. It is persisted
// as a JSON column on the template row and never leaks storage concerns
// into this type.
type MatchingCriteria struct {
	RequiredKeywords []string `json:"required_keywords,omitempty"`
	OptionalKeywords []string `json:"optional_keywords,omitempty"`
	FilenamePatterns []string `json:"filename_patterns,omitempty"`
	TitlePatterns    []string `json:"title_patterns,omitempty"`
	AuthorPatterns   []string `json:"author_patterns,omitempty"`

	MinimumConfidence float64 `json:"minimum_confidence,omitempty"`
	AutoApply         bool    `json:"auto_apply,omitempty"`
}

func (c MatchingCriteria) clone() MatchingCriteria {
	out := c
	out.RequiredKeywords = append([]string(nil), c.RequiredKeywords...)
	out.OptionalKeywords = append([]string(nil), c.OptionalKeywords...)
	out.FilenamePatterns = append([]string(nil), c.FilenamePatterns...)
	out.TitlePatterns = append([]string(nil), c.TitlePatterns...)
	out.AuthorPatterns = append([]string(nil), c.AuthorPatterns...)
	return out
}

// OCRSettings holds per-template OCR configuration
type OCRSettings struct {
	Enabled          bool     `json:"enabled"`
	Languages        []string `json:"languages,omitempty"`
	DPI              int      `json:"dpi,omitempty"`
	PreprocessImages bool     `json:"preprocess_images,omitempty"`
}

// ValidationPolicy holds per-template extraction validation settings
type ValidationPolicy struct {
	RequireAllRequiredFields bool    `json:"require_all_required_fields"`
	MinFieldConfidence       float64 `json:"min_field_confidence,omitempty"`
	TrimWhitespace           bool    `json:"trim_whitespace"`
}
