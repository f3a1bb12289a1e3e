package domain

import "time"

// DocumentMetadata is the descriptive metadata a processor recovers
// from a file
type DocumentMetadata struct {
	FileName string `json:"file_name"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Format   string `json:"format"`
}

// ProcessedDocument is the processor output the matcher and field
// extraction consume: text plus per-page structure and metadata
type ProcessedDocument struct {
	Text      string           `json:"text"`
	Pages     []string         `json:"pages,omitempty"`
	PageCount int              `json:"page_count"`
	Metadata  DocumentMetadata `json:"metadata"`
	Content   []byte           `json:"-"`
}

// ExtractedValue is one field value pulled out of a document
type ExtractedValue struct {
	Field      string   `json:"field"`
	Value      string   `json:"value"`
	Values     []string `json:"values,omitempty"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source,omitempty"`
}

// ExtractionOutcome is the result of applying a template to a document
type ExtractionOutcome struct {
	TemplateID string           `json:"template_id"`
	Values     []ExtractedValue `json:"values"`
	Missing    []string         `json:"missing,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Confidence float64          `json:"confidence"`
	Elapsed    time.Duration    `json:"-"`
	ElapsedMs  int64            `json:"elapsed_ms"`
}
