package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
)

// NewTemplateFixture returns a minimal valid template for tests.
// Callers mutate the result to set up the case under test.
func NewTemplateFixture(name string) *domain.Template {
	id := uuid.New().String()
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	return &domain.Template{
		ID:                  id,
		Name:                name,
		Description:         "fixture template",
		Version:             "1.0",
		Category:            "security-review",
		IsActive:            true,
		ConfidenceThreshold: 0.5,
		Priority:            0,
		SupportedFormats:    []domain.DocumentFormat{domain.FormatPDF, domain.FormatTXT},
		LineageID:           id,
		CreatedBy:           "tester",
		CreatedAt:           now,
		LastModifiedBy:      "tester",
		LastModifiedAt:      now,
	}
}

// NewFieldFixture returns a valid text field extracting via a pattern
func NewFieldFixture(name, pattern string) domain.Field {
	return domain.Field{
		Name:     name,
		Type:     domain.FieldTypeText,
		Method:   domain.MethodPlainText,
		Patterns: []string{pattern},
	}
}

// NewEdgeFixture returns a permissive full-inheritance edge
func NewEdgeFixture(childID, parentID string) *domain.TemplateInheritance {
	return &domain.TemplateInheritance{
		ID:                     uuid.New().String(),
		ChildID:                childID,
		ParentID:               parentID,
		Type:                   domain.InheritFull,
		AllowFieldAddition:     true,
		AllowFieldRemoval:      false,
		AllowFieldModification: true,
		AllowSettingsOverride:  true,
		IsActive:               true,
		CreatedAt:              time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}
