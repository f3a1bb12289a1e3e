package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/internal/template/validation"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
)

// ExportFormatVersion is the version tag written into every export.
// Imports accept the same major version only.
const ExportFormatVersion = "1.0"

// ExportMode selects how much of a template an export carries
type ExportMode string

const (
	// ExportMinimal carries structure only: fields, zones, criteria
	ExportMinimal ExportMode = "minimal"
	// ExportComplete additionally carries usage statistics, audit
	// fields, inheritance edges and version history
	ExportComplete ExportMode = "complete"
)

// TemplateExport is the interchange envelope
type TemplateExport struct {
	FormatVersion string                        `json:"format_version"`
	ExportedAt    time.Time                     `json:"exported_at"`
	ExportedBy    string                        `json:"exported_by,omitempty"`
	Mode          ExportMode                    `json:"mode"`
	Templates     []*domain.Template            `json:"templates"`
	Inheritance   []*domain.TemplateInheritance `json:"inheritance,omitempty"`
	Versions      []*domain.TemplateVersion     `json:"versions,omitempty"`
}

// ImportOptions controls how an import treats incoming templates
type ImportOptions struct {
	// AssignNewIDs gives every imported template a fresh identity and
	// lineage instead of trusting the IDs in the file
	AssignNewIDs bool `json:"assign_new_ids"`
	ImportedBy   string
}

// ImportItemError records why one template in a batch was rejected
type ImportItemError struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a batch import. A batch is not transactional
// across items: valid templates land even when siblings fail.
type ImportResult struct {
	ImportedIDs []string          `json:"imported_ids"`
	Errors      []ImportItemError `json:"errors,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// ExportSource supplies templates and edges for export
type ExportSource interface {
	GetByID(ctx context.Context, id string, includeInactive bool) (*domain.Template, error)
	ListActive(ctx context.Context) ([]*domain.Template, error)
}

// ImportStore persists imported templates
type ImportStore interface {
	Create(ctx context.Context, t *domain.Template) error
	GetByName(ctx context.Context, name string) (*domain.Template, error)
}

// EdgeLister supplies inheritance edges for complete exports
type EdgeLister interface {
	ListParents(ctx context.Context, childID string) ([]*domain.TemplateInheritance, error)
}

// VersionLister supplies version history for complete exports
type VersionLister interface {
	ListVersions(ctx context.Context, lineageID string) ([]*domain.TemplateVersion, error)
}

// ExchangeService implements JSON export and import of templates
type ExchangeService struct {
	source    ExportSource
	store     ImportStore
	edges     EdgeLister
	versions  VersionLister
	validator *validation.Validator
	logger    *logger.Logger
}

// NewExchangeService creates a new exchange service. edges and versions
// may be nil; complete exports then omit the corresponding blocks.
func NewExchangeService(source ExportSource, store ImportStore, edges EdgeLister, versions VersionLister, v *validation.Validator, log *logger.Logger) *ExchangeService {
	return &ExchangeService{
		source:    source,
		store:     store,
		edges:     edges,
		versions:  versions,
		validator: v,
		logger:    log,
	}
}

// Export serializes the named templates. With no IDs given, every
// active template is exported.
func (s *ExchangeService) Export(ctx context.Context, ids []string, mode ExportMode, exportedBy string) (*TemplateExport, error) {
	if mode != ExportMinimal && mode != ExportComplete {
		mode = ExportComplete
	}

	var templates []*domain.Template
	if len(ids) == 0 {
		all, err := s.source.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		templates = all
	} else {
		for _, id := range ids {
			t, err := s.source.GetByID(ctx, id, false)
			if err != nil {
				return nil, err
			}
			if t == nil {
				return nil, errors.NotFound("template " + id)
			}
			templates = append(templates, t)
		}
	}

	export := &TemplateExport{
		FormatVersion: ExportFormatVersion,
		ExportedAt:    time.Now().UTC(),
		ExportedBy:    exportedBy,
		Mode:          mode,
		Templates:     make([]*domain.Template, 0, len(templates)),
	}

	seenLineages := map[string]bool{}
	for _, t := range templates {
		c := t.Clone()
		if mode == ExportMinimal {
			c.UsageStats = domain.UsageStatistics{}
			c.CreatedBy = ""
			c.LastModifiedBy = ""
		} else {
			if s.edges != nil {
				edges, err := s.edges.ListParents(ctx, t.ID)
				if err != nil {
					return nil, err
				}
				export.Inheritance = append(export.Inheritance, edges...)
			}
			if s.versions != nil && t.LineageID != "" && !seenLineages[t.LineageID] {
				seenLineages[t.LineageID] = true
				versions, err := s.versions.ListVersions(ctx, t.LineageID)
				if err != nil {
					return nil, err
				}
				export.Versions = append(export.Versions, versions...)
			}
		}
		export.Templates = append(export.Templates, c)
	}

	s.logger.Info().
		Int("templates", len(export.Templates)).
		Str("mode", string(mode)).
		Msg("templates exported")

	return export, nil
}

// ExportJSON renders an export as indented JSON
func (s *ExchangeService) ExportJSON(ctx context.Context, ids []string, mode ExportMode, exportedBy string) ([]byte, error) {
	export, err := s.Export(ctx, ids, mode, exportedBy)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(export, "", "  ")
}

// Import reads an export envelope and persists its templates one by
// one, collecting per-item errors instead of aborting the batch
func (s *ExchangeService) Import(ctx context.Context, raw []byte, opts ImportOptions) (*ImportResult, error) {
	var export TemplateExport
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, errors.BadRequest("import payload is not valid JSON: " + err.Error())
	}

	if !compatibleFormat(export.FormatVersion) {
		return nil, errors.BadRequest(fmt.Sprintf(
			"unsupported format version %q, expected %s.x", export.FormatVersion, majorOf(ExportFormatVersion)))
	}
	if len(export.Templates) == 0 {
		return nil, errors.BadRequest("import payload contains no templates")
	}

	result := &ImportResult{}
	for _, t := range export.Templates {
		if err := s.importOne(ctx, t, opts, result); err != nil {
			return nil, err
		}
	}

	s.logger.Info().
		Int("imported", len(result.ImportedIDs)).
		Int("failed", len(result.Errors)).
		Msg("template import finished")

	return result, nil
}

func (s *ExchangeService) importOne(ctx context.Context, t *domain.Template, opts ImportOptions, result *ImportResult) error {
	res := s.validator.Validate(t)
	if !res.IsValid {
		result.Errors = append(result.Errors, ImportItemError{
			Name:   t.Name,
			Reason: "validation failed: " + strings.Join(res.Errors, "; "),
		})
		return nil
	}
	result.Warnings = append(result.Warnings, res.Warnings...)

	existing, err := s.store.GetByName(ctx, t.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		result.Errors = append(result.Errors, ImportItemError{
			Name:   t.Name,
			Reason: "an active template with this name already exists",
		})
		return nil
	}

	incoming := t.Clone()
	if opts.AssignNewIDs || incoming.ID == "" {
		incoming.ID = uuid.New().String()
		incoming.LineageID = ""
	}
	incoming.IsActive = true
	incoming.UsageStats = domain.UsageStatistics{}
	incoming.CreatedBy = opts.ImportedBy
	incoming.LastModifiedBy = opts.ImportedBy

	if err := s.store.Create(ctx, incoming); err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode < 500 {
			result.Errors = append(result.Errors, ImportItemError{Name: t.Name, Reason: appErr.Message})
			return nil
		}
		return err
	}

	result.ImportedIDs = append(result.ImportedIDs, incoming.ID)
	return nil
}

func compatibleFormat(v string) bool {
	return majorOf(v) == majorOf(ExportFormatVersion)
}

func majorOf(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}
