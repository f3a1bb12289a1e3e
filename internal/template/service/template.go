package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	docdomain "github.com/threatdocs/threatdocs-backend/internal/docprocess/domain"
	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/internal/template/repository"
	"github.com/threatdocs/threatdocs-backend/internal/template/validation"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
	"github.com/threatdocs/threatdocs-backend/pkg/messaging"
)

// TemplateStore is the persistence surface the service needs
type TemplateStore interface {
	Create(ctx context.Context, t *domain.Template) error
	GetByID(ctx context.Context, id string, includeInactive bool) (*domain.Template, error)
	GetByName(ctx context.Context, name string) (*domain.Template, error)
	Update(ctx context.Context, t *domain.Template, changedFields []string) error
	SoftDelete(ctx context.Context, id, deletedBy string) error
	Search(ctx context.Context, c repository.SearchCriteria) ([]*domain.Template, error)
	ListActive(ctx context.Context) ([]*domain.Template, error)
	RecordUsage(ctx context.Context, id string, successful bool, elapsed time.Duration) error
}

// VersionStore is the versioning surface the service needs
type VersionStore interface {
	ListVersions(ctx context.Context, lineageID string) ([]*domain.TemplateVersion, error)
	GetVersionByLabel(ctx context.Context, lineageID, label string) (*domain.TemplateVersion, error)
	CreateVersion(ctx context.Context, current *domain.Template, label, createdBy string) (*domain.Template, error)
	Rollback(ctx context.Context, t *domain.Template, version *domain.TemplateVersion, reason, changedBy string) (*domain.Template, error)
	ListChangeRecords(ctx context.Context, templateID string) ([]*domain.ChangeRecord, error)
}

// EdgeStore is the inheritance surface the service needs
type EdgeStore interface {
	EdgeSource
	CreateEdge(ctx context.Context, e *domain.TemplateInheritance) error
	DeleteEdge(ctx context.Context, id string) error
}

// CacheInvalidator drops cached match results for a template
type CacheInvalidator interface {
	InvalidateTemplate(ctx context.Context, templateID string) error
}

// EventPublisher publishes domain events. Publishing is best effort;
// failures are logged and never fail the operation.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// TemplateService orchestrates template CRUD, versioning, inheritance
// and usage tracking
type TemplateService struct {
	templates TemplateStore
	versions  VersionStore
	edges     EdgeStore
	cache     CacheInvalidator
	resolver  *InheritanceResolver
	validator *validation.Validator
	publisher EventPublisher
	logger    *logger.Logger
}

// NewTemplateService creates a new template service. cache and
// publisher may be nil.
func NewTemplateService(
	templates TemplateStore,
	versions VersionStore,
	edges EdgeStore,
	cache CacheInvalidator,
	resolver *InheritanceResolver,
	validator *validation.Validator,
	publisher EventPublisher,
	log *logger.Logger,
) *TemplateService {
	return &TemplateService{
		templates: templates,
		versions:  versions,
		edges:     edges,
		cache:     cache,
		resolver:  resolver,
		validator: validator,
		publisher: publisher,
		logger:    log,
	}
}

// Create validates and persists a new template. The returned warnings
// are non-fatal validation findings the caller should surface.
func (s *TemplateService) Create(ctx context.Context, t *domain.Template, createdBy string) (*domain.Template, []string, error) {
	t.Name = strings.TrimSpace(t.Name)

	res := s.validator.Validate(t)
	if !res.IsValid {
		return nil, res.Warnings, validationError(res)
	}

	existing, err := s.templates.GetByName(ctx, t.Name)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, res.Warnings, errors.Conflict(fmt.Sprintf("an active template named %q already exists", t.Name))
	}

	t.CreatedBy = createdBy
	t.LastModifiedBy = createdBy
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, res.Warnings, err
	}

	s.publish(ctx, messaging.EventTemplateCreated, messaging.TemplateChangedEvent{
		TemplateID: t.ID,
		Name:       t.Name,
		Version:    t.Version,
		Category:   t.Category,
		ChangedBy:  createdBy,
	})

	s.logger.Info().Str("template_id", t.ID).Str("name", t.Name).Msg("template created")
	return t, res.Warnings, nil
}

// Get returns a template by ID
func (s *TemplateService) Get(ctx context.Context, id string, includeInactive bool) (*domain.Template, error) {
	t, err := s.templates.GetByID(ctx, id, includeInactive)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.NotFound("template")
	}
	return t, nil
}

// GetResolved returns the effective template after inheritance
// resolution
func (s *TemplateService) GetResolved(ctx context.Context, id string) (*domain.ResolvedTemplate, error) {
	return s.resolver.Resolve(ctx, id)
}

// Update validates and persists changes to an existing template.
// Updates modify in place and never bump the version label; use
// CreateVersion for that.
func (s *TemplateService) Update(ctx context.Context, t *domain.Template, changedBy string) (*domain.Template, []string, error) {
	t.Name = strings.TrimSpace(t.Name)

	existing, err := s.templates.GetByID(ctx, t.ID, false)
	if err != nil {
		return nil, nil, err
	}
	if existing == nil {
		return nil, nil, errors.NotFound("template")
	}

	res := s.validator.Validate(t)
	if !res.IsValid {
		return nil, res.Warnings, validationError(res)
	}

	if !strings.EqualFold(existing.Name, t.Name) {
		other, err := s.templates.GetByName(ctx, t.Name)
		if err != nil {
			return nil, nil, err
		}
		if other != nil && other.ID != t.ID {
			return nil, res.Warnings, errors.Conflict(fmt.Sprintf("an active template named %q already exists", t.Name))
		}
	}

	t.Version = existing.Version
	t.LineageID = existing.LineageID
	t.LastModifiedBy = changedBy
	changed := diffTemplates(existing, t)

	if err := s.templates.Update(ctx, t, changed); err != nil {
		return nil, res.Warnings, err
	}

	s.invalidateCache(ctx, t.ID)
	s.publish(ctx, messaging.EventTemplateUpdated, messaging.TemplateChangedEvent{
		TemplateID: t.ID,
		Name:       t.Name,
		Version:    t.Version,
		Category:   t.Category,
		ChangedBy:  changedBy,
	})

	s.logger.Info().Str("template_id", t.ID).Strs("changed", changed).Msg("template updated")
	return t, res.Warnings, nil
}

// Delete soft-deletes a template. The row and its history remain for
// audit and rollback.
func (s *TemplateService) Delete(ctx context.Context, id, deletedBy string) error {
	existing, err := s.templates.GetByID(ctx, id, false)
	if err != nil {
		return err
	}
	if existing == nil {
		return errors.NotFound("template")
	}

	if err := s.templates.SoftDelete(ctx, id, deletedBy); err != nil {
		return err
	}

	s.invalidateCache(ctx, id)
	s.publish(ctx, messaging.EventTemplateDeleted, messaging.TemplateChangedEvent{
		TemplateID: id,
		Name:       existing.Name,
		Version:    existing.Version,
		ChangedBy:  deletedBy,
	})

	s.logger.Info().Str("template_id", id).Msg("template deleted")
	return nil
}

// Search returns templates matching the criteria
func (s *TemplateService) Search(ctx context.Context, c repository.SearchCriteria) ([]*domain.Template, error) {
	if c.Limit <= 0 || c.Limit > 200 {
		c.Limit = 50
	}
	return s.templates.Search(ctx, c)
}

// CreateVersion snapshots the current template and starts a new
// version under the same lineage. The new version becomes current.
func (s *TemplateService) CreateVersion(ctx context.Context, id, label, createdBy string) (*domain.Template, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, errors.BadRequest("version label is required")
	}

	current, err := s.templates.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NotFound("template")
	}

	existing, err := s.versions.GetVersionByLabel(ctx, current.LineageID, label)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Conflict(fmt.Sprintf("version %q already exists for this template", label))
	}

	next, err := s.versions.CreateVersion(ctx, current, label, createdBy)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, messaging.EventTemplateVersionCreated, messaging.TemplateVersionEvent{
		TemplateID:   current.ID,
		NewID:        next.ID,
		VersionLabel: label,
		ChangedBy:    createdBy,
	})

	s.logger.Info().
		Str("template_id", current.ID).
		Str("new_id", next.ID).
		Str("version", label).
		Msg("template version created")
	return next, nil
}

// Rollback restores a previous version's fields and settings onto the
// current template without changing its identity
func (s *TemplateService) Rollback(ctx context.Context, id, label, reason, changedBy string) (*domain.Template, error) {
	current, err := s.templates.GetByID(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NotFound("template")
	}

	version, err := s.versions.GetVersionByLabel(ctx, current.LineageID, label)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, errors.NotFound(fmt.Sprintf("version %q", label))
	}

	restored, err := s.versions.Rollback(ctx, current, version, reason, changedBy)
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, id)
	s.publish(ctx, messaging.EventTemplateRolledBack, messaging.TemplateVersionEvent{
		TemplateID:   id,
		VersionLabel: label,
		Reason:       reason,
		ChangedBy:    changedBy,
	})

	s.logger.Info().Str("template_id", id).Str("version", label).Msg("template rolled back")
	return restored, nil
}

// ListVersions returns the version history of a template's lineage
func (s *TemplateService) ListVersions(ctx context.Context, id string) ([]*domain.TemplateVersion, error) {
	t, err := s.templates.GetByID(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.NotFound("template")
	}
	return s.versions.ListVersions(ctx, t.LineageID)
}

// ListChangeRecords returns the audit trail of a template
func (s *TemplateService) ListChangeRecords(ctx context.Context, id string) ([]*domain.ChangeRecord, error) {
	return s.versions.ListChangeRecords(ctx, id)
}

// RecordUsage tracks one application of the template to a document.
// The update is a single atomic statement, safe under concurrency.
func (s *TemplateService) RecordUsage(ctx context.Context, id string, successful bool, elapsed time.Duration) error {
	return s.templates.RecordUsage(ctx, id, successful, elapsed)
}

// RecordExtraction records usage from an extraction outcome
func (s *TemplateService) RecordExtraction(ctx context.Context, outcome *docdomain.ExtractionOutcome, successful bool) error {
	return s.templates.RecordUsage(ctx, outcome.TemplateID, successful, outcome.Elapsed)
}

// AddInheritance validates and creates a child->parent edge
func (s *TemplateService) AddInheritance(ctx context.Context, e *domain.TemplateInheritance, createdBy string) (*domain.TemplateInheritance, error) {
	res := validation.ValidateEdge(e)
	if !res.IsValid {
		return nil, validationError(res)
	}

	for _, id := range []string{e.ChildID, e.ParentID} {
		t, err := s.templates.GetByID(ctx, id, false)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, errors.NotFound("template " + id)
		}
	}

	ok, err := s.resolver.ValidateInheritance(ctx, e.ChildID, e.ParentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.BadRequest("inheritance link would duplicate an edge, create a cycle or exceed the depth limit")
	}

	e.IsActive = true
	e.ValidationStatus = "valid"
	if err := s.edges.CreateEdge(ctx, e); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("child_id", e.ChildID).
		Str("parent_id", e.ParentID).
		Str("type", string(e.Type)).
		Str("created_by", createdBy).
		Msg("inheritance link created")
	return e, nil
}

// RemoveInheritance deletes an edge by ID
func (s *TemplateService) RemoveInheritance(ctx context.Context, edgeID string) error {
	return s.edges.DeleteEdge(ctx, edgeID)
}

// ListParents returns the active parent edges of a template
func (s *TemplateService) ListParents(ctx context.Context, childID string) ([]*domain.TemplateInheritance, error) {
	return s.edges.ListParents(ctx, childID)
}

func (s *TemplateService) invalidateCache(ctx context.Context, templateID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTemplate(ctx, templateID); err != nil {
		s.logger.Warn().Err(err).Str("template_id", templateID).Msg("match cache invalidation failed")
	}
}

func (s *TemplateService) publish(ctx context.Context, eventType string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("event publish failed")
	}
}

// validationError folds an exhaustive validation result into an error
// carrying every finding
func validationError(res *validation.Result) error {
	details := make(map[string]string, len(res.Errors))
	for i, msg := range res.Errors {
		details[fmt.Sprintf("error_%02d", i+1)] = msg
	}
	appErr := errors.Validation(details)
	if len(res.Warnings) > 0 {
		appErr = appErr.WithWarnings(res.Warnings)
	}
	return appErr
}

// diffTemplates names what changed between two template revisions for
// the audit trail
func diffTemplates(old, new *domain.Template) []string {
	var changed []string

	if old.Name != new.Name {
		changed = append(changed, "name")
	}
	if old.Description != new.Description {
		changed = append(changed, "description")
	}
	if old.Category != new.Category {
		changed = append(changed, "category")
	}
	if old.ConfidenceThreshold != new.ConfidenceThreshold {
		changed = append(changed, "confidence_threshold")
	}
	if old.AutoApply != new.AutoApply {
		changed = append(changed, "auto_apply")
	}
	if old.AllowPartialMatches != new.AllowPartialMatches {
		changed = append(changed, "allow_partial_matches")
	}
	if old.Priority != new.Priority {
		changed = append(changed, "priority")
	}
	if !jsonEqual(old.Tags, new.Tags) {
		changed = append(changed, "tags")
	}
	if !jsonEqual(old.SupportedFormats, new.SupportedFormats) {
		changed = append(changed, "supported_formats")
	}
	if !jsonEqual(old.MatchingCriteria, new.MatchingCriteria) {
		changed = append(changed, "matching_criteria")
	}
	if !jsonEqual(old.OCRSettings, new.OCRSettings) {
		changed = append(changed, "ocr_settings")
	}
	if !jsonEqual(old.ValidationPolicy, new.ValidationPolicy) {
		changed = append(changed, "validation_policy")
	}

	oldFields := fieldsByName(old)
	newFields := fieldsByName(new)
	for name, f := range newFields {
		prev, ok := oldFields[name]
		if !ok {
			changed = append(changed, "field:"+name+":added")
		} else if !jsonEqual(prev, f) {
			changed = append(changed, "field:"+name+":changed")
		}
	}
	for name := range oldFields {
		if _, ok := newFields[name]; !ok {
			changed = append(changed, "field:"+name+":removed")
		}
	}

	return changed
}

func fieldsByName(t *domain.Template) map[string]domain.Field {
	m := make(map[string]domain.Field, len(t.Fields))
	for _, f := range t.Fields {
		m[f.Name] = f
	}
	return m
}

func jsonEqual(a, b interface{}) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
