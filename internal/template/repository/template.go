package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/database"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
)

// templateRow mirrors the templates table. JSON-blob sub-objects stay
// opaque here; the domain model never sees column layout.
type templateRow struct {
	ID                  string         `db:"id"`
	Name                string         `db:"name"`
	Description         string         `db:"description"`
	Version             string         `db:"version"`
	Category            string         `db:"category"`
	IsActive            bool           `db:"is_active"`
	IsCurrent           bool           `db:"is_current"`
	ConfidenceThreshold float64        `db:"confidence_threshold"`
	AutoApply           bool           `db:"auto_apply"`
	AllowPartialMatches bool           `db:"allow_partial_matches"`
	Priority            int            `db:"priority"`
	Tags                pq.StringArray `db:"tags"`
	SupportedFormats    pq.StringArray `db:"supported_formats"`
	MatchingCriteria    []byte         `db:"matching_criteria"`
	OCRSettings         []byte         `db:"ocr_settings"`
	ValidationPolicy    []byte         `db:"validation_policy"`
	TotalUses           int64          `db:"total_uses"`
	SuccessfulUses      int64          `db:"successful_uses"`
	FailedUses          int64          `db:"failed_uses"`
	AvgExtractionTimeMs float64        `db:"avg_extraction_time_ms"`
	LastUsedAt          *time.Time     `db:"last_used_at"`
	LineageID           string         `db:"lineage_id"`
	CreatedBy           string         `db:"created_by"`
	CreatedAt           time.Time      `db:"created_at"`
	LastModifiedBy      string         `db:"last_modified_by"`
	LastModifiedAt      time.Time      `db:"last_modified_at"`
}

// fieldRow mirrors the template_fields table. Everything beyond the
// queryable columns lives in the definition JSON.
type fieldRow struct {
	ID              string `db:"id"`
	TemplateID      string `db:"template_id"`
	Name            string `db:"name"`
	DisplayName     string `db:"display_name"`
	FieldType       string `db:"field_type"`
	Method          string `db:"method"`
	Required        bool   `db:"required"`
	ProcessingOrder int    `db:"processing_order"`
	Definition      []byte `db:"definition"`
}

// fieldDefinition is the JSON payload of a field row
type fieldDefinition struct {
	Patterns            []string                 `json:"patterns,omitempty"`
	Keywords            []string                 `json:"keywords,omitempty"`
	Rules               []domain.ExtractionRule  `json:"rules,omitempty"`
	ConditionalRules    []domain.ConditionalRule `json:"conditional_rules,omitempty"`
	DefaultValue        string                   `json:"default_value,omitempty"`
	FormatTransform     string                   `json:"format_transform,omitempty"`
	ConfidenceThreshold *float64                 `json:"confidence_threshold,omitempty"`
	MultiValue          bool                     `json:"multi_value,omitempty"`
	Separator           string                   `json:"separator,omitempty"`
	Options             []string                 `json:"options,omitempty"`
	MinValue            *float64                 `json:"min_value,omitempty"`
	MaxValue            *float64                 `json:"max_value,omitempty"`
}

// zoneRow mirrors the template_zones table
type zoneRow struct {
	ID               string  `db:"id"`
	TemplateID       string  `db:"template_id"`
	FieldName        string  `db:"field_name"`
	X                float64 `db:"x"`
	Y                float64 `db:"y"`
	Width            float64 `db:"width"`
	Height           float64 `db:"height"`
	PageNumber       int     `db:"page_number"`
	CoordinateSystem string  `db:"coordinate_system"`
	ZoneType         string  `db:"zone_type"`
	Priority         int     `db:"priority"`
	IsActive         bool    `db:"is_active"`
	PositionTol      float64 `db:"position_tolerance"`
	SizeTol          float64 `db:"size_tolerance"`
	Display          []byte  `db:"display"`
}

// SearchCriteria filters template search
type SearchCriteria struct {
	Query           string
	Category        string
	Format          domain.DocumentFormat
	IncludeInactive bool
	Limit           int
	Offset          int
}

// TemplateRepository handles template persistence
type TemplateRepository struct {
	db *database.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *database.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `
	id, name, description, version, category, is_active, is_current,
	confidence_threshold, auto_apply, allow_partial_matches, priority,
	tags, supported_formats, matching_criteria, ocr_settings, validation_policy,
	total_uses, successful_uses, failed_uses, avg_extraction_time_ms, last_used_at,
	lineage_id, created_by, created_at, last_modified_by, last_modified_at`

// Create inserts a template with its fields and zones, the initial
// version snapshot and a Created change record, all in one transaction.
// Name uniqueness among active current templates rides on the database
// constraint, so concurrent creates have exactly one winner.
func (r *TemplateRepository) Create(ctx context.Context, t *domain.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.LineageID == "" {
		t.LineageID = t.ID
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.LastModifiedAt = now
	t.IsActive = true

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := insertTemplateTx(tx, t, true); err != nil {
			return err
		}
		if err := replaceFieldsTx(tx, t); err != nil {
			return err
		}
		if err := insertVersionSnapshotTx(tx, t, t.Version, t.CreatedBy); err != nil {
			return err
		}
		return insertChangeRecordTx(tx, t.ID, domain.ChangeCreated, t.CreatedBy, fieldNames(t), "")
	})
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template by ID, or nil if not found. Inactive
// templates are only returned when includeInactive is set.
func (r *TemplateRepository) GetByID(ctx context.Context, id string, includeInactive bool) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`
	if !includeInactive {
		query += ` AND is_active`
	}

	var row templateRow
	err := r.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return r.hydrate(ctx, &row)
}

// GetByName returns the active current template with the given name,
// or nil. Superseded versions of a lineage are never matched by name.
func (r *TemplateRepository) GetByName(ctx context.Context, name string) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE lower(name) = lower($1) AND is_active AND is_current`

	var row templateRow
	err := r.db.GetContext(ctx, &row, query, name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template by name: %w", err)
	}

	return r.hydrate(ctx, &row)
}

// Update rewrites a template's row, fields and zones in place and logs
// an Updated change record. The version is never bumped here; that is
// explicit via CreateVersion.
func (r *TemplateRepository) Update(ctx context.Context, t *domain.Template, changedFields []string) error {
	t.LastModifiedAt = time.Now().UTC()

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		criteria, ocr, policy, marshalErr := marshalBlobs(t)
		if marshalErr != nil {
			return marshalErr
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE templates SET
				name = $2, description = $3, version = $4, category = $5,
				confidence_threshold = $6, auto_apply = $7, allow_partial_matches = $8,
				priority = $9, tags = $10, supported_formats = $11,
				matching_criteria = $12, ocr_settings = $13, validation_policy = $14,
				last_modified_by = $15, last_modified_at = $16
			WHERE id = $1 AND is_active
		`, t.ID, t.Name, t.Description, t.Version, t.Category,
			t.ConfidenceThreshold, t.AutoApply, t.AllowPartialMatches,
			t.Priority, pq.Array(t.Tags), pq.Array(formatStrings(t.SupportedFormats)),
			criteria, ocr, policy, t.LastModifiedBy, t.LastModifiedAt)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return errors.NotFound("template")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM template_fields WHERE template_id = $1`, t.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM template_zones WHERE template_id = $1`, t.ID); err != nil {
			return err
		}
		if err := replaceFieldsTx(tx, t); err != nil {
			return err
		}

		return insertChangeRecordTx(tx, t.ID, domain.ChangeUpdated, t.LastModifiedBy, changedFields, "")
	})
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}

// SoftDelete deactivates a template. The record remains retrievable
// with includeInactive; hard delete is not exposed.
func (r *TemplateRepository) SoftDelete(ctx context.Context, id, deletedBy string) error {
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE templates SET is_active = FALSE, last_modified_by = $2, last_modified_at = NOW()
			WHERE id = $1 AND is_active
		`, id, deletedBy)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return errors.NotFound("template")
		}
		return insertChangeRecordTx(tx, id, domain.ChangeDeleted, deletedBy, nil, "")
	})
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

// Search returns templates matching the criteria, active-only unless
// the caller opts into inactive records
func (r *TemplateRepository) Search(ctx context.Context, c SearchCriteria) ([]*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE 1=1`
	args := []interface{}{}

	if !c.IncludeInactive {
		query += ` AND is_active AND is_current`
	}
	if c.Query != "" {
		args = append(args, "%"+c.Query+"%")
		query += fmt.Sprintf(` AND (name ILIKE $%d OR description ILIKE $%d)`, len(args), len(args))
	}
	if c.Category != "" {
		args = append(args, c.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if c.Format != "" {
		args = append(args, string(c.Format))
		query += fmt.Sprintf(` AND $%d = ANY(supported_formats)`, len(args))
	}

	query += ` ORDER BY priority DESC, last_modified_at DESC`
	if c.Limit > 0 {
		args = append(args, c.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if c.Offset > 0 {
		args = append(args, c.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	var rows []templateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search templates: %w", err)
	}

	templates := make([]*domain.Template, 0, len(rows))
	for i := range rows {
		t, err := r.hydrate(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// ListActive returns all active current templates; the matcher's
// candidate set
func (r *TemplateRepository) ListActive(ctx context.Context) ([]*domain.Template, error) {
	return r.Search(ctx, SearchCriteria{})
}

// RecordUsage applies one usage observation as a single atomic UPDATE,
// so concurrent calls for the same template never lose updates
func (r *TemplateRepository) RecordUsage(ctx context.Context, id string, successful bool, elapsed time.Duration) error {
	elapsedMs := float64(elapsed.Milliseconds())
	successInc := 0
	failInc := 0
	if successful {
		successInc = 1
	} else {
		failInc = 1
	}

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE templates SET
				avg_extraction_time_ms = (avg_extraction_time_ms * total_uses + $2) / (total_uses + 1),
				total_uses = total_uses + 1,
				successful_uses = successful_uses + $3,
				failed_uses = failed_uses + $4,
				last_used_at = NOW()
			WHERE id = $1
		`, id, elapsedMs, successInc, failInc)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return errors.NotFound("template")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO template_usage_history (id, template_id, successful, extraction_time_ms, used_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, uuid.New().String(), id, successful, elapsedMs)
		return err
	})
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// hydrate converts a row into a domain template, loading fields and zones
func (r *TemplateRepository) hydrate(ctx context.Context, row *templateRow) (*domain.Template, error) {
	t, err := rowToTemplate(row)
	if err != nil {
		return nil, err
	}

	var fieldRows []fieldRow
	err = r.db.SelectContext(ctx, &fieldRows, `
		SELECT id, template_id, name, display_name, field_type, method, required, processing_order, definition
		FROM template_fields WHERE template_id = $1 ORDER BY processing_order ASC
	`, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template fields: %w", err)
	}

	var zoneRows []zoneRow
	err = r.db.SelectContext(ctx, &zoneRows, `
		SELECT id, template_id, field_name, x, y, width, height, page_number,
		       coordinate_system, zone_type, priority, is_active,
		       position_tolerance, size_tolerance, display
		FROM template_zones WHERE template_id = $1 ORDER BY priority DESC
	`, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template zones: %w", err)
	}

	zonesByField := make(map[string][]domain.ExtractionZone)
	for _, z := range zoneRows {
		zone, err := rowToZone(&z)
		if err != nil {
			return nil, err
		}
		zonesByField[z.FieldName] = append(zonesByField[z.FieldName], zone)
	}

	t.Fields = make([]domain.Field, 0, len(fieldRows))
	for i := range fieldRows {
		f, err := rowToField(&fieldRows[i])
		if err != nil {
			return nil, err
		}
		f.Zones = zonesByField[f.Name]
		t.Fields = append(t.Fields, f)
	}

	return t, nil
}

func rowToTemplate(row *templateRow) (*domain.Template, error) {
	t := &domain.Template{
		ID:                  row.ID,
		Name:                row.Name,
		Description:         row.Description,
		Version:             row.Version,
		Category:            row.Category,
		IsActive:            row.IsActive,
		ConfidenceThreshold: row.ConfidenceThreshold,
		AutoApply:           row.AutoApply,
		AllowPartialMatches: row.AllowPartialMatches,
		Priority:            row.Priority,
		Tags:                []string(row.Tags),
		LineageID:           row.LineageID,
		CreatedBy:           row.CreatedBy,
		CreatedAt:           row.CreatedAt,
		LastModifiedBy:      row.LastModifiedBy,
		LastModifiedAt:      row.LastModifiedAt,
		UsageStats: domain.UsageStatistics{
			TotalUses:           row.TotalUses,
			SuccessfulUses:      row.SuccessfulUses,
			FailedUses:          row.FailedUses,
			AvgExtractionTimeMs: row.AvgExtractionTimeMs,
			LastUsedAt:          row.LastUsedAt,
		},
	}

	for _, f := range row.SupportedFormats {
		t.SupportedFormats = append(t.SupportedFormats, domain.DocumentFormat(f))
	}

	if len(row.MatchingCriteria) > 0 {
		if err := json.Unmarshal(row.MatchingCriteria, &t.MatchingCriteria); err != nil {
			return nil, fmt.Errorf("corrupt matching criteria on template %s: %w", row.ID, err)
		}
	}
	if len(row.OCRSettings) > 0 {
		if err := json.Unmarshal(row.OCRSettings, &t.OCRSettings); err != nil {
			return nil, fmt.Errorf("corrupt OCR settings on template %s: %w", row.ID, err)
		}
	}
	if len(row.ValidationPolicy) > 0 {
		if err := json.Unmarshal(row.ValidationPolicy, &t.ValidationPolicy); err != nil {
			return nil, fmt.Errorf("corrupt validation policy on template %s: %w", row.ID, err)
		}
	}

	return t, nil
}

func rowToField(row *fieldRow) (domain.Field, error) {
	f := domain.Field{
		Name:            row.Name,
		DisplayName:     row.DisplayName,
		Type:            domain.FieldType(row.FieldType),
		Method:          domain.ExtractionMethod(row.Method),
		Required:        row.Required,
		ProcessingOrder: row.ProcessingOrder,
	}

	if len(row.Definition) > 0 {
		var def fieldDefinition
		if err := json.Unmarshal(row.Definition, &def); err != nil {
			return f, fmt.Errorf("corrupt definition on field %s: %w", row.Name, err)
		}
		f.Patterns = def.Patterns
		f.Keywords = def.Keywords
		f.Rules = def.Rules
		f.ConditionalRules = def.ConditionalRules
		f.DefaultValue = def.DefaultValue
		f.FormatTransform = def.FormatTransform
		f.ConfidenceThreshold = def.ConfidenceThreshold
		f.MultiValue = def.MultiValue
		f.Separator = def.Separator
		f.Options = def.Options
		f.MinValue = def.MinValue
		f.MaxValue = def.MaxValue
	}

	return f, nil
}

func rowToZone(row *zoneRow) (domain.ExtractionZone, error) {
	z := domain.ExtractionZone{
		X:                 row.X,
		Y:                 row.Y,
		Width:             row.Width,
		Height:            row.Height,
		PageNumber:        row.PageNumber,
		CoordinateSystem:  domain.CoordinateSystem(row.CoordinateSystem),
		Type:              domain.ZoneType(row.ZoneType),
		Priority:          row.Priority,
		IsActive:          row.IsActive,
		PositionTolerance: row.PositionTol,
		SizeTolerance:     row.SizeTol,
	}
	if len(row.Display) > 0 {
		if err := json.Unmarshal(row.Display, &z.Display); err != nil {
			return z, fmt.Errorf("corrupt display hints on zone %s: %w", row.ID, err)
		}
	}
	return z, nil
}

func marshalBlobs(t *domain.Template) (criteria, ocr, policy []byte, err error) {
	if criteria, err = json.Marshal(t.MatchingCriteria); err != nil {
		return
	}
	if ocr, err = json.Marshal(t.OCRSettings); err != nil {
		return
	}
	policy, err = json.Marshal(t.ValidationPolicy)
	return
}

func formatStrings(formats []domain.DocumentFormat) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

func fieldNames(t *domain.Template) []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// insertTemplateTx inserts the template row
func insertTemplateTx(tx *sqlx.Tx, t *domain.Template, isCurrent bool) error {
	criteria, ocr, policy, err := marshalBlobs(t)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO templates (
			id, name, description, version, category, is_active, is_current,
			confidence_threshold, auto_apply, allow_partial_matches, priority,
			tags, supported_formats, matching_criteria, ocr_settings, validation_policy,
			total_uses, successful_uses, failed_uses, avg_extraction_time_ms, last_used_at,
			lineage_id, created_by, created_at, last_modified_by, last_modified_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
	`, t.ID, t.Name, t.Description, t.Version, t.Category, t.IsActive, isCurrent,
		t.ConfidenceThreshold, t.AutoApply, t.AllowPartialMatches, t.Priority,
		pq.Array(t.Tags), pq.Array(formatStrings(t.SupportedFormats)), criteria, ocr, policy,
		t.UsageStats.TotalUses, t.UsageStats.SuccessfulUses, t.UsageStats.FailedUses,
		t.UsageStats.AvgExtractionTimeMs, t.UsageStats.LastUsedAt,
		t.LineageID, t.CreatedBy, t.CreatedAt, t.LastModifiedBy, t.LastModifiedAt)
	return err
}

// replaceFieldsTx inserts the template's field and zone rows
func replaceFieldsTx(tx *sqlx.Tx, t *domain.Template) error {
	for i := range t.Fields {
		f := &t.Fields[i]

		def, err := json.Marshal(fieldDefinition{
			Patterns:            f.Patterns,
			Keywords:            f.Keywords,
			Rules:               f.Rules,
			ConditionalRules:    f.ConditionalRules,
			DefaultValue:        f.DefaultValue,
			FormatTransform:     f.FormatTransform,
			ConfidenceThreshold: f.ConfidenceThreshold,
			MultiValue:          f.MultiValue,
			Separator:           f.Separator,
			Options:             f.Options,
			MinValue:            f.MinValue,
			MaxValue:            f.MaxValue,
		})
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO template_fields (id, template_id, name, display_name, field_type, method, required, processing_order, definition)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.New().String(), t.ID, f.Name, f.DisplayName, string(f.Type), string(f.Method), f.Required, f.ProcessingOrder, def)
		if err != nil {
			return err
		}

		for _, z := range f.Zones {
			display, err := json.Marshal(z.Display)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`
				INSERT INTO template_zones (
					id, template_id, field_name, x, y, width, height, page_number,
					coordinate_system, zone_type, priority, is_active,
					position_tolerance, size_tolerance, display
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			`, uuid.New().String(), t.ID, f.Name, z.X, z.Y, z.Width, z.Height, z.PageNumber,
				string(z.CoordinateSystem), string(z.Type), z.Priority, z.IsActive,
				z.PositionTolerance, z.SizeTolerance, display)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// insertChangeRecordTx appends a change-log entry
func insertChangeRecordTx(tx *sqlx.Tx, templateID string, changeType domain.ChangeType, changedBy string, changedFields []string, note string) error {
	_, err := tx.Exec(`
		INSERT INTO template_change_records (id, template_id, change_type, changed_by, changed_at, changed_fields, note)
		VALUES ($1, $2, $3, $4, NOW(), $5, $6)
	`, uuid.New().String(), templateID, string(changeType), changedBy, pq.Array(changedFields), note)
	return err
}

// insertVersionSnapshotTx snapshots the template state as the current
// version, demoting any prior current version in the lineage
func insertVersionSnapshotTx(tx *sqlx.Tx, t *domain.Template, label, createdBy string) error {
	snapshot, err := json.Marshal(t)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
		UPDATE template_versions SET is_current = FALSE WHERE lineage_id = $1 AND is_current
	`, t.LineageID); err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO template_versions (id, template_id, lineage_id, version_label, snapshot, is_current, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, NOW())
	`, uuid.New().String(), t.ID, t.LineageID, label, snapshot, createdBy)
	return err
}
