package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/database"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
)

type inheritanceRow struct {
	ID                     string    `db:"id"`
	ChildID                string    `db:"child_template_id"`
	ParentID               string    `db:"parent_template_id"`
	InheritanceType        string    `db:"inheritance_type"`
	FieldOverrides         []byte    `db:"field_overrides"`
	SettingsOverrides      []byte    `db:"settings_overrides"`
	AllowFieldAddition     bool      `db:"allow_field_addition"`
	AllowFieldRemoval      bool      `db:"allow_field_removal"`
	AllowFieldModification bool      `db:"allow_field_modification"`
	AllowSettingsOverride  bool      `db:"allow_settings_override"`
	Priority               int       `db:"priority"`
	IsActive               bool      `db:"is_active"`
	ValidationStatus       string    `db:"validation_status"`
	CreatedAt              time.Time `db:"created_at"`
}

// InheritanceRepository handles template inheritance edges. Edges are
// non-owning references by template ID.
type InheritanceRepository struct {
	db *database.DB
}

// NewInheritanceRepository creates a new inheritance repository
func NewInheritanceRepository(db *database.DB) *InheritanceRepository {
	return &InheritanceRepository{db: db}
}

const inheritanceColumns = `
	id, child_template_id, parent_template_id, inheritance_type,
	field_overrides, settings_overrides,
	allow_field_addition, allow_field_removal, allow_field_modification, allow_settings_override,
	priority, is_active, validation_status, created_at`

// CreateEdge inserts an inheritance edge. Uniqueness per (child,parent)
// rides on the database constraint.
func (r *InheritanceRepository) CreateEdge(ctx context.Context, e *domain.TemplateInheritance) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = time.Now().UTC()

	fieldOverrides, err := json.Marshal(e.FieldOverrides)
	if err != nil {
		return err
	}
	settingsOverrides, err := json.Marshal(e.SettingsOverrides)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO template_inheritance (
			id, child_template_id, parent_template_id, inheritance_type,
			field_overrides, settings_overrides,
			allow_field_addition, allow_field_removal, allow_field_modification, allow_settings_override,
			priority, is_active, validation_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.ChildID, e.ParentID, string(e.Type), fieldOverrides, settingsOverrides,
		e.AllowFieldAddition, e.AllowFieldRemoval, e.AllowFieldModification, e.AllowSettingsOverride,
		e.Priority, e.IsActive, e.ValidationStatus, e.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("failed to create inheritance edge: %w", err)
	}
	return nil
}

// ListParents returns the active edges from a child, highest priority first
func (r *InheritanceRepository) ListParents(ctx context.Context, childID string) ([]*domain.TemplateInheritance, error) {
	var rows []inheritanceRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+inheritanceColumns+` FROM template_inheritance
		WHERE child_template_id = $1 AND is_active
		ORDER BY priority DESC, created_at ASC
	`, childID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parent edges: %w", err)
	}
	return rowsToEdges(rows)
}

// ListChildren returns the active edges into a parent
func (r *InheritanceRepository) ListChildren(ctx context.Context, parentID string) ([]*domain.TemplateInheritance, error) {
	var rows []inheritanceRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+inheritanceColumns+` FROM template_inheritance
		WHERE parent_template_id = $1 AND is_active
		ORDER BY priority DESC, created_at ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child edges: %w", err)
	}
	return rowsToEdges(rows)
}

// GetEdge returns the edge between a child and parent, or nil
func (r *InheritanceRepository) GetEdge(ctx context.Context, childID, parentID string) (*domain.TemplateInheritance, error) {
	var row inheritanceRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+inheritanceColumns+` FROM template_inheritance
		WHERE child_template_id = $1 AND parent_template_id = $2
	`, childID, parentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inheritance edge: %w", err)
	}
	return rowToEdge(&row)
}

// DeleteEdge removes an inheritance edge
func (r *InheritanceRepository) DeleteEdge(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM template_inheritance WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete inheritance edge: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.NotFound("inheritance edge")
	}
	return nil
}

func rowsToEdges(rows []inheritanceRow) ([]*domain.TemplateInheritance, error) {
	edges := make([]*domain.TemplateInheritance, 0, len(rows))
	for i := range rows {
		e, err := rowToEdge(&rows[i])
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}

func rowToEdge(row *inheritanceRow) (*domain.TemplateInheritance, error) {
	e := &domain.TemplateInheritance{
		ID:                     row.ID,
		ChildID:                row.ChildID,
		ParentID:               row.ParentID,
		Type:                   domain.InheritanceType(row.InheritanceType),
		AllowFieldAddition:     row.AllowFieldAddition,
		AllowFieldRemoval:      row.AllowFieldRemoval,
		AllowFieldModification: row.AllowFieldModification,
		AllowSettingsOverride:  row.AllowSettingsOverride,
		Priority:               row.Priority,
		IsActive:               row.IsActive,
		ValidationStatus:       row.ValidationStatus,
		CreatedAt:              row.CreatedAt,
	}

	if len(row.FieldOverrides) > 0 {
		if err := json.Unmarshal(row.FieldOverrides, &e.FieldOverrides); err != nil {
			return nil, fmt.Errorf("corrupt field overrides on edge %s: %w", row.ID, err)
		}
	}
	if len(row.SettingsOverrides) > 0 {
		if err := json.Unmarshal(row.SettingsOverrides, &e.SettingsOverrides); err != nil {
			return nil, fmt.Errorf("corrupt settings overrides on edge %s: %w", row.ID, err)
		}
	}

	return e, nil
}
