package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/database"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
)

type versionRow struct {
	ID           string    `db:"id"`
	TemplateID   string    `db:"template_id"`
	LineageID    string    `db:"lineage_id"`
	VersionLabel string    `db:"version_label"`
	Snapshot     []byte    `db:"snapshot"`
	IsCurrent    bool      `db:"is_current"`
	CreatedBy    string    `db:"created_by"`
	CreatedAt    time.Time `db:"created_at"`
}

type changeRecordRow struct {
	ID            string         `db:"id"`
	TemplateID    string         `db:"template_id"`
	ChangeType    string         `db:"change_type"`
	ChangedBy     string         `db:"changed_by"`
	ChangedAt     time.Time      `db:"changed_at"`
	ChangedFields pq.StringArray `db:"changed_fields"`
	Note          string         `db:"note"`
}

// VersionRepository handles version snapshots and change history
type VersionRepository struct {
	db *database.DB
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *database.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// ListVersions returns all snapshots in a lineage, newest first
func (r *VersionRepository) ListVersions(ctx context.Context, lineageID string) ([]*domain.TemplateVersion, error) {
	var rows []versionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, template_id, lineage_id, version_label, snapshot, is_current, created_by, created_at
		FROM template_versions WHERE lineage_id = $1 ORDER BY created_at DESC
	`, lineageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	versions := make([]*domain.TemplateVersion, len(rows))
	for i := range rows {
		versions[i] = rowToVersion(&rows[i])
	}
	return versions, nil
}

// GetVersionByLabel returns the snapshot with the given label within a
// lineage, or nil if not found
func (r *VersionRepository) GetVersionByLabel(ctx context.Context, lineageID, label string) (*domain.TemplateVersion, error) {
	var row versionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, template_id, lineage_id, version_label, snapshot, is_current, created_by, created_at
		FROM template_versions WHERE lineage_id = $1 AND version_label = $2
		ORDER BY created_at DESC LIMIT 1
	`, lineageID, label)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return rowToVersion(&row), nil
}

// CreateVersion snapshots the current state under a new template
// identity. The new row carries the fields and settings forward, resets
// usage statistics and becomes current; the old identity stays intact
// for history.
func (r *VersionRepository) CreateVersion(ctx context.Context, current *domain.Template, label, createdBy string) (*domain.Template, error) {
	next := current.Clone()
	next.ID = uuid.New().String()
	next.Version = label
	next.UsageStats = domain.UsageStatistics{}
	next.CreatedBy = createdBy
	next.LastModifiedBy = createdBy

	now := time.Now().UTC()
	next.CreatedAt = now
	next.LastModifiedAt = now
	next.IsActive = true

	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE templates SET is_current = FALSE WHERE id = $1 AND is_current
		`, current.ID)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return errors.NotFound("current template version")
		}

		if err := insertTemplateTx(tx, next, true); err != nil {
			return err
		}
		if err := replaceFieldsTx(tx, next); err != nil {
			return err
		}
		if err := insertVersionSnapshotTx(tx, next, label, createdBy); err != nil {
			return err
		}
		return insertChangeRecordTx(tx, next.ID, domain.ChangeVersionCreated, createdBy, nil,
			fmt.Sprintf("version %s created from %s", label, current.ID))
	})
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, fmt.Errorf("failed to create version: %w", err)
	}

	return next, nil
}

// Rollback restores a prior snapshot's field and setting values onto
// the template. The template's identity and audit trail are preserved;
// a RolledBack change record documents the restore.
func (r *VersionRepository) Rollback(ctx context.Context, t *domain.Template, version *domain.TemplateVersion, reason, changedBy string) (*domain.Template, error) {
	snapshot, err := version.DecodeSnapshot()
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot for version %s: %w", version.ID, err)
	}

	restored := t.Clone()
	restored.Fields = snapshot.Fields
	restored.ConfidenceThreshold = snapshot.ConfidenceThreshold
	restored.AutoApply = snapshot.AutoApply
	restored.AllowPartialMatches = snapshot.AllowPartialMatches
	restored.Priority = snapshot.Priority
	restored.Tags = snapshot.Tags
	restored.SupportedFormats = snapshot.SupportedFormats
	restored.MatchingCriteria = snapshot.MatchingCriteria
	restored.OCRSettings = snapshot.OCRSettings
	restored.ValidationPolicy = snapshot.ValidationPolicy
	restored.Version = version.VersionLabel
	restored.LastModifiedBy = changedBy
	restored.LastModifiedAt = time.Now().UTC()

	err = r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		criteria, ocr, policy, marshalErr := marshalBlobs(restored)
		if marshalErr != nil {
			return marshalErr
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE templates SET
				version = $2, confidence_threshold = $3, auto_apply = $4,
				allow_partial_matches = $5, priority = $6, tags = $7,
				supported_formats = $8, matching_criteria = $9, ocr_settings = $10,
				validation_policy = $11, last_modified_by = $12, last_modified_at = $13
			WHERE id = $1
		`, restored.ID, restored.Version, restored.ConfidenceThreshold, restored.AutoApply,
			restored.AllowPartialMatches, restored.Priority, pq.Array(restored.Tags),
			pq.Array(formatStrings(restored.SupportedFormats)), criteria, ocr, policy,
			restored.LastModifiedBy, restored.LastModifiedAt)
		if err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return errors.NotFound("template")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM template_fields WHERE template_id = $1`, restored.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM template_zones WHERE template_id = $1`, restored.ID); err != nil {
			return err
		}
		if err := replaceFieldsTx(tx, restored); err != nil {
			return err
		}

		return insertChangeRecordTx(tx, restored.ID, domain.ChangeRolledBack, changedBy, fieldNames(restored), reason)
	})
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("failed to roll back template: %w", err)
	}

	return restored, nil
}

// ListChangeRecords returns the change log for a template, newest first
func (r *VersionRepository) ListChangeRecords(ctx context.Context, templateID string) ([]*domain.ChangeRecord, error) {
	var rows []changeRecordRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, template_id, change_type, changed_by, changed_at, changed_fields, note
		FROM template_change_records WHERE template_id = $1 ORDER BY changed_at DESC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list change records: %w", err)
	}

	records := make([]*domain.ChangeRecord, len(rows))
	for i, row := range rows {
		records[i] = &domain.ChangeRecord{
			ID:            row.ID,
			TemplateID:    row.TemplateID,
			Type:          domain.ChangeType(row.ChangeType),
			ChangedBy:     row.ChangedBy,
			ChangedAt:     row.ChangedAt,
			ChangedFields: []string(row.ChangedFields),
			Note:          row.Note,
		}
	}
	return records, nil
}

func rowToVersion(row *versionRow) *domain.TemplateVersion {
	return &domain.TemplateVersion{
		ID:           row.ID,
		TemplateID:   row.TemplateID,
		LineageID:    row.LineageID,
		VersionLabel: row.VersionLabel,
		Snapshot:     row.Snapshot,
		IsCurrent:    row.IsCurrent,
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
	}
}
