package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/database"
)

type matchCacheRow struct {
	Fingerprint   string    `db:"document_fingerprint"`
	TemplateID    string    `db:"template_id"`
	Confidence    float64   `db:"confidence"`
	Factors       []byte    `db:"match_factors"`
	ComputationMs int64     `db:"computation_ms"`
	ExpiresAt     time.Time `db:"expires_at"`
	IsValid       bool      `db:"is_valid"`
	CreatedAt     time.Time `db:"created_at"`
}

// MatchCacheRepository stores advisory match results keyed by
// (document fingerprint, template ID). Entries reference templates
// weakly; a purge pass clears entries for deleted templates.
type MatchCacheRepository struct {
	db *database.DB
}

// NewMatchCacheRepository creates a new match cache repository
func NewMatchCacheRepository(db *database.DB) *MatchCacheRepository {
	return &MatchCacheRepository{db: db}
}

// Get returns the cache entry for a (fingerprint, template) pair, or
// nil on a miss. A miss is normal control flow, never an error.
func (r *MatchCacheRepository) Get(ctx context.Context, fp domain.Fingerprint, templateID string) (*domain.DocumentTemplateMatch, error) {
	var row matchCacheRow
	err := r.db.GetContext(ctx, &row, `
		SELECT document_fingerprint, template_id, confidence, match_factors,
		       computation_ms, expires_at, is_valid, created_at
		FROM document_match_cache
		WHERE document_fingerprint = $1 AND template_id = $2
	`, string(fp), templateID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read match cache: %w", err)
	}

	entry := &domain.DocumentTemplateMatch{
		Fingerprint:   domain.Fingerprint(row.Fingerprint),
		TemplateID:    row.TemplateID,
		Confidence:    row.Confidence,
		ComputationMs: row.ComputationMs,
		ExpiresAt:     row.ExpiresAt,
		IsValid:       row.IsValid,
		CreatedAt:     row.CreatedAt,
	}
	if len(row.Factors) > 0 {
		if err := json.Unmarshal(row.Factors, &entry.Factors); err != nil {
			return nil, fmt.Errorf("corrupt match factors for %s/%s: %w", row.Fingerprint, row.TemplateID, err)
		}
	}
	return entry, nil
}

// Put upserts a cache entry and opportunistically purges expired rows.
// The cache never owns template selection, so purge failures are not
// surfaced to the caller.
func (r *MatchCacheRepository) Put(ctx context.Context, entry *domain.DocumentTemplateMatch) error {
	factors, err := json.Marshal(entry.Factors)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO document_match_cache (
			document_fingerprint, template_id, confidence, match_factors,
			computation_ms, expires_at, is_valid, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (document_fingerprint, template_id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			match_factors = EXCLUDED.match_factors,
			computation_ms = EXCLUDED.computation_ms,
			expires_at = EXCLUDED.expires_at,
			is_valid = EXCLUDED.is_valid,
			created_at = NOW()
	`, string(entry.Fingerprint), entry.TemplateID, entry.Confidence, factors,
		entry.ComputationMs, entry.ExpiresAt, entry.IsValid)
	if err != nil {
		return fmt.Errorf("failed to write match cache: %w", err)
	}

	// Expired entries are eligible for cleanup on every insert; no
	// background sweeper exists
	if _, err := r.db.ExecContext(ctx, `DELETE FROM document_match_cache WHERE expires_at < NOW()`); err != nil {
		r.db.Logger().Warn().Err(err).Msg("failed to purge expired match cache entries")
	}

	return nil
}

// InvalidateTemplate marks all entries for a template invalid, used
// when the template changes
func (r *MatchCacheRepository) InvalidateTemplate(ctx context.Context, templateID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE document_match_cache SET is_valid = FALSE WHERE template_id = $1
	`, templateID)
	if err != nil {
		return fmt.Errorf("failed to invalidate match cache: %w", err)
	}
	return nil
}

// PurgeExpired removes expired and invalid entries
func (r *MatchCacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM document_match_cache WHERE expires_at < NOW() OR NOT is_valid
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge match cache: %w", err)
	}
	purged, _ := res.RowsAffected()
	return purged, nil
}
