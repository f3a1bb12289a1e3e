package domain

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a deterministic content-derived document identifier.
// The same byte content always yields the same fingerprint regardless
// of filename or path.
type Fingerprint string

// ComputeFingerprint hashes document content with BLAKE2b-256
func ComputeFingerprint(content []byte) Fingerprint {
	sum := blake2b.Sum256(content)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// MatchFactors is the per-factor breakdown of a match score, all in [0,1]
type MatchFactors struct {
	RequiredKeywordsMet bool    `json:"required_keywords_met"`
	KeywordScore        float64 `json:"keyword_score"`
	FilenameScore       float64 `json:"filename_score"`
	TitleScore          float64 `json:"title_score"`
	AuthorScore         float64 `json:"author_score"`
}

// TemplateMatch is one scored candidate in a match result
type TemplateMatch struct {
	Template   *Template    `json:"template"`
	Confidence float64      `json:"confidence"`
	Factors    MatchFactors `json:"factors"`

	// Partial marks templates below their own threshold that were kept
	// because they allow partial matches
	Partial   bool `json:"partial"`
	FromCache bool `json:"from_cache"`

	// AutoApply marks full matches whose template or criteria asked to
	// be applied without user confirmation
	AutoApply bool `json:"auto_apply"`
}

// DocumentTemplateMatch is a cache entry keyed by (fingerprint, template ID).
// The cache is advisory only; entries past ExpiresAt are logically invalid.
type DocumentTemplateMatch struct {
	Fingerprint   Fingerprint  `json:"fingerprint"`
	TemplateID    string       `json:"template_id"`
	Confidence    float64      `json:"confidence"`
	Factors       MatchFactors `json:"factors"`
	ComputationMs int64        `json:"computation_ms"`
	ExpiresAt     time.Time    `json:"expires_at"`
	IsValid       bool         `json:"is_valid"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Usable reports whether the entry may short-circuit recomputation
func (m *DocumentTemplateMatch) Usable(now time.Time) bool {
	return m.IsValid && now.Before(m.ExpiresAt)
}
