package service

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	docdomain "github.com/threatdocs/threatdocs-backend/internal/docprocess/domain"
	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/config"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
)

// CandidateSource lists the active templates a document is scored
// against
type CandidateSource interface {
	ListActive(ctx context.Context) ([]*domain.Template, error)
}

// MatchStore caches per-document, per-template match results
type MatchStore interface {
	Get(ctx context.Context, fingerprint domain.Fingerprint, templateID string) (*domain.DocumentTemplateMatch, error)
	Put(ctx context.Context, entry *domain.DocumentTemplateMatch) error
}

// Matcher scores documents against templates. Scoring is gated on
// required keywords and otherwise a weighted blend of the factors the
// template's criteria actually define.
type Matcher struct {
	candidates CandidateSource
	cache      MatchStore
	cfg        *config.MatchingConfig
	logger     *logger.Logger
}

// NewMatcher creates a new matcher. cache may be nil to disable
// caching entirely.
func NewMatcher(candidates CandidateSource, cache MatchStore, cfg *config.MatchingConfig, log *logger.Logger) *Matcher {
	return &Matcher{
		candidates: candidates,
		cache:      cache,
		cfg:        cfg,
		logger:     log,
	}
}

// MatchAll scores the document against every active template and
// returns matches ordered best-first
func (m *Matcher) MatchAll(ctx context.Context, doc *docdomain.ProcessedDocument) ([]*domain.TemplateMatch, error) {
	templates, err := m.candidates.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return m.Match(ctx, doc, templates)
}

// Match scores the document against the given candidates
func (m *Matcher) Match(ctx context.Context, doc *docdomain.ProcessedDocument, templates []*domain.Template) ([]*domain.TemplateMatch, error) {
	fingerprint := m.fingerprint(doc)
	now := time.Now().UTC()

	var matches []*domain.TemplateMatch
	for _, tmpl := range templates {
		if !m.formatSupported(tmpl, domain.DocumentFormat(doc.Metadata.Format)) {
			continue
		}

		match := m.cachedMatch(ctx, fingerprint, tmpl, now)
		if match == nil {
			started := time.Now()
			confidence, factors := m.score(doc, tmpl)
			match = &domain.TemplateMatch{
				Template:   tmpl,
				Confidence: confidence,
				Factors:    factors,
			}
			m.storeMatch(ctx, fingerprint, tmpl.ID, match, time.Since(started), now)
		} else {
			match.Template = tmpl
		}

		threshold := domain.ResolveThreshold(nil, tmpl, m.cfg.DefaultConfidenceThreshold)
		if match.Confidence < threshold {
			if !tmpl.AllowPartialMatches || match.Confidence <= 0 {
				continue
			}
			match.Partial = true
		}
		match.AutoApply = !match.Partial && (tmpl.AutoApply || tmpl.MatchingCriteria.AutoApply)
		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		if matches[i].Template.Priority != matches[j].Template.Priority {
			return matches[i].Template.Priority > matches[j].Template.Priority
		}
		return matches[i].Template.LastModifiedAt.After(matches[j].Template.LastModifiedAt)
	})

	m.logger.Debug().
		Str("fingerprint", string(fingerprint)).
		Int("candidates", len(templates)).
		Int("matches", len(matches)).
		Msg("document matched")

	return matches, nil
}

// BestMatch returns the strongest non-partial match, or nil when no
// template clears its threshold
func (m *Matcher) BestMatch(ctx context.Context, doc *docdomain.ProcessedDocument) (*domain.TemplateMatch, error) {
	matches, err := m.MatchAll(ctx, doc)
	if err != nil {
		return nil, err
	}
	for _, match := range matches {
		if !match.Partial {
			return match, nil
		}
	}
	return nil, nil
}

func (m *Matcher) fingerprint(doc *docdomain.ProcessedDocument) domain.Fingerprint {
	if len(doc.Content) > 0 {
		return domain.ComputeFingerprint(doc.Content)
	}
	return domain.ComputeFingerprint([]byte(doc.Text))
}

func (m *Matcher) formatSupported(tmpl *domain.Template, format domain.DocumentFormat) bool {
	if len(tmpl.SupportedFormats) == 0 || format == "" {
		return true
	}
	for _, f := range tmpl.SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (m *Matcher) cachedMatch(ctx context.Context, fp domain.Fingerprint, tmpl *domain.Template, now time.Time) *domain.TemplateMatch {
	if m.cache == nil {
		return nil
	}
	entry, err := m.cache.Get(ctx, fp, tmpl.ID)
	if err != nil {
		m.logger.Warn().Err(err).Str("template_id", tmpl.ID).Msg("match cache lookup failed")
		return nil
	}
	if entry == nil || !entry.Usable(now) {
		return nil
	}
	return &domain.TemplateMatch{
		Confidence: entry.Confidence,
		Factors:    entry.Factors,
		FromCache:  true,
	}
}

func (m *Matcher) storeMatch(ctx context.Context, fp domain.Fingerprint, templateID string, match *domain.TemplateMatch, elapsed time.Duration, now time.Time) {
	if m.cache == nil {
		return
	}
	entry := &domain.DocumentTemplateMatch{
		Fingerprint:   fp,
		TemplateID:    templateID,
		Confidence:    match.Confidence,
		Factors:       match.Factors,
		ComputationMs: elapsed.Milliseconds(),
		IsValid:       true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.cfg.CacheTTL),
	}
	if err := m.cache.Put(ctx, entry); err != nil {
		m.logger.Warn().Err(err).Str("template_id", templateID).Msg("match cache store failed")
	}
}

// score computes the gated, weighted confidence for one template.
// Factors without criteria behind them do not participate; the weights
// of the participating factors are renormalized so a template that only
// defines keywords can still reach 1.0.
func (m *Matcher) score(doc *docdomain.ProcessedDocument, tmpl *domain.Template) (float64, domain.MatchFactors) {
	criteria := tmpl.MatchingCriteria
	factors := domain.MatchFactors{RequiredKeywordsMet: true}
	text := strings.ToLower(doc.Text)

	// Required keywords gate the whole score
	for _, kw := range criteria.RequiredKeywords {
		if !strings.Contains(text, strings.ToLower(kw)) {
			factors.RequiredKeywordsMet = false
			return 0, factors
		}
	}

	type weighted struct {
		weight float64
		value  float64
	}
	var parts []weighted

	if len(criteria.RequiredKeywords) > 0 || len(criteria.OptionalKeywords) > 0 {
		factors.KeywordScore = keywordScore(text, criteria.OptionalKeywords)
		parts = append(parts, weighted{m.cfg.KeywordWeight, factors.KeywordScore})
	}
	if len(criteria.FilenamePatterns) > 0 {
		factors.FilenameScore = patternScore(doc.Metadata.FileName, criteria.FilenamePatterns)
		parts = append(parts, weighted{m.cfg.FilenameWeight, factors.FilenameScore})
	}
	if len(criteria.TitlePatterns) > 0 {
		factors.TitleScore = patternScore(doc.Metadata.Title, criteria.TitlePatterns)
		parts = append(parts, weighted{m.cfg.TitleWeight, factors.TitleScore})
	}
	if len(criteria.AuthorPatterns) > 0 {
		factors.AuthorScore = patternScore(doc.Metadata.Author, criteria.AuthorPatterns)
		parts = append(parts, weighted{m.cfg.AuthorWeight, factors.AuthorScore})
	}

	if len(parts) == 0 {
		return 0, factors
	}

	var sum, total float64
	for _, p := range parts {
		sum += p.weight * p.value
		total += p.weight
	}
	if total <= 0 {
		return 0, factors
	}

	confidence := sum / total
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence, factors
}

// keywordScore is the fraction of optional keywords present. With no
// optional keywords the required gate already passed, so the factor is
// a full 1.0.
func keywordScore(text string, optional []string) float64 {
	if len(optional) == 0 {
		return 1.0
	}
	hits := 0
	for _, kw := range optional {
		if strings.Contains(text, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(optional))
}

// patternScore is 1.0 when any pattern matches the value. Patterns
// that fail to compile were already flagged by validation and score
// nothing here.
func patternScore(value string, patterns []string) float64 {
	if value == "" {
		return 0
	}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			continue
		}
		if re.MatchString(value) {
			return 1.0
		}
	}
	return 0
}
