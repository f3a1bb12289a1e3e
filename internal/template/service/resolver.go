package service

import (
	"context"
	"strconv"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
)

// TemplateLoader supplies templates to the resolver and matcher
type TemplateLoader interface {
	GetByID(ctx context.Context, id string, includeInactive bool) (*domain.Template, error)
}

// EdgeSource supplies inheritance edges to the resolver
type EdgeSource interface {
	ListParents(ctx context.Context, childID string) ([]*domain.TemplateInheritance, error)
	GetEdge(ctx context.Context, childID, parentID string) (*domain.TemplateInheritance, error)
}

// InheritanceResolver computes effective templates from inheritance
// chains. Cycles and depth are checked both here and at edge creation;
// neither side assumes the other already ran.
type InheritanceResolver struct {
	templates TemplateLoader
	edges     EdgeSource
	maxDepth  int
	logger    *logger.Logger
}

// NewInheritanceResolver creates a new resolver
func NewInheritanceResolver(templates TemplateLoader, edges EdgeSource, maxDepth int, log *logger.Logger) *InheritanceResolver {
	if maxDepth <= 0 {
		maxDepth = domain.MaxInheritanceDepth
	}
	return &InheritanceResolver{
		templates: templates,
		edges:     edges,
		maxDepth:  maxDepth,
		logger:    log,
	}
}

// chainLink pairs an ancestor template with the edge its descendant
// used to inherit from it
type chainLink struct {
	template *domain.Template
	edge     *domain.TemplateInheritance
}

// Resolve walks parent edges upward from the target and merges the
// chain base-first into an effective template
func (r *InheritanceResolver) Resolve(ctx context.Context, templateID string) (*domain.ResolvedTemplate, error) {
	target, err := r.templates.GetByID(ctx, templateID, false)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, errors.NotFound("template")
	}

	chain, err := r.walkChain(ctx, target)
	if err != nil {
		return nil, err
	}

	resolved := r.merge(target, chain)

	r.logger.Debug().
		Str("template_id", templateID).
		Int("chain_length", len(chain)).
		Msg("inheritance resolved")

	return resolved, nil
}

// walkChain collects ancestors, closest parent first. When a template
// has several parents, the highest-priority active edge defines the
// primary chain and the remaining edges do not contribute to the
// merge; skipped edges are logged so the choice is visible.
func (r *InheritanceResolver) walkChain(ctx context.Context, target *domain.Template) ([]chainLink, error) {
	var chain []chainLink
	visited := map[string]bool{target.ID: true}
	path := []string{target.ID}

	current := target
	for {
		parents, err := r.edges.ListParents(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		if len(parents) == 0 {
			break
		}

		edge := parents[0]
		if len(parents) > 1 {
			r.logger.Debug().
				Str("template_id", current.ID).
				Str("primary_parent_id", edge.ParentID).
				Int("skipped_edges", len(parents)-1).
				Msg("multiple parent edges, primary chain follows highest priority")
		}
		if visited[edge.ParentID] {
			return nil, errors.CircularInheritance(append(path, edge.ParentID))
		}

		if len(chain)+1 > r.maxDepth {
			return nil, errors.ExcessiveDepth(len(chain)+1, r.maxDepth)
		}

		parent, err := r.templates.GetByID(ctx, edge.ParentID, false)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, errors.NotFound("parent template " + edge.ParentID)
		}

		visited[parent.ID] = true
		path = append(path, parent.ID)
		chain = append(chain, chainLink{template: parent, edge: edge})
		current = parent
	}

	return chain, nil
}

// merge applies the chain base-first: the most distant ancestor seeds
// the effective template and each descendant's own definition is
// layered on top, respecting the per-edge flags
func (r *InheritanceResolver) merge(target *domain.Template, chain []chainLink) *domain.ResolvedTemplate {
	sources := make(map[string]string)

	if len(chain) == 0 {
		eff := target.Clone()
		for i := range eff.Fields {
			sources["field:"+eff.Fields[i].Name] = target.ID
		}
		recordSettingsSources(sources, target.ID)
		return &domain.ResolvedTemplate{
			EffectiveTemplate: eff,
			InheritanceChain:  []string{},
			PropertySources:   sources,
		}
	}

	// Base ancestor seeds the merge
	base := chain[len(chain)-1].template
	effective := base.Clone()
	for i := range effective.Fields {
		sources["field:"+effective.Fields[i].Name] = base.ID
	}
	recordSettingsSources(sources, base.ID)

	// Walk back down: each descendant overlays the accumulated result
	// through the edge it inherits by
	for i := len(chain) - 1; i >= 0; i-- {
		var descendant *domain.Template
		if i == 0 {
			descendant = target
		} else {
			descendant = chain[i-1].template
		}
		applyLayer(effective, descendant, chain[i].edge, sources)
	}

	effective.ID = target.ID
	effective.Name = target.Name
	effective.Description = target.Description
	effective.Version = target.Version
	effective.LineageID = target.LineageID
	effective.IsActive = target.IsActive
	effective.CreatedBy = target.CreatedBy
	effective.CreatedAt = target.CreatedAt
	effective.LastModifiedBy = target.LastModifiedBy
	effective.LastModifiedAt = target.LastModifiedAt
	effective.UsageStats = target.UsageStats

	chainIDs := make([]string, len(chain))
	for i, link := range chain {
		chainIDs[i] = link.template.ID
	}

	return &domain.ResolvedTemplate{
		EffectiveTemplate: effective,
		InheritanceChain:  chainIDs,
		PropertySources:   sources,
	}
}

// applyLayer overlays one descendant onto the accumulated effective
// template through the given edge
func applyLayer(effective, descendant *domain.Template, edge *domain.TemplateInheritance, sources map[string]string) {
	inheritFields := edge.Type != domain.InheritSettingsOnly
	inheritSettings := edge.Type != domain.InheritFieldsOnly

	if !inheritFields {
		// Descendant keeps only its own fields
		effective.Fields = nil
		for k := range sources {
			if len(k) > 6 && k[:6] == "field:" {
				delete(sources, k)
			}
		}
	}

	// Edge-level removals. Flag coherence was enforced at edge
	// creation; an edge forbidding removal cannot carry remove actions.
	for name, action := range edge.FieldOverrides {
		if action == domain.FieldRemove && edge.AllowFieldRemoval {
			removeField(effective, name)
			delete(sources, "field:"+name)
		}
	}

	// Descendant's own fields: modifications replace inherited fields,
	// additions append, both gated by the edge flags
	for i := range descendant.Fields {
		f := descendant.Fields[i]
		if existing := effective.FieldByName(f.Name); existing != nil {
			if edge.AllowFieldModification {
				*existing = f.Clone()
				sources["field:"+f.Name] = descendant.ID
			}
		} else if edge.AllowFieldAddition || !inheritFields {
			effective.Fields = append(effective.Fields, f.Clone())
			sources["field:"+f.Name] = descendant.ID
		}
	}

	if inheritSettings && edge.AllowSettingsOverride {
		applySettings(effective, descendant, sources)
	}

	// Edge-pinned settings win over both sides
	applySettingsOverrides(effective, edge, sources)
}

func removeField(t *domain.Template, name string) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			t.Fields = append(t.Fields[:i], t.Fields[i+1:]...)
			return
		}
	}
}

func applySettings(effective, from *domain.Template, sources map[string]string) {
	effective.ConfidenceThreshold = from.ConfidenceThreshold
	effective.AutoApply = from.AutoApply
	effective.AllowPartialMatches = from.AllowPartialMatches
	effective.Priority = from.Priority
	effective.Category = from.Category
	effective.Tags = append([]string(nil), from.Tags...)
	effective.SupportedFormats = append([]domain.DocumentFormat(nil), from.SupportedFormats...)
	effective.MatchingCriteria = from.MatchingCriteria
	effective.OCRSettings = from.OCRSettings
	effective.ValidationPolicy = from.ValidationPolicy
	recordSettingsSources(sources, from.ID)
}

func recordSettingsSources(sources map[string]string, id string) {
	for _, key := range []string{
		"setting:confidence_threshold", "setting:auto_apply", "setting:allow_partial_matches",
		"setting:priority", "setting:category", "setting:tags", "setting:supported_formats",
		"setting:matching_criteria", "setting:ocr_settings", "setting:validation_policy",
	} {
		sources[key] = id
	}
}

// applySettingsOverrides pins individual settings from the edge's
// settings override map
func applySettingsOverrides(effective *domain.Template, edge *domain.TemplateInheritance, sources map[string]string) {
	for key, raw := range edge.SettingsOverrides {
		switch key {
		case "confidence_threshold":
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				effective.ConfidenceThreshold = v
				sources["setting:confidence_threshold"] = edge.ID
			}
		case "auto_apply":
			if v, err := strconv.ParseBool(raw); err == nil {
				effective.AutoApply = v
				sources["setting:auto_apply"] = edge.ID
			}
		case "allow_partial_matches":
			if v, err := strconv.ParseBool(raw); err == nil {
				effective.AllowPartialMatches = v
				sources["setting:allow_partial_matches"] = edge.ID
			}
		case "priority":
			if v, err := strconv.Atoi(raw); err == nil {
				effective.Priority = v
				sources["setting:priority"] = edge.ID
			}
		case "category":
			effective.Category = raw
			sources["setting:category"] = edge.ID
		}
	}
}

// ValidateInheritance simulates adding a child->parent edge and reports
// whether the graph would stay acyclic and within the depth bound. Used
// before committing an edge.
func (r *InheritanceResolver) ValidateInheritance(ctx context.Context, childID, parentID string) (bool, error) {
	if childID == parentID {
		return false, nil
	}

	existing, err := r.edges.GetEdge(ctx, childID, parentID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	// A cycle appears iff the child is reachable from the parent
	reachable, ancestorDepth, err := r.reach(ctx, parentID, childID, map[string]bool{})
	if err != nil {
		return false, err
	}
	if reachable {
		return false, nil
	}

	descendantDepth, err := r.descendantDepth(ctx, childID, map[string]bool{})
	if err != nil {
		return false, err
	}

	if ancestorDepth+1+descendantDepth > r.maxDepth {
		return false, nil
	}

	return true, nil
}

// reach reports whether target is reachable upward from start, and the
// longest ancestor chain above start
func (r *InheritanceResolver) reach(ctx context.Context, start, targetID string, visited map[string]bool) (bool, int, error) {
	if visited[start] {
		return false, 0, nil
	}
	visited[start] = true

	parents, err := r.edges.ListParents(ctx, start)
	if err != nil {
		return false, 0, err
	}

	depth := 0
	for _, edge := range parents {
		if edge.ParentID == targetID {
			return true, 0, nil
		}
		found, d, err := r.reach(ctx, edge.ParentID, targetID, visited)
		if err != nil {
			return false, 0, err
		}
		if found {
			return true, 0, nil
		}
		if d+1 > depth {
			depth = d + 1
		}
	}
	return false, depth, nil
}

// descendantDepth is left conservative: it counts the longest chain
// below a node by walking child edges
func (r *InheritanceResolver) descendantDepth(ctx context.Context, id string, visited map[string]bool) (int, error) {
	if visited[id] {
		return 0, nil
	}
	visited[id] = true

	lister, ok := r.edges.(interface {
		ListChildren(ctx context.Context, parentID string) ([]*domain.TemplateInheritance, error)
	})
	if !ok {
		return 0, nil
	}

	children, err := lister.ListChildren(ctx, id)
	if err != nil {
		return 0, err
	}

	depth := 0
	for _, edge := range children {
		d, err := r.descendantDepth(ctx, edge.ChildID, visited)
		if err != nil {
			return 0, err
		}
		if d+1 > depth {
			depth = d + 1
		}
	}
	return depth, nil
}
