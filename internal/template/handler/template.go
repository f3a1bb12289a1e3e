package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/internal/template/repository"
	"github.com/threatdocs/threatdocs-backend/internal/template/service"
	"github.com/threatdocs/threatdocs-backend/internal/template/validation"
	"github.com/threatdocs/threatdocs-backend/pkg/httputil"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
)

// TemplateHandler handles template CRUD, versioning and inheritance
// endpoints
type TemplateHandler struct {
	svc       *service.TemplateService
	validator *validation.Validator
	logger    *logger.Logger
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(svc *service.TemplateService, v *validation.Validator, log *logger.Logger) *TemplateHandler {
	return &TemplateHandler{
		svc:       svc,
		validator: v,
		logger:    log,
	}
}

// templateEnvelope carries a template together with non-fatal
// validation warnings
type templateEnvelope struct {
	Template *domain.Template `json:"template"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Create creates a template
// POST /templates
func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var t domain.Template
	if err := httputil.DecodeJSON(r, &t); err != nil {
		httputil.Error(w, err)
		return
	}

	created, warnings, err := h.svc.Create(r.Context(), &t, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, templateEnvelope{Template: created, Warnings: warnings})
}

// Get returns a template by ID
// GET /templates/{id}
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	t, err := h.svc.Get(r.Context(), id, includeInactive)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, t)
}

// GetResolved returns the effective template after inheritance
// GET /templates/{id}/resolved
func (h *TemplateHandler) GetResolved(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.svc.GetResolved(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, resolved)
}

// Update updates a template in place
// PUT /templates/{id}
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	var t domain.Template
	if err := httputil.DecodeJSON(r, &t); err != nil {
		httputil.Error(w, err)
		return
	}
	t.ID = chi.URLParam(r, "id")

	updated, warnings, err := h.svc.Update(r.Context(), &t, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, templateEnvelope{Template: updated, Warnings: warnings})
}

// Delete soft-deletes a template
// DELETE /templates/{id}
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Delete(r.Context(), id, httputil.GetUserID(r.Context())); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// Search lists templates matching query parameters
// GET /templates
func (h *TemplateHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	templates, err := h.svc.Search(r.Context(), repository.SearchCriteria{
		Query:           q.Get("q"),
		Category:        q.Get("category"),
		Format:          domain.DocumentFormat(q.Get("format")),
		IncludeInactive: q.Get("include_inactive") == "true",
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, templates)
}

// ValidateOnly runs validation without persisting anything
// POST /templates/validate
func (h *TemplateHandler) ValidateOnly(w http.ResponseWriter, r *http.Request) {
	var t domain.Template
	if err := httputil.DecodeJSON(r, &t); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, h.validator.Validate(&t))
}

type createVersionRequest struct {
	Label string `json:"label" validate:"required"`
}

// CreateVersion snapshots the template under a new version label
// POST /templates/{id}/versions
func (h *TemplateHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var req createVersionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	next, err := h.svc.CreateVersion(r.Context(), chi.URLParam(r, "id"), req.Label, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, next)
}

// ListVersions returns the version history of a template's lineage
// GET /templates/{id}/versions
func (h *TemplateHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.ListVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, versions)
}

type rollbackRequest struct {
	Label  string `json:"label" validate:"required"`
	Reason string `json:"reason"`
}

// Rollback restores a previous version onto the current template
// POST /templates/{id}/rollback
func (h *TemplateHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	restored, err := h.svc.Rollback(r.Context(), chi.URLParam(r, "id"), req.Label, req.Reason, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, restored)
}

// ListChanges returns a template's audit trail
// GET /templates/{id}/changes
func (h *TemplateHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListChangeRecords(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, records)
}

// AddInheritance creates an inheritance edge for a template
// POST /templates/{id}/inheritance
func (h *TemplateHandler) AddInheritance(w http.ResponseWriter, r *http.Request) {
	var e domain.TemplateInheritance
	if err := httputil.DecodeJSON(r, &e); err != nil {
		httputil.Error(w, err)
		return
	}
	e.ChildID = chi.URLParam(r, "id")

	created, err := h.svc.AddInheritance(r.Context(), &e, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, created)
}

// ListInheritance lists a template's parent edges
// GET /templates/{id}/inheritance
func (h *TemplateHandler) ListInheritance(w http.ResponseWriter, r *http.Request) {
	edges, err := h.svc.ListParents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, edges)
}

// RemoveInheritance deletes an inheritance edge
// DELETE /templates/{id}/inheritance/{edgeID}
func (h *TemplateHandler) RemoveInheritance(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveInheritance(r.Context(), chi.URLParam(r, "edgeID")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

type recordUsageRequest struct {
	Successful bool  `json:"successful"`
	ElapsedMs  int64 `json:"elapsed_ms"`
}

// RecordUsage tracks one application of the template
// POST /templates/{id}/usage
func (h *TemplateHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req recordUsageRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	err := h.svc.RecordUsage(r.Context(), chi.URLParam(r, "id"), req.Successful, msToDuration(req.ElapsedMs))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
