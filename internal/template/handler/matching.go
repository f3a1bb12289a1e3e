package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"

	docdomain "github.com/threatdocs/threatdocs-backend/internal/docprocess/domain"
	"github.com/threatdocs/threatdocs-backend/internal/docprocess/processor"
	"github.com/threatdocs/threatdocs-backend/internal/template/domain"
	"github.com/threatdocs/threatdocs-backend/internal/template/service"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
	"github.com/threatdocs/threatdocs-backend/pkg/httputil"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
	"github.com/threatdocs/threatdocs-backend/pkg/messaging"
)

// MatchingHandler handles document matching and field extraction
// endpoints
type MatchingHandler struct {
	matcher   *service.Matcher
	extractor *service.FieldExtractor
	templates *service.TemplateService
	registry  *processor.Registry
	publisher service.EventPublisher
	logger    *logger.Logger
}

// NewMatchingHandler creates a new matching handler
func NewMatchingHandler(
	matcher *service.Matcher,
	extractor *service.FieldExtractor,
	templates *service.TemplateService,
	registry *processor.Registry,
	publisher service.EventPublisher,
	log *logger.Logger,
) *MatchingHandler {
	return &MatchingHandler{
		matcher:   matcher,
		extractor: extractor,
		templates: templates,
		registry:  registry,
		publisher: publisher,
		logger:    log,
	}
}

// matchRequest describes a document to match. Either pre-extracted
// text or base64 raw content must be present; raw content runs through
// a registered document processor first.
type matchRequest struct {
	FileName      string `json:"file_name"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	Format        string `json:"format"`
	Text          string `json:"text"`
	ContentBase64 string `json:"content_base64"`
}

func (h *MatchingHandler) document(r *http.Request) (*docdomain.ProcessedDocument, error) {
	var req matchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return nil, err
	}

	if req.ContentBase64 != "" {
		content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			return nil, errors.BadRequest("content_base64 is not valid base64")
		}
		proc := h.registry.FindProcessor(req.Format)
		if proc == nil {
			return nil, errors.BadRequest("no processor registered for format " + req.Format)
		}
		doc, err := proc.Process(r.Context(), req.FileName, content)
		if err != nil {
			return nil, err
		}
		if req.Title != "" {
			doc.Metadata.Title = req.Title
		}
		if req.Author != "" {
			doc.Metadata.Author = req.Author
		}
		return doc, nil
	}

	if req.Text == "" {
		return nil, errors.BadRequest("either text or content_base64 is required")
	}

	return &docdomain.ProcessedDocument{
		Text:      req.Text,
		PageCount: 1,
		Metadata: docdomain.DocumentMetadata{
			FileName: req.FileName,
			Title:    req.Title,
			Author:   req.Author,
			Format:   req.Format,
		},
	}, nil
}

// Match scores a document against all active templates
// POST /match
func (h *MatchingHandler) Match(w http.ResponseWriter, r *http.Request) {
	doc, err := h.document(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	matches, err := h.matcher.MatchAll(r.Context(), doc)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.publishMatch(r, doc, matches)
	httputil.JSON(w, http.StatusOK, matches)
}

// Extract applies a template's field definitions to a document
// POST /templates/{id}/extract
func (h *MatchingHandler) Extract(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.templates.GetResolved(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.document(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	outcome := h.extractor.Extract(tmpl.EffectiveTemplate, doc)

	successful := len(outcome.Missing) == 0
	if err := h.templates.RecordExtraction(r.Context(), outcome, successful); err != nil {
		h.logger.Warn().Err(err).Str("template_id", outcome.TemplateID).Msg("usage recording failed")
	}

	httputil.JSON(w, http.StatusOK, outcome)
}

func (h *MatchingHandler) publishMatch(r *http.Request, doc *docdomain.ProcessedDocument, matches []*domain.TemplateMatch) {
	if h.publisher == nil {
		return
	}

	event := messaging.MatchCompletedEvent{
		Fingerprint: string(domain.ComputeFingerprint([]byte(doc.Text))),
		Candidates:  len(matches),
	}
	if len(matches) > 0 {
		event.BestTemplateID = matches[0].Template.ID
		event.Confidence = matches[0].Confidence
	}

	if err := h.publisher.Publish(r.Context(), messaging.EventMatchCompleted, event); err != nil {
		h.logger.Warn().Err(err).Msg("event publish failed")
	}
}
