package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/threatdocs/threatdocs-backend/internal/template/service"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
	"github.com/threatdocs/threatdocs-backend/pkg/httputil"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
	"github.com/threatdocs/threatdocs-backend/pkg/messaging"
)

// maxImportBytes bounds import payload size
const maxImportBytes = 16 << 20

// ExchangeHandler handles template export and import endpoints
type ExchangeHandler struct {
	exchange  *service.ExchangeService
	publisher service.EventPublisher
	logger    *logger.Logger
}

// NewExchangeHandler creates a new exchange handler
func NewExchangeHandler(exchange *service.ExchangeService, publisher service.EventPublisher, log *logger.Logger) *ExchangeHandler {
	return &ExchangeHandler{
		exchange:  exchange,
		publisher: publisher,
		logger:    log,
	}
}

type exportRequest struct {
	IDs  []string           `json:"ids"`
	Mode service.ExportMode `json:"mode"`
}

// Export serializes templates to the interchange format
// POST /templates/export
func (h *ExchangeHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	export, err := h.exchange.Export(r.Context(), req.IDs, req.Mode, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, export)
}

// Import reads an interchange payload and persists its templates
// POST /templates/import
func (h *ExchangeHandler) Import(w http.ResponseWriter, r *http.Request) {
	assignNewIDs := r.URL.Query().Get("assign_new_ids") != "false"

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes+1))
	if err != nil {
		httputil.Error(w, errors.BadRequest("failed to read request body"))
		return
	}
	if len(raw) > maxImportBytes {
		httputil.Error(w, errors.BadRequest("import payload exceeds the size limit"))
		return
	}

	result, err := h.exchange.Import(r.Context(), raw, service.ImportOptions{
		AssignNewIDs: assignNewIDs,
		ImportedBy:   httputil.GetUserID(r.Context()),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if h.publisher != nil {
		event := messaging.TemplatesImportedEvent{
			Imported: len(result.ImportedIDs),
			Failed:   len(result.Errors),
		}
		if err := h.publisher.Publish(r.Context(), messaging.EventTemplatesImported, event); err != nil {
			h.logger.Warn().Err(err).Msg("event publish failed")
		}
	}

	status := http.StatusOK
	if len(result.ImportedIDs) == 0 && len(result.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	httputil.JSON(w, status, result)
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
