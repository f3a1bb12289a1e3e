package processor

import (
	"context"

	"github.com/threatdocs/threatdocs-backend/internal/docprocess/domain"
)

// Processor turns raw file bytes into the text-and-metadata shape the
// matcher and field extraction consume. Implementations can be swapped
// in to add richer OCR or parser backends without touching the
// matching layer.
type Processor interface {
	// CanProcess returns true if this processor handles the given format
	CanProcess(format string) bool

	// Process extracts text, pages and metadata from document bytes.
	// The raw bytes should NOT be retained after processing.
	Process(ctx context.Context, fileName string, content []byte) (*domain.ProcessedDocument, error)

	// Name returns the processor name for logging/audit
	Name() string
}

// Registry holds all registered processors and dispatches to the right one
type Registry struct {
	processors []Processor
}

// NewRegistry creates a new processor registry
func NewRegistry(processors ...Processor) *Registry {
	return &Registry{processors: processors}
}

// FindProcessor returns the first processor that can handle the format
func (r *Registry) FindProcessor(format string) Processor {
	for _, p := range r.processors {
		if p.CanProcess(format) {
			return p
		}
	}
	return nil
}

// FindProcessors returns all processors that can handle the format, in
// registration order. Supports fallback: if the first fails on a given
// file, the next one can try.
func (r *Registry) FindProcessors(format string) []Processor {
	var result []Processor
	for _, p := range r.processors {
		if p.CanProcess(format) {
			result = append(result, p)
		}
	}
	return result
}
