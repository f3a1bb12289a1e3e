package processor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/threatdocs/threatdocs-backend/internal/docprocess/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
)

// formFeed separates pages in text renditions of paginated documents
const formFeed = "\x0c"

// TextProcessor handles formats whose bytes already are text
type TextProcessor struct {
	logger *logger.Logger
}

// NewTextProcessor creates a plain-text processor
func NewTextProcessor(log *logger.Logger) *TextProcessor {
	return &TextProcessor{logger: log}
}

func (p *TextProcessor) Name() string { return "text" }

func (p *TextProcessor) CanProcess(format string) bool {
	switch strings.ToLower(format) {
	case "txt", "text", "csv", "html":
		return true
	}
	return false
}

func (p *TextProcessor) Process(_ context.Context, fileName string, content []byte) (*domain.ProcessedDocument, error) {
	text := string(content)
	pages := strings.Split(text, formFeed)

	doc := &domain.ProcessedDocument{
		Text:      text,
		PageCount: len(pages),
		Metadata: domain.DocumentMetadata{
			FileName: filepath.Base(fileName),
			Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."),
		},
		Content: content,
	}
	if len(pages) > 1 {
		doc.Pages = pages
	}

	p.logger.Debug().Str("file", doc.Metadata.FileName).Int("pages", doc.PageCount).Msg("text document processed")
	return doc, nil
}
