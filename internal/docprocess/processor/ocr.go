package processor

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/threatdocs/threatdocs-backend/internal/docprocess/domain"
	"github.com/threatdocs/threatdocs-backend/pkg/errors"
	"github.com/threatdocs/threatdocs-backend/pkg/logger"
)

// OCRProcessor recovers text from scanned documents and images via
// Tesseract
type OCRProcessor struct {
	languages []string
	logger    *logger.Logger
}

// NewOCRProcessor creates an OCR processor. languages follow the
// Tesseract naming scheme ("eng", "deu", ...).
func NewOCRProcessor(languages []string, log *logger.Logger) *OCRProcessor {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &OCRProcessor{languages: languages, logger: log}
}

func (p *OCRProcessor) Name() string { return "ocr" }

func (p *OCRProcessor) CanProcess(format string) bool {
	switch strings.ToLower(format) {
	case "png", "jpg", "jpeg", "tiff", "tif", "pdf":
		return true
	}
	return false
}

func (p *OCRProcessor) Process(ctx context.Context, fileName string, content []byte) (*domain.ProcessedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(p.languages...); err != nil {
		return nil, errors.Internal("failed to configure OCR languages: " + err.Error())
	}
	if err := client.SetImageFromBytes(content); err != nil {
		return nil, errors.BadRequest("unreadable image data: " + err.Error())
	}

	text, err := client.Text()
	if err != nil {
		return nil, errors.Internal("OCR failed: " + err.Error())
	}

	doc := &domain.ProcessedDocument{
		Text:      text,
		PageCount: 1,
		Metadata: domain.DocumentMetadata{
			FileName: filepath.Base(fileName),
			Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."),
		},
		Content: content,
	}

	p.logger.Debug().Str("file", doc.Metadata.FileName).Int("chars", len(text)).Msg("document OCRed")
	return doc, nil
}
