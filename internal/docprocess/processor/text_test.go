package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatdocs/threatdocs-backend/pkg/logger"
)

func TestTextProcessorSplitsPagesOnFormFeed(t *testing.T) {
	p := NewTextProcessor(logger.New("test", "development"))

	doc, err := p.Process(context.Background(), "/tmp/uploads/review.txt",
		[]byte("page one\x0cpage two"))
	require.NoError(t, err)

	assert.Equal(t, 2, doc.PageCount)
	require.Len(t, doc.Pages, 2)
	assert.Equal(t, "page one", doc.Pages[0])
	assert.Equal(t, "review.txt", doc.Metadata.FileName)
	assert.Equal(t, "txt", doc.Metadata.Format)
}

func TestTextProcessorSinglePage(t *testing.T) {
	p := NewTextProcessor(logger.New("test", "development"))

	doc, err := p.Process(context.Background(), "notes.csv", []byte("a,b,c"))
	require.NoError(t, err)

	assert.Equal(t, 1, doc.PageCount)
	assert.Empty(t, doc.Pages)
	assert.Equal(t, "csv", doc.Metadata.Format)
}

func TestRegistryDispatchesByFormat(t *testing.T) {
	text := NewTextProcessor(logger.New("test", "development"))
	reg := NewRegistry(text)

	assert.Equal(t, text, reg.FindProcessor("TXT"))
	assert.Nil(t, reg.FindProcessor("docx"))
	assert.Len(t, reg.FindProcessors("html"), 1)
}
