package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// loadPDF reads one PDF and returns its chunks. Each chunk carries the source
// path (forward slashes) and the zero-based page it was cut from; citation
// formatting turns the page into a 1-based number.
func loadPDF(ctx context.Context, path, source string, splitter textsplitter.TextSplitter) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	loader := documentloaders.NewPDF(f, info.Size())
	pages, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	for i := range pages {
		pages[i].Metadata = map[string]any{
			"source": source,
			"page":   i,
		}
	}

	chunks, err := textsplitter.SplitDocuments(splitter, pages)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}

	return chunks, nil
}

func newSplitter(chunkSize, chunkOverlap int) textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
}
