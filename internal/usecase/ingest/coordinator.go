package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/secassist/ai-backend/internal/integration/retriever"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
)

// Report is the outcome of a directory ingestion. Failed lists the files that
// could not be ingested; their siblings are unaffected.
type Report struct {
	Ingested int
	Failed   []string
}

// Coordinator fans PDF split+store jobs out over a fixed-width worker pool.
// Splitting runs in parallel; writes into the vector index are serialized.
type Coordinator struct {
	workers      int
	chunkSize    int
	chunkOverlap int
	logger       *zap.Logger
}

func NewCoordinator(workers, chunkSize, chunkOverlap int, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		workers:      workers,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// IngestDir walks root recursively and ingests every .pdf into the backend.
// A failing file is logged and reported, never aborting the rest.
func (c *Coordinator) IngestDir(ctx context.Context, backend retriever.Backend, root string) (*Report, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	c.logger.Info("ingesting documents",
		zap.String("root", root),
		zap.Int("files", len(paths)),
		zap.String("retriever", backend.Name()),
	)

	pool, err := ants.NewPool(c.workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		storeMu  sync.Mutex
		reportMu sync.Mutex
		report   Report
	)

	splitter := newSplitter(c.chunkSize, c.chunkOverlap)

	for _, path := range paths {
		path := path
		wg.Add(1)

		submitErr := pool.Submit(func() {
			defer wg.Done()

			if err := c.ingestOne(ctx, backend, splitter, root, path, &storeMu); err != nil {
				c.logger.Error("document ingestion failed", zap.String("path", path), zap.Error(err))

				reportMu.Lock()
				report.Failed = append(report.Failed, path)
				reportMu.Unlock()
				return
			}

			reportMu.Lock()
			report.Ingested++
			reportMu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			reportMu.Lock()
			report.Failed = append(report.Failed, path)
			reportMu.Unlock()
		}
	}

	wg.Wait()

	c.logger.Info("ingestion finished",
		zap.Int("ingested", report.Ingested),
		zap.Int("failed", len(report.Failed)),
	)
	return &report, nil
}

// IngestFile ingests a single PDF. The stored source path is relative to root
// when the file lives under it.
func (c *Coordinator) IngestFile(ctx context.Context, backend retriever.Backend, root, path string) error {
	var storeMu sync.Mutex
	return c.ingestOne(ctx, backend, newSplitter(c.chunkSize, c.chunkOverlap), root, path, &storeMu)
}

func (c *Coordinator) ingestOne(ctx context.Context, backend retriever.Backend,
	splitter textsplitter.TextSplitter, root, path string, storeMu *sync.Mutex) error {

	c.logger.Debug("splitting document", zap.String("path", path))

	chunks, err := loadPDF(ctx, path, sourcePath(root, path), splitter)
	if err != nil {
		return err
	}

	storeMu.Lock()
	defer storeMu.Unlock()

	c.logger.Debug("storing document", zap.String("path", path), zap.Int("chunks", len(chunks)))
	return backend.AddDocuments(ctx, chunks)
}

// sourcePath is the citation path of a document: relative to the ingestion
// root when possible, always with forward slashes.
func sourcePath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}
