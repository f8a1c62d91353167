package retriever

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/secassist/ai-backend/internal/config"
	"github.com/secassist/ai-backend/internal/entity"
	pkghttp "github.com/secassist/ai-backend/pkg/http"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/chroma"
	"go.uber.org/zap"
)

// Backend pairs an embedding model with its vector index partition and runs
// ranked retrieval under a session's algorithm variant.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, params entity.AlgorithmParams) ([]schema.Document, error)
	AddDocuments(ctx context.Context, docs []schema.Document) error
}

// Factory constructs a Backend for an allow-listed retriever name.
type Factory interface {
	Retriever(name string) (Backend, error)
}

// ChromaBackend implements Backend against a Chroma server. The collection is
// selected by the embedding dimensionality of the model.
type ChromaBackend struct {
	name     string
	store    chroma.Store
	embedder embeddings.Embedder
	logger   *zap.Logger
}

func (b *ChromaBackend) Name() string {
	return b.name
}

// Search dispatches on the concrete parameter shape. The shapes are a closed
// set; an unknown one is a programming error upstream.
func (b *ChromaBackend) Search(ctx context.Context, query string, params entity.AlgorithmParams) ([]schema.Document, error) {
	switch p := params.(type) {
	case *entity.SimilarityParams:
		docs, err := b.store.SimilaritySearch(ctx, query, p.K)
		if err != nil {
			return nil, fmt.Errorf("%w: similarity search: %v", entity.ErrBackendUnavailable, err)
		}
		return docs, nil

	case *entity.ThresholdParams:
		docs, err := b.store.SimilaritySearch(ctx, query, p.K,
			vectorstores.WithScoreThreshold(float32(p.ScoreThreshold)))
		if err != nil {
			return nil, fmt.Errorf("%w: threshold search: %v", entity.ErrBackendUnavailable, err)
		}
		return docs, nil

	case *entity.MMRParams:
		candidates, err := b.store.SimilaritySearch(ctx, query, p.FetchK)
		if err != nil {
			return nil, fmt.Errorf("%w: mmr candidate search: %v", entity.ErrBackendUnavailable, err)
		}
		return rerankMMR(ctx, b.embedder, query, candidates, p.LambdaMult)

	default:
		return nil, fmt.Errorf("%w: unsupported algorithm parameters %T", entity.ErrInvalidArgument, params)
	}
}

func (b *ChromaBackend) AddDocuments(ctx context.Context, docs []schema.Document) error {
	if len(docs) == 0 {
		return nil
	}

	if _, err := b.store.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("%w: add documents: %v", entity.ErrBackendUnavailable, err)
	}

	b.logger.Debug("stored documents", zap.String("retriever", b.name), zap.Int("count", len(docs)))
	return nil
}

var _ Factory = &ChromaFactory{}

// ChromaFactory builds backends bound to the configured Chroma and Ollama
// servers.
type ChromaFactory struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewFactory(cfg *config.Config, logger *zap.Logger) *ChromaFactory {
	return &ChromaFactory{
		cfg: cfg,
		// Embedding large ingestion batches can be slow, so only the
		// header wait is capped.
		httpClient: pkghttp.NewClient(
			pkghttp.WithRequestTimeout(0),
			pkghttp.WithResponseHeaderTimeout(5*time.Minute),
			pkghttp.WithRequestLogging(),
		),
		logger: logger,
	}
}

func (f *ChromaFactory) Retriever(name string) (Backend, error) {
	rc, ok := f.cfg.Retriever(name)
	if !ok {
		return nil, fmt.Errorf("%w: '%s' is not a valid retriever", entity.ErrInvalidArgument, name)
	}

	client, err := ollama.New(
		ollama.WithServerURL(f.cfg.OllamaURL),
		ollama.WithModel(rc.Name),
		ollama.WithHTTPClient(f.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create embedding client for '%s': %v", entity.ErrBackendUnavailable, name, err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("%w: create embedder for '%s': %v", entity.ErrBackendUnavailable, name, err)
	}

	store, err := chroma.New(
		chroma.WithChromaURL(f.cfg.ChromaURL),
		chroma.WithEmbedder(embedder),
		chroma.WithNameSpace(config.CollectionName(rc.Dimensions)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: open vector store for '%s': %v", entity.ErrBackendUnavailable, name, err)
	}

	return &ChromaBackend{
		name:     name,
		store:    store,
		embedder: embedder,
		logger:   f.logger.With(zap.String("component", "chroma-backend")),
	}, nil
}
