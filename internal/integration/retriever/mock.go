package retriever

import (
	"context"
	"fmt"

	"github.com/secassist/ai-backend/internal/entity"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// MockBackend is a canned Backend for local development and tests. Documents
// returned by Search come from the Documents field regardless of the query.
type MockBackend struct {
	ModelName  string
	Documents  []schema.Document
	Stored     []schema.Document
	LastQuery  string
	LastParams entity.AlgorithmParams
	SearchErr  error
}

func (b *MockBackend) Name() string {
	return b.ModelName
}

func (b *MockBackend) Search(ctx context.Context, query string, params entity.AlgorithmParams) ([]schema.Document, error) {
	b.LastQuery = query
	b.LastParams = params

	if b.SearchErr != nil {
		return nil, b.SearchErr
	}
	return b.Documents, nil
}

func (b *MockBackend) AddDocuments(ctx context.Context, docs []schema.Document) error {
	b.Stored = append(b.Stored, docs...)
	return nil
}

var _ Factory = &MockFactory{}

// MockFactory hands out mock backends, one per retriever name.
type MockFactory struct {
	ValidNames map[string]bool
	Backends   map[string]*MockBackend
	logger     *zap.Logger
}

func NewMockFactory(validNames []string, logger *zap.Logger) *MockFactory {
	names := make(map[string]bool, len(validNames))
	for _, n := range validNames {
		names[n] = true
	}

	return &MockFactory{
		ValidNames: names,
		Backends:   map[string]*MockBackend{},
		logger:     logger,
	}
}

func (f *MockFactory) Retriever(name string) (Backend, error) {
	if len(f.ValidNames) > 0 && !f.ValidNames[name] {
		return nil, fmt.Errorf("%w: '%s' is not a valid retriever", entity.ErrInvalidArgument, name)
	}

	if b, ok := f.Backends[name]; ok {
		return b, nil
	}

	b := &MockBackend{ModelName: name}
	f.Backends[name] = b
	return b, nil
}
