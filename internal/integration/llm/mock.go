package llm

import (
	"context"
	"fmt"

	"github.com/secassist/ai-backend/internal/entity"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// MockGenerator is a canned Generator for local development and tests.
// Respond can be swapped to script specific completions.
type MockGenerator struct {
	ModelName string
	Respond   func(messages []llms.MessageContent) (string, error)
	Calls     [][]llms.MessageContent
}

func (g *MockGenerator) Name() string {
	return g.ModelName
}

func (g *MockGenerator) Generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	g.Calls = append(g.Calls, messages)

	if g.Respond != nil {
		return g.Respond(messages)
	}

	return fmt.Sprintf("mock response from %s", g.ModelName), nil
}

var _ Factory = &MockFactory{}

// MockFactory hands out mock generators, one per model name.
type MockFactory struct {
	ValidNames map[string]bool
	Generators map[string]*MockGenerator
	logger     *zap.Logger
}

func NewMockFactory(validNames []string, logger *zap.Logger) *MockFactory {
	names := make(map[string]bool, len(validNames))
	for _, n := range validNames {
		names[n] = true
	}

	return &MockFactory{
		ValidNames: names,
		Generators: map[string]*MockGenerator{},
		logger:     logger,
	}
}

func (f *MockFactory) Generator(name string) (Generator, error) {
	if len(f.ValidNames) > 0 && !f.ValidNames[name] {
		return nil, fmt.Errorf("%w: '%s' is not a valid LLM", entity.ErrInvalidArgument, name)
	}

	if g, ok := f.Generators[name]; ok {
		return g, nil
	}

	g := &MockGenerator{ModelName: name}
	f.Generators[name] = g
	return g, nil
}
