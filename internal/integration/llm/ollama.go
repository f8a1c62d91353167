package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/secassist/ai-backend/internal/config"
	"github.com/secassist/ai-backend/internal/entity"
	pkghttp "github.com/secassist/ai-backend/pkg/http"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
)

// Generator produces a completion for a prepared message sequence.
type Generator interface {
	Name() string
	Generate(ctx context.Context, messages []llms.MessageContent) (string, error)
}

// Factory constructs a Generator for an allow-listed model name.
type Factory interface {
	Generator(name string) (Generator, error)
}

// OllamaGenerator implements Generator against an Ollama server.
type OllamaGenerator struct {
	name   string
	client *ollama.LLM
	logger *zap.Logger
}

func (g *OllamaGenerator) Name() string {
	return g.name
}

func (g *OllamaGenerator) Generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	g.logger.Debug("generating completion",
		zap.String("model", g.name),
		zap.Int("messages", len(messages)),
	)

	resp, err := g.client.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: ollama generate with '%s': %v", entity.ErrBackendUnavailable, g.name, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: ollama returned no choices", entity.ErrBackendUnavailable)
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}

var _ Factory = &OllamaFactory{}

// OllamaFactory builds generators bound to the configured Ollama server.
type OllamaFactory struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewFactory(cfg *config.Config, logger *zap.Logger) *OllamaFactory {
	return &OllamaFactory{
		cfg: cfg,
		// Model generation can run for minutes, so the request itself is
		// unbounded and only the header wait is capped.
		httpClient: pkghttp.NewClient(
			pkghttp.WithRequestTimeout(0),
			pkghttp.WithResponseHeaderTimeout(5*time.Minute),
			pkghttp.WithRequestLogging(),
		),
		logger: logger,
	}
}

func (f *OllamaFactory) Generator(name string) (Generator, error) {
	if !f.cfg.IsValidLLM(name) {
		return nil, fmt.Errorf("%w: '%s' is not a valid LLM", entity.ErrInvalidArgument, name)
	}

	client, err := ollama.New(
		ollama.WithServerURL(f.cfg.OllamaURL),
		ollama.WithModel(name),
		ollama.WithHTTPClient(f.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create ollama client for '%s': %v", entity.ErrBackendUnavailable, name, err)
	}

	return &OllamaGenerator{
		name:   name,
		client: client,
		logger: f.logger.With(zap.String("component", "ollama-generator")),
	}, nil
}
