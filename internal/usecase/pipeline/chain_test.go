package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/secassist/ai-backend/internal/entity"
	"github.com/secassist/ai-backend/internal/integration/llm"
	"github.com/secassist/ai-backend/internal/integration/retriever"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

func TestChatChainRun(t *testing.T) {
	docs := []schema.Document{
		{PageContent: "dns resolves names", Metadata: map[string]any{"source": "dns.pdf", "page": 4}},
	}

	t.Run("stuffs retrieved context into the system prompt", func(t *testing.T) {
		generator := &llm.MockGenerator{ModelName: "mistral"}
		backend := &retriever.MockBackend{ModelName: "bge-m3", Documents: docs}

		chain := &chatChain{
			generator:    generator,
			backend:      backend,
			params:       entity.DefaultSimilarityParams(),
			systemPrompt: func() string { return DefaultSystemPrompt },
		}

		_, sources, err := chain.Run(context.Background(), "what is dns?", nil)
		require.NoError(t, err)

		require.Len(t, generator.Calls, 1)
		messages := generator.Calls[0]
		require.Len(t, messages, 2)

		assert.Equal(t, llms.ChatMessageTypeSystem, messages[0].Role)
		system := messages[0].Parts[0].(llms.TextContent).Text
		assert.Contains(t, system, "dns resolves names")

		assert.Equal(t, llms.ChatMessageTypeHuman, messages[1].Role)
		assert.Equal(t, entity.Sources{"dns.pdf": {5}}, sources)
	})

	t.Run("reformulates the question when a conversation exists", func(t *testing.T) {
		backend := &retriever.MockBackend{ModelName: "bge-m3", Documents: docs}
		generator := &llm.MockGenerator{ModelName: "mistral"}
		generator.Respond = func(messages []llms.MessageContent) (string, error) {
			system := messages[0].Parts[0].(llms.TextContent).Text
			if strings.Contains(system, "formulate a standalone question") {
				return "how are dns records cached?", nil
			}
			return "via resolver caches", nil
		}

		chain := &chatChain{
			generator:    generator,
			backend:      backend,
			params:       entity.DefaultSimilarityParams(),
			systemPrompt: func() string { return DefaultSystemPrompt },
		}

		transcript := []entity.HistoryEntry{
			{Role: entity.RoleHuman, Content: "what is dns?"},
			{Role: entity.RoleAI, Content: "it resolves names"},
		}

		answer, _, err := chain.Run(context.Background(), "how is it cached?", transcript)
		require.NoError(t, err)
		assert.Equal(t, "via resolver caches", answer)

		assert.Len(t, generator.Calls, 2)
		assert.Equal(t, "how are dns records cached?", backend.LastQuery,
			"retrieval uses the standalone question")

		// The answering call still carries the original question and the
		// conversation turns.
		answering := generator.Calls[1]
		require.Len(t, answering, 4)
		final := answering[3].Parts[0].(llms.TextContent).Text
		assert.Equal(t, "how is it cached?", final)
	})
}

func TestEvalChainRun(t *testing.T) {
	generator := &llm.MockGenerator{ModelName: "mistral"}
	generator.Respond = func(messages []llms.MessageContent) (string, error) {
		return `{"grade": 2, "remark": "too vague"}`, nil
	}
	backend := &retriever.MockBackend{ModelName: "bge-m3"}

	chain := &evalChain{
		generator: generator,
		backend:   backend,
		params:    entity.DefaultSimilarityParams(),
	}

	raw, _, err := chain.Run(context.Background(), "a ddos attack", "mitigation", "rate limit")
	require.NoError(t, err)
	assert.Equal(t, `{"grade": 2, "remark": "too vague"}`, raw)

	assert.Contains(t, backend.LastQuery, "a ddos attack")
	assert.Contains(t, backend.LastQuery, "mitigation")

	require.Len(t, generator.Calls, 1)
	system := generator.Calls[0][0].Parts[0].(llms.TextContent).Text
	assert.Contains(t, system, "Scenario: a ddos attack")
	assert.Contains(t, system, "Criterion: mitigation")
}

func TestParseVerdict(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		grade, remark, err := parseVerdict(`{"grade": 4.5, "remark": "solid"}`)
		require.NoError(t, err)
		assert.Equal(t, 4.5, grade)
		assert.Equal(t, "solid", remark)
	})

	t.Run("boundary grades", func(t *testing.T) {
		for _, raw := range []string{`{"grade": 0, "remark": "r"}`, `{"grade": 5, "remark": "r"}`} {
			_, _, err := parseVerdict(raw)
			assert.NoError(t, err)
		}
	})

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "the grade is 4"},
		{"missing grade", `{"remark": "fine"}`},
		{"missing remark", `{"grade": 3}`},
		{"grade too low", `{"grade": -1, "remark": "r"}`},
		{"grade too high", `{"grade": 6, "remark": "r"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseVerdict(tt.raw)
			assert.ErrorIs(t, err, entity.ErrMalformedOutput)
		})
	}
}

func TestFormatSources(t *testing.T) {
	docs := []schema.Document{
		{PageContent: "a", Metadata: map[string]any{"source": "dir\\guide.pdf", "page": 0}},
		{PageContent: "b", Metadata: map[string]any{"source": "dir/guide.pdf", "page": float64(0)}},
		{PageContent: "c", Metadata: map[string]any{"source": "dir/guide.pdf", "page": 3}},
		{PageContent: "d", Metadata: map[string]any{"page": 1}},
		{PageContent: "e", Metadata: map[string]any{"source": "dir/other.pdf", "page": "nan"}},
	}

	sources := formatSources(docs)

	assert.Equal(t, entity.Sources{"dir/guide.pdf": {1, 4}}, sources,
		"pages are 1-based and de-duplicated; entries without usable metadata are skipped")
}

func TestStuffDocuments(t *testing.T) {
	docs := []schema.Document{{PageContent: "first"}, {PageContent: "second"}}
	assert.Equal(t, "first\n\nsecond", stuffDocuments(docs))
	assert.Equal(t, "", stuffDocuments(nil))
}
