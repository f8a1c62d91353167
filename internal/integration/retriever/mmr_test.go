package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	t.Run("degenerate inputs", func(t *testing.T) {
		assert.Zero(t, cosineSimilarity([]float32{1, 0}, []float32{1}), "mismatched lengths")
		assert.Zero(t, cosineSimilarity(nil, nil), "empty vectors")
		assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 0}), "zero norm")
	})
}

func TestMaximalMarginalRelevance(t *testing.T) {
	query := []float32{1, 0}
	docs := [][]float32{
		{1, 0},      // identical to the query
		{0.99, 0.1}, // near duplicate of the first
		{0, 1},      // orthogonal
		{0.5, 0.5},  // in between
	}

	t.Run("pure relevance picks by similarity", func(t *testing.T) {
		picked := maximalMarginalRelevance(query, docs, 1.0, 2)
		assert.Equal(t, []int{0, 1}, picked)
	})

	t.Run("diversity penalizes near duplicates", func(t *testing.T) {
		picked := maximalMarginalRelevance(query, docs, 0.4, 2)
		require.Len(t, picked, 2)
		assert.Equal(t, 0, picked[0], "the most relevant document is always first")
		assert.Equal(t, 2, picked[1], "the near duplicate loses to the orthogonal pick")
	})

	t.Run("count capped at candidate count", func(t *testing.T) {
		picked := maximalMarginalRelevance(query, docs[:2], 0.5, 10)
		assert.Len(t, picked, 2)
	})
}

func TestRerankMMR(t *testing.T) {
	t.Run("small candidate sets pass through untouched", func(t *testing.T) {
		candidates := []schema.Document{
			{PageContent: "a"},
			{PageContent: "b"},
		}

		// The embedder is never called for <= 4 candidates.
		result, err := rerankMMR(context.Background(), nil, "query", candidates, 0.5)
		require.NoError(t, err)
		assert.Equal(t, candidates, result)
	})
}
