package validator

import (
	"testing"

	"github.com/secassist/ai-backend/internal/config"
	"github.com/secassist/ai-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testValidator() *Validator {
	return New(&config.Config{
		ValidLLMs: []string{"mistral", "phi3"},
		Retrievers: []config.RetrieverConfig{
			{Name: "all-minilm", Dimensions: 384},
			{Name: "bge-m3", Dimensions: 1024},
		},
	})
}

func TestLLM(t *testing.T) {
	v := testValidator()

	assert.NoError(t, v.LLM("mistral"))
	assert.ErrorIs(t, v.LLM("gpt-4"), entity.ErrInvalidArgument)
}

func TestRetriever(t *testing.T) {
	v := testValidator()

	assert.NoError(t, v.Retriever("bge-m3"))
	assert.ErrorIs(t, v.Retriever("ada-002"), entity.ErrInvalidArgument)
}

func TestAlgorithmParams(t *testing.T) {
	v := testValidator()

	intp := func(i int) *int { return &i }
	floatp := func(f float64) *float64 { return &f }

	t.Run("similarity", func(t *testing.T) {
		params, err := v.AlgorithmParams(entity.AlgorithmSimilarity, entity.AlgorithmParamsRequest{K: intp(5)})
		require.NoError(t, err)
		assert.Equal(t, &entity.SimilarityParams{K: 5}, params)
	})

	t.Run("similarity missing k", func(t *testing.T) {
		_, err := v.AlgorithmParams(entity.AlgorithmSimilarity, entity.AlgorithmParamsRequest{})
		assert.ErrorIs(t, err, entity.ErrMissingField)
	})

	t.Run("threshold", func(t *testing.T) {
		params, err := v.AlgorithmParams(entity.AlgorithmScoreThreshold, entity.AlgorithmParamsRequest{
			K:              intp(10),
			ScoreThreshold: floatp(0.25),
		})
		require.NoError(t, err)
		assert.Equal(t, &entity.ThresholdParams{K: 10, ScoreThreshold: 0.25}, params)
	})

	t.Run("threshold missing score", func(t *testing.T) {
		_, err := v.AlgorithmParams(entity.AlgorithmScoreThreshold, entity.AlgorithmParamsRequest{K: intp(10)})
		assert.ErrorIs(t, err, entity.ErrMissingField)
	})

	t.Run("mmr", func(t *testing.T) {
		params, err := v.AlgorithmParams(entity.AlgorithmMMR, entity.AlgorithmParamsRequest{
			FetchK:     intp(20),
			LambdaMult: floatp(0.5),
		})
		require.NoError(t, err)
		assert.Equal(t, &entity.MMRParams{FetchK: 20, LambdaMult: 0.5}, params)
	})

	t.Run("mmr missing lambda", func(t *testing.T) {
		_, err := v.AlgorithmParams(entity.AlgorithmMMR, entity.AlgorithmParamsRequest{FetchK: intp(20)})
		assert.ErrorIs(t, err, entity.ErrMissingField)
	})

	t.Run("bounds enforced", func(t *testing.T) {
		_, err := v.AlgorithmParams(entity.AlgorithmSimilarity, entity.AlgorithmParamsRequest{K: intp(2)})
		assert.ErrorIs(t, err, entity.ErrInvalidArgument)

		_, err = v.AlgorithmParams(entity.AlgorithmScoreThreshold, entity.AlgorithmParamsRequest{
			K:              intp(10),
			ScoreThreshold: floatp(1.5),
		})
		assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		_, err := v.AlgorithmParams("knn", entity.AlgorithmParamsRequest{K: intp(5)})
		assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	})
}

func TestRequireString(t *testing.T) {
	value := "mistral"

	got, err := RequireString("llm", &value)
	require.NoError(t, err)
	assert.Equal(t, "mistral", got)

	_, err = RequireString("llm", nil)
	assert.ErrorIs(t, err, entity.ErrMissingField)
}
