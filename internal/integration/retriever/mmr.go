package retriever

import (
	"context"
	"fmt"
	"math"

	"github.com/secassist/ai-backend/internal/entity"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
)

// mmrSelectCount is how many documents an MMR search ultimately returns,
// picked from the wider candidate pool.
const mmrSelectCount = 4

// rerankMMR re-ranks similarity candidates with maximal marginal relevance.
// lambda weighs relevance to the query against diversity among the picks:
// 1 is pure relevance, 0 is pure diversity.
func rerankMMR(ctx context.Context, embedder embeddings.Embedder, query string,
	candidates []schema.Document, lambda float64) ([]schema.Document, error) {

	if len(candidates) <= mmrSelectCount {
		return candidates, nil
	}

	queryVec, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", entity.ErrBackendUnavailable, err)
	}

	texts := make([]string, len(candidates))
	for i, doc := range candidates {
		texts[i] = doc.PageContent
	}

	docVecs, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed candidates: %v", entity.ErrBackendUnavailable, err)
	}

	picked := maximalMarginalRelevance(queryVec, docVecs, lambda, mmrSelectCount)

	result := make([]schema.Document, 0, len(picked))
	for _, idx := range picked {
		result = append(result, candidates[idx])
	}
	return result, nil
}

// maximalMarginalRelevance greedily selects up to count vector indices. Each
// round picks the candidate with the best blend of query relevance and
// distance from everything already selected.
func maximalMarginalRelevance(query []float32, docs [][]float32, lambda float64, count int) []int {
	if count > len(docs) {
		count = len(docs)
	}

	relevance := make([]float64, len(docs))
	for i, vec := range docs {
		relevance[i] = cosineSimilarity(query, vec)
	}

	selected := make([]int, 0, count)
	remaining := make(map[int]bool, len(docs))
	for i := range docs {
		remaining[i] = true
	}

	for len(selected) < count {
		bestIdx := -1
		bestScore := math.Inf(-1)

		for idx := range remaining {
			redundancy := 0.0
			for _, sel := range selected {
				if sim := cosineSimilarity(docs[idx], docs[sel]); sim > redundancy {
					redundancy = sim
				}
			}

			score := lambda*relevance[idx] - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}

		selected = append(selected, bestIdx)
		delete(remaining, bestIdx)
	}

	return selected
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
