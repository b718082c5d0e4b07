package coordination

import (
	"context"

	"verdandi/internal/config"
	"verdandi/internal/textutil"
)

// Similarity scores a candidate text against existing texts. Scores are in
// [0, 1] and returned in the order of existing. Implementations may call an
// embedding model; none is bundled.
type Similarity interface {
	Scores(ctx context.Context, candidate string, existing []string) ([]float64, error)
}

// NoSimilarity disables the semantic pass: every score is zero.
type NoSimilarity struct{}

// Scores implements Similarity.
func (NoSimilarity) Scores(_ context.Context, _ string, existing []string) ([]float64, error) {
	return make([]float64, len(existing)), nil
}

// LexicalCosine approximates semantic similarity with TF-IDF weighted cosine
// over the candidate and the existing texts.
type LexicalCosine struct{}

// Scores implements Similarity.
func (LexicalCosine) Scores(_ context.Context, candidate string, existing []string) ([]float64, error) {
	docs := make([]textutil.TermVector, 0, len(existing)+1)
	docs = append(docs, textutil.Terms(candidate))
	for _, text := range existing {
		docs = append(docs, textutil.Terms(text))
	}
	idf := textutil.InverseDocumentFrequency(docs...)
	cand := docs[0].Weighted(idf)

	scores := make([]float64, len(existing))
	for i, doc := range docs[1:] {
		scores[i] = textutil.Cosine(cand, doc.Weighted(idf))
	}
	return scores, nil
}

// SimilarityFromConfig returns the strategy named by coordination.semantic.
func SimilarityFromConfig(cfg config.Coordination) Similarity {
	if cfg.Semantic == config.SemanticCosine {
		return LexicalCosine{}
	}
	return NoSimilarity{}
}
