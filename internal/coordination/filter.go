package coordination

import (
	"context"
	"fmt"
	"strings"

	"verdandi/internal/config"
	"verdandi/internal/store"
	"verdandi/internal/textutil"
)

// Pass names which screening pass flagged a duplicate.
type Pass string

const (
	PassTopicKey    Pass = "topic_key"
	PassFingerprint Pass = "fingerprint"
	PassSemantic    Pass = "semantic"
)

// Candidate is an idea being screened before reservation.
type Candidate struct {
	Title       string
	Description string
	TopicKey    string
	Fingerprint string
}

// NewCandidate derives the topic key and keyword fingerprint for an idea.
func NewCandidate(title, description string) Candidate {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	return Candidate{
		Title:       title,
		Description: description,
		TopicKey:    textutil.NormalizeTopicKey(title),
		Fingerprint: textutil.KeywordFingerprint(title, description),
	}
}

// Text is the free text compared by the semantic pass and stored as the
// reservation description.
func (c Candidate) Text() string {
	if c.Description == "" {
		return c.Title
	}
	return c.Title + ": " + c.Description
}

// Verdict is the outcome of screening one candidate.
type Verdict struct {
	Duplicate bool
	Pass      Pass
	Score     float64
	Match     *store.Reservation
}

// Filter runs the two-pass duplicate check.
type Filter struct {
	fingerprintThreshold float64
	semanticThreshold    float64
	similarity           Similarity
}

// NewFilter builds a filter from the coordination config. A nil similarity
// disables the semantic pass.
func NewFilter(cfg config.Coordination, similarity Similarity) *Filter {
	if similarity == nil {
		similarity = NoSimilarity{}
	}
	return &Filter{
		fingerprintThreshold: cfg.FingerprintThreshold,
		semanticThreshold:    cfg.SemanticThreshold,
		similarity:           similarity,
	}
}

// Check screens a candidate against existing reservations. A candidate is a
// duplicate when its topic key is already taken, when its keyword Jaccard
// similarity to any existing topic exceeds the fingerprint threshold, or when
// the semantic score exceeds the semantic threshold. Scores equal to a
// threshold pass.
func (f *Filter) Check(ctx context.Context, cand Candidate, existing []store.Reservation) (Verdict, error) {
	if len(existing) == 0 {
		return Verdict{}, nil
	}

	for i := range existing {
		if cand.TopicKey != "" && existing[i].TopicKey == cand.TopicKey {
			return Verdict{Duplicate: true, Pass: PassTopicKey, Score: 1, Match: &existing[i]}, nil
		}
	}

	best, bestIdx := 0.0, -1
	for i := range existing {
		fp := existing[i].Fingerprint
		if fp == "" {
			fp = textutil.KeywordFingerprint(existing[i].TopicKey, existing[i].Description)
		}
		if score := textutil.Jaccard(cand.Fingerprint, fp); score > best {
			best, bestIdx = score, i
		}
	}
	if bestIdx >= 0 && best > f.fingerprintThreshold {
		return Verdict{Duplicate: true, Pass: PassFingerprint, Score: best, Match: &existing[bestIdx]}, nil
	}

	texts := make([]string, len(existing))
	for i := range existing {
		texts[i] = existing[i].Description
		if texts[i] == "" {
			texts[i] = existing[i].TopicKey
		}
	}
	scores, err := f.similarity.Scores(ctx, cand.Text(), texts)
	if err != nil {
		return Verdict{}, fmt.Errorf("semantic similarity: %w", err)
	}
	if len(scores) != len(existing) {
		return Verdict{}, fmt.Errorf("semantic similarity: got %d scores for %d topics", len(scores), len(existing))
	}
	best, bestIdx = 0.0, -1
	for i, score := range scores {
		if score > best {
			best, bestIdx = score, i
		}
	}
	if bestIdx >= 0 && best > f.semanticThreshold {
		return Verdict{Duplicate: true, Pass: PassSemantic, Score: best, Match: &existing[bestIdx]}, nil
	}
	return Verdict{Score: best}, nil
}
