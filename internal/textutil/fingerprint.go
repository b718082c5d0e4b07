package textutil

import "math"

// TermVector maps each keyword of a text to its weight, initially the
// number of occurrences.
type TermVector map[string]float64

// Terms counts the keywords of text. Text without keywords yields an empty
// vector.
func Terms(text string) TermVector {
	v := make(TermVector)
	for _, token := range Tokenize(text) {
		v[token]++
	}
	return v
}

// Weighted scales every term by its idf weight. Terms missing from idf keep
// their weight.
func (v TermVector) Weighted(idf map[string]float64) TermVector {
	if len(idf) == 0 {
		return v
	}
	out := make(TermVector, len(v))
	for term, w := range v {
		if f, ok := idf[term]; ok {
			w *= f
		}
		out[term] = w
	}
	return out
}

func (v TermVector) norm() float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// InverseDocumentFrequency returns log((N+1)/(1+df)) + 1 per term across
// docs, so a term present everywhere still keeps a small positive weight.
func InverseDocumentFrequency(docs ...TermVector) map[string]float64 {
	if len(docs) == 0 {
		return nil
	}
	df := make(map[string]int)
	for _, doc := range docs {
		for term := range doc {
			df[term]++
		}
	}
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log((n+1)/(1+float64(count))) + 1
	}
	return idf
}

// Cosine returns the cosine of the angle between a and b, 0 when either is
// empty.
func Cosine(a, b TermVector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a {
		dot += w * b[term]
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm() * b.norm())
}
