package textutil

import (
	"sort"
	"strings"
)

// fingerprintSize is how many of the most frequent keywords a fingerprint keeps.
const fingerprintSize = 10

const fingerprintSeparator = "|"

// KeywordFingerprint builds the compact fingerprint stored with a
// reservation: the most frequent keywords of title and description (ties
// broken by first appearance), sorted and joined with "|".
func KeywordFingerprint(title, description string) string {
	tokens := Tokenize(title + " " + description)
	if len(tokens) == 0 {
		return ""
	}
	counts := make(map[string]int, len(tokens))
	first := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for i, token := range tokens {
		if _, seen := counts[token]; !seen {
			first[token] = i
			order = append(order, token)
		}
		counts[token]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return first[a] < first[b]
	})
	if len(order) > fingerprintSize {
		order = order[:fingerprintSize]
	}
	sort.Strings(order)
	return strings.Join(order, fingerprintSeparator)
}

// FingerprintSet splits a keyword fingerprint into its token set.
func FingerprintSet(fp string) map[string]struct{} {
	set := make(map[string]struct{})
	if fp == "" {
		return set
	}
	for _, token := range strings.Split(fp, fingerprintSeparator) {
		if token != "" {
			set[token] = struct{}{}
		}
	}
	return set
}

// Jaccard compares two keyword fingerprints as |A∩B| / |A∪B|. Either side
// being empty yields 0.
func Jaccard(a, b string) float64 {
	return JaccardSets(FingerprintSet(a), FingerprintSet(b))
}

// JaccardSets computes the Jaccard index of two token sets.
func JaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
