// Package textutil provides the text processing behind duplicate detection.
//
// The primary use cases are:
//   - Normalizing idea titles into stable topic keys
//   - Building keyword fingerprints and comparing them with Jaccard similarity
//   - Computing cosine similarity between term-frequency vectors
//
// All tokenization lowercases text, folds accents to their base letters,
// drops punctuation, and removes stop words and tokens shorter than 3
// characters, so "Invoice-chasing for Cafés" and "invoice chasing cafes"
// produce the same tokens.
package textutil
