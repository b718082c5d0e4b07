package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxTopicKeyLength bounds normalized topic keys.
const MaxTopicKeyLength = 100

var (
	topicKeyStrip   = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	keywordStrip    = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespaceRunes = regexp.MustCompile(`\s+`)
)

// stopWords are dropped before fingerprinting; they carry no topic signal in
// product idea descriptions.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "for": {}, "to": {}, "of": {}, "and": {},
	"in": {}, "with": {}, "that": {}, "is": {}, "it": {}, "on": {}, "by": {},
	"as": {}, "at": {}, "from": {}, "or": {}, "be": {}, "this": {},
	"tool": {}, "app": {}, "platform": {}, "software": {}, "saas": {},
	"product": {}, "service": {}, "use": {}, "using": {}, "can": {},
	"will": {}, "way": {}, "make": {}, "help": {}, "helps": {},
}

// FoldAccents lowercases text and strips combining marks from Latin letters
// (é -> e). Marks on other scripts are kept.
func FoldAccents(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isLatinMark)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	return strings.ToLower(folded)
}

// isLatinMark matches the combining diacritical marks block (U+0300-U+036F).
func isLatinMark(r rune) bool {
	return r >= 0x0300 && r <= 0x036f
}

// NormalizeTopicKey turns a title into a stable reservation key: lowercase,
// accents folded, only letters (any script), digits and hyphens kept,
// whitespace runs collapsed to a single hyphen, at most MaxTopicKeyLength
// characters. A title without letters or digits yields "".
func NormalizeTopicKey(title string) string {
	key := strings.TrimSpace(FoldAccents(title))
	key = topicKeyStrip.ReplaceAllString(key, "")
	key = whitespaceRunes.ReplaceAllString(strings.TrimSpace(key), "-")
	if utf8.RuneCountInString(key) > MaxTopicKeyLength {
		key = string([]rune(key)[:MaxTopicKeyLength])
	}
	return key
}

// Tokenize splits text into normalized keyword tokens in their original
// order. Punctuation is removed rather than split on, so "e-mail" becomes
// "email".
func Tokenize(text string) []string {
	cleaned := keywordStrip.ReplaceAllString(FoldAccents(text), "")
	raw := strings.Fields(cleaned)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if utf8.RuneCountInString(token) < minTokenRunes(token) {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// minTokenRunes is 3 for alphabetic scripts and 2 for ideographic ones, where
// a two-character word already names a topic.
func minTokenRunes(token string) int {
	for _, r := range token {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return 2
		}
	}
	return 3
}
