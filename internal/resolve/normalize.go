package resolve

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// clubPrefixes are stripped during normalization so "FC Hades" and "Hades"
// compare equal. Dotted forms first so "f.c. x" does not survive as "c. x".
var clubPrefixes = []string{
	"r.c. ", "rc ", "f.c. ", "fc ", "f.k. ", "fk ", "c.f. ", "cf ",
	"s.c. ", "sc ", "s.s.c. ", "ssc ", "a.c. ", "ac ", "a.s. ", "as ",
	"a.f.c. ", "afc ", "u.d. ", "ud ", "c.d. ", "cd ", "n.k. ", "nk ",
	"b.k. ", "bk ", "s.k. ", "sk ", "i.f. ", "if ",
}

// punctReplacer flattens the punctuation sources commonly embed in club
// names before whitespace collapsing.
var punctReplacer = strings.NewReplacer(".", " ", ",", " ", "-", " ", "'", "", "&", " ", "(", " ", ")", " ")

// Normalize lowercases a raw outcome label, strips club-prefix noise and
// punctuation, and collapses whitespace. All comparisons inside the resolver
// operate on normalized labels.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	for _, p := range clubPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	s = punctReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// abbreviations expand during the secondary similarity check. "st" is the
// classic offender: "St Etienne" vs "Saint-Etienne" vs "Penn State".
var abbreviations = map[string][]string{
	"st":  {"saint", "state"},
	"utd": {"united"},
}

// expandVariants returns the label plus every variant produced by expanding
// one abbreviated token at a time.
func expandVariants(norm string) []string {
	variants := []string{norm}
	fields := strings.Fields(norm)
	for i, f := range fields {
		expansions, ok := abbreviations[f]
		if !ok {
			continue
		}
		for _, exp := range expansions {
			v := make([]string, len(fields))
			copy(v, fields)
			v[i] = exp
			variants = append(variants, strings.Join(v, " "))
		}
	}
	return variants
}

// Similarity is the primary fuzzy score between two normalized labels on a
// 0-100 scale (normalized Levenshtein).
func Similarity(a, b string, lev *metrics.Levenshtein) float64 {
	return strutil.Similarity(a, b, lev) * 100
}

// AreSimilar is the secondary near-identity check on a 0-1 scale. It runs a
// bigram (Sorensen-Dice) comparison across abbreviation-expanded variants of
// both labels and keeps the best score, so "st etienne" still matches
// "saint etienne" when the edit ratio falls short.
func AreSimilar(a, b string, dice *metrics.SorensenDice, threshold float64) bool {
	if a == "" || b == "" {
		return false
	}
	for _, va := range expandVariants(a) {
		for _, vb := range expandVariants(b) {
			if strutil.Similarity(va, vb, dice) >= threshold {
				return true
			}
		}
	}
	return false
}
