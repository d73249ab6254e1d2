package embedding

import (
	"sort"
	"strings"
	"unicode"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "shall": true,
	"to": true, "of": true, "in": true, "for": true, "on": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "through": true, "during": true,
	"before": true, "after": true, "above": true, "below": true, "and": true, "but": true,
	"or": true, "nor": true, "not": true, "so": true, "yet": true, "both": true,
	"either": true, "neither": true, "each": true, "every": true, "all": true, "any": true,
	"few": true, "more": true, "most": true, "other": true, "some": true, "such": true,
	"no": true, "only": true, "own": true, "same": true, "than": true, "too": true,
	"very": true, "just": true, "how": true, "what": true, "which": true, "who": true,
	"whom": true, "this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "about": true, "up": true, "out": true, "also": true, "like": true,
	"we": true, "our": true, "you": true, "your": true, "they": true, "their": true,
	"he": true, "she": true, "his": true, "her": true, "them": true, "i": true,
	"said": true, "says": true, "new": true, "one": true, "two": true, "there": true,
}

// Tokenize lowercases text, splits on anything that is not a letter or
// digit, and drops stop words and single-character tokens.
func Tokenize(text string) []string {
	var (
		tokens  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() == 0 {
			return
		}
		tok := current.String()
		current.Reset()
		if len([]rune(tok)) >= 2 && !stopWords[tok] {
			tokens = append(tokens, tok)
		}
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// Keywords returns up to n most frequent non-stop-word terms in text.
// Ties are broken alphabetically so the result is deterministic.
func Keywords(text string, n int) []string {
	counts := make(map[string]int)
	for _, tok := range Tokenize(text) {
		if len(tok) < 3 {
			continue
		}
		counts[tok]++
	}

	terms := make([]string, 0, len(counts))
	for t := range counts {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "positive": true, "success": true,
	"successful": true, "win": true, "wins": true, "growth": true, "improve": true,
	"improved": true, "breakthrough": true, "benefit": true, "gain": true, "gains": true,
	"strong": true, "rise": true, "record": true, "innovative": true, "hope": true,
	"love": true, "happy": true, "best": true, "boost": true, "celebrate": true,
	"progress": true, "recovery": true, "safe": true, "thrive": true, "launch": true,
}

var negativeWords = map[string]bool{
	"bad": true, "poor": true, "fail": true, "failure": true, "loss": true,
	"losses": true, "decline": true, "crisis": true, "risk": true, "threat": true,
	"crash": true, "drop": true, "weak": true, "war": true, "death": true,
	"attack": true, "fraud": true, "concern": true, "warning": true, "worst": true,
	"fall": true, "falls": true, "scandal": true, "lawsuit": true, "outage": true,
	"breach": true, "layoffs": true, "recession": true, "killed": true, "collapse": true,
}

// Sentiment scores text in [-1, 1] from a small polarity lexicon. Text with
// no polar words scores 0.
func Sentiment(text string) float64 {
	var pos, neg int
	for _, tok := range Tokenize(text) {
		switch {
		case positiveWords[tok]:
			pos++
		case negativeWords[tok]:
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}
