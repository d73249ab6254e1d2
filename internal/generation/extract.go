package generation

import (
	"strings"
	"unicode"
)

// UnableToGenerate is returned by the extractive fallback when there is no
// source text to draw from.
const UnableToGenerate = "We're unable to generate a response right now. Please try again later."

const extractSentences = 3

// Extract builds a fallback answer from source excerpts by taking their
// first few sentences. Sentences end at '.', '!' or '?'; trailing text
// without terminal punctuation counts as a sentence too.
func Extract(excerpts []string) string {
	var parts []string
	for _, e := range excerpts {
		if e = strings.TrimSpace(e); e != "" {
			parts = append(parts, e)
		}
	}
	if len(parts) == 0 {
		return UnableToGenerate
	}

	sentences := splitSentences(strings.Join(parts, " "), extractSentences)
	if len(sentences) == 0 {
		return UnableToGenerate
	}
	return strings.Join(sentences, " ")
}

// splitSentences returns up to n non-empty sentences from text.
func splitSentences(text string, n int) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i, r := range runes {
		if len(out) == n {
			return out
		}
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Keep runs like "?!" or "..." in one sentence.
		if i+1 < len(runes) && strings.ContainsRune(".!?", runes[i+1]) {
			continue
		}
		if s := normalizeSpace(string(runes[start : i+1])); hasLetters(s) {
			out = append(out, s)
		}
		start = i + 1
	}
	if len(out) < n && start < len(runes) {
		if s := normalizeSpace(string(runes[start:])); hasLetters(s) {
			out = append(out, s)
		}
	}
	return out
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasLetters(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
