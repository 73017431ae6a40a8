package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/models"
)

// MatchKeywords returns the keywords that match text under mode, in keyword order.
// Comparison is Unicode case-folded.
func MatchKeywords(mode models.MatchMode, keywords []string, text string) []string {
	if len(keywords) == 0 || text == "" {
		return nil
	}

	// a Caser keeps state, so each call gets its own
	fold := cases.Fold()
	foldedText := fold.String(text)

	var textWords []string
	if mode == models.MatchWord || mode == models.MatchExact {
		textWords = words(foldedText)
	}

	var matched []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		foldedKw := fold.String(kw)

		var ok bool
		switch mode {
		case models.MatchWord:
			ok = containsSequence(textWords, words(foldedKw))
		case models.MatchExact:
			ok = strings.Join(textWords, " ") == strings.Join(words(foldedKw), " ")
		default:
			ok = strings.Contains(foldedText, foldedKw)
		}
		if ok {
			matched = append(matched, kw)
		}
	}
	return matched
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func containsSequence(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
