/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	articles = []string{"the", "a", "an"}

	romanNumeral = regexp.MustCompile(`^m{0,3}(cm|cd|d?c{0,3})(xc|xl|l?x{0,3})(ix|iv|v?i{0,3})$`)

	romanValues = map[byte]int{'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100, 'd': 500, 'm': 1000}
)

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func romanToInt(word string) (int, bool) {
	if word == "" || !romanNumeral.MatchString(word) {
		return 0, false
	}

	total, prev := 0, 0
	for i := len(word) - 1; i >= 0; i-- {
		v := romanValues[word[i]]
		if v < prev {
			total -= v
		} else {
			total += v
		}
		prev = v
	}
	return total, true
}

// Normalize folds a guess or spelling into the canonical form used for
// comparison: lowercase ASCII letters, digits and single spaces, with
// roman numerals as decimals and leading articles removed.
func Normalize(text string) string {
	s := strings.TrimSpace(strings.ToLower(text))
	s = stripDiacritics(s)
	s = strings.ReplaceAll(s, "&", " and ")

	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, s)

	words := strings.Fields(s)
	for i, w := range words {
		if n, ok := romanToInt(w); ok {
			words[i] = strconv.Itoa(n)
		}
	}

	// Leading articles repeat only in degenerate input ("the a ...");
	// stripping all of them keeps Normalize idempotent.
	for len(words) > 1 && isArticle(words[0]) {
		words = words[1:]
	}

	return strings.Join(words, " ")
}

func isArticle(w string) bool {
	for _, a := range articles {
		if w == a {
			return true
		}
	}
	return false
}

// Matches reports whether input, once normalized, equals or contains any
// normalized spelling. Containment lets "aladdin the movie" match "Aladdin",
// and equally lets any long guess that happens to embed a short spelling match.
func Matches(input string, spellings []string) bool {
	return matchNormalized(Normalize(input), spellings)
}

// MatchesTitle applies Matches to the song's title spellings. The input must
// already be normalized.
func MatchesTitle(song *Song, normalizedInput string) bool {
	return matchNormalized(normalizedInput, song.Title.Spellings)
}

func matchNormalized(input string, spellings []string) bool {
	if input == "" {
		return false
	}
	for _, s := range spellings {
		ns := Normalize(s)
		if ns == "" {
			continue
		}
		if input == ns || strings.Contains(input, ns) {
			return true
		}
	}
	return false
}
