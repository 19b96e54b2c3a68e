/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"math"
	"math/rand/v2"
	"unicode"
)

const (
	hintFraction   = 0.3
	minHintLetters = 2
)

// letterPositions returns the rune indices of text that a hint may reveal.
// Spaces and punctuation are never targets.
func letterPositions(text string) []int {
	var out []int
	for i, r := range []rune(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, i)
		}
	}
	return out
}

// hintCount returns how many of unrevealed letters a single hint reveals.
// At least one letter always stays hidden.
func hintCount(unrevealed int) int {
	n := max(minHintLetters, int(math.Floor(float64(unrevealed)*hintFraction)))
	n = min(n, unrevealed)
	if n == unrevealed {
		n--
	}
	return max(n, 0)
}

func unrevealedLetters(text string, revealed map[int]bool) []int {
	var out []int
	for _, pos := range letterPositions(text) {
		if !revealed[pos] {
			out = append(out, pos)
		}
	}
	return out
}

// hintable reports whether a hint would reveal anything in text.
func hintable(text string, revealed map[int]bool) bool {
	return hintCount(len(unrevealedLetters(text, revealed))) > 0
}

// revealLetters marks a random sample of text's unrevealed letters as
// revealed and returns how many were added.
func revealLetters(text string, revealed map[int]bool, rng *rand.Rand) int {
	candidates := unrevealedLetters(text, revealed)
	n := hintCount(len(candidates))

	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	for _, pos := range candidates[:n] {
		revealed[pos] = true
	}

	return n
}

// maskText replaces every unrevealed letter of text with an underscore.
func maskText(text string, revealed map[int]bool) string {
	rs := []rune(text)
	for i, r := range rs {
		if (unicode.IsLetter(r) || unicode.IsDigit(r)) && !revealed[i] {
			rs[i] = '_'
		}
	}
	return string(rs)
}
