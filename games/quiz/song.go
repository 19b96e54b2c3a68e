/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import "fmt"

// GameStyle selects which answer components a collection asks for.
type GameStyle int

const (
	StyleBoth GameStyle = iota + 1
	StyleSourceOnly
	StyleSongOnly
)

func (s GameStyle) Valid() bool {
	switch s {
	case StyleBoth, StyleSourceOnly, StyleSongOnly:
		return true
	}
	return false
}

func (s GameStyle) String() string {
	switch s {
	case StyleBoth:
		return "both"
	case StyleSourceOnly:
		return "source"
	case StyleSongOnly:
		return "song"
	}
	return fmt.Sprintf("GameStyle(%d)", int(s))
}

func (s GameStyle) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// GuessesSources reports whether sources are evaluated and scored.
func (s GameStyle) GuessesSources() bool {
	switch s {
	case StyleBoth, StyleSourceOnly:
		return true
	case StyleSongOnly:
		return false
	}
	return false
}

// GuessesTitle reports whether the song title is evaluated and scored.
func (s GameStyle) GuessesTitle() bool {
	switch s {
	case StyleBoth, StyleSongOnly:
		return true
	case StyleSourceOnly:
		return false
	}
	return false
}

// SpellingGroup is one answer with every accepted spelling. The first
// spelling is the canonical display form.
type SpellingGroup struct {
	Required  bool     `json:"required"`
	Spellings []string `json:"spellings"`
}

func (g SpellingGroup) Display() string {
	if len(g.Spellings) == 0 {
		return ""
	}
	return g.Spellings[0]
}

// Song is an immutable catalog entry.
type Song struct {
	ID         string          `json:"id"`
	Sources    []SpellingGroup `json:"sources"`
	Title      SpellingGroup   `json:"title"`
	Year       *int            `json:"year,omitempty"`
	AudioRef   string          `json:"audio_ref"`
	KnownStart *float64        `json:"known_start,omitempty"`
	KnownEnd   *float64        `json:"known_end,omitempty"`
}
