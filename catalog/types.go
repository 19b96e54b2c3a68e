/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/Seednode/songquiz/games/quiz"
)

// spellingGroup accepts the catalog's compact answer forms:
//
//	[true, "Canonical", "Alt"]  required, with alternatives
//	["Canonical", "Alt"]        required
//	"Canonical"                 required, single spelling
type spellingGroup quiz.SpellingGroup

func (g *spellingGroup) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*g = spellingGroup{Required: true}
		g.add(s)

		return g.check()
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("answer must be a string or an array: %w", err)
	}

	*g = spellingGroup{Required: true}
	for i, item := range items {
		var required bool
		if i == 0 && json.Unmarshal(item, &required) == nil {
			g.Required = required
			continue
		}

		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("spelling %d: %w", i, err)
		}
		g.add(s)
	}

	return g.check()
}

func (g *spellingGroup) add(s string) {
	if s = strings.TrimSpace(s); s != "" {
		g.Spellings = append(g.Spellings, s)
	}
}

func (g *spellingGroup) check() error {
	if len(g.Spellings) == 0 {
		return errors.New("answer has no spellings")
	}
	return nil
}

// timestamp is a position in seconds, written as "m:ss", "h:mm:ss" or a
// plain number.
type timestamp float64

func (t *timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := parseTimestamp(s)
		if err != nil {
			return err
		}
		*t = timestamp(v)

		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid timestamp %s", data)
	}
	*t = timestamp(v)

	return nil
}

func parseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	total := 0.0
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i < len(parts)-1 && v != math.Trunc(v) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + v
	}

	return total, nil
}

func (t *timestamp) seconds() *float64 {
	if t == nil || math.IsNaN(float64(*t)) || *t < 0 {
		return nil
	}
	v := float64(*t)
	return &v
}

// label is free text that some catalogs write as a number.
type label string

func (l *label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = label(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	*l = label(data)

	return nil
}

// year tolerates numeric strings.
type year int

func (y *year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*y = year(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid year %s", data)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid year %q", s)
	}
	*y = year(n)

	return nil
}

type rawSong struct {
	Sources   []spellingGroup `json:"sources"`
	Title     *spellingGroup  `json:"title"`
	Year      *year           `json:"year"`
	AudioFile string          `json:"audioFile"`
	StartTime *timestamp      `json:"startTime"`
	EndTime   *timestamp      `json:"endTime"`
}

type rawCollection struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Difficulty        label    `json:"difficulty"`
	SourceName        string   `json:"sourceName"`
	GameStyle         int      `json:"gameStyle"`
	Guess             []string `json:"guess"`
	DisabledLifelines []string `json:"disabledLifelines"`
	Covers            []string `json:"covers"`
	Songs             []string `json:"songs"`
}

// style resolves the collection's game style. Older catalogs list the
// guessed components instead of a numeric style.
func (c *rawCollection) style() (quiz.GameStyle, bool) {
	if c.GameStyle != 0 {
		s := quiz.GameStyle(c.GameStyle)
		return s, s.Valid()
	}

	var sources, song bool
	for _, g := range c.Guess {
		switch strings.ToLower(strings.TrimSpace(g)) {
		case "sources", "source":
			sources = true
		case "song", "songs", "title":
			song = true
		}
	}

	switch {
	case sources && !song:
		return quiz.StyleSourceOnly, true
	case song && !sources:
		return quiz.StyleSongOnly, true
	}

	return quiz.StyleBoth, true
}

// Collection is a playable set of songs.
type Collection struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	Description       string              `json:"description,omitempty"`
	Difficulty        string              `json:"difficulty,omitempty"`
	SourceName        string              `json:"source_name"`
	Style             quiz.GameStyle      `json:"style"`
	DisabledLifelines []quiz.LifelineKind `json:"disabled_lifelines"`
	Covers            []string            `json:"covers"`
	SongCount         int                 `json:"song_count"`
	MinYear           int                 `json:"min_year,omitempty"`
	MaxYear           int                 `json:"max_year,omitempty"`

	Songs []quiz.Song `json:"-"`
}

// Entry is one row of the catalog index.
type Entry struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
	SongCount   int    `json:"song_count"`
}
