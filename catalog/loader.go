/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/karlseguin/ccache/v3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Seednode/songquiz/games/quiz"
)

// ErrCollectionUnavailable means a collection cannot be played at all.
var ErrCollectionUnavailable = errors.New("could not load this collection")

const (
	indexFile = "collections.json"
	songsFile = "audio/songs.json"

	DefaultTTL = 10 * time.Minute

	// loadTimeout bounds a shared load once its first caller is gone.
	loadTimeout = 2 * time.Minute
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

func collectionFile(id string) string {
	return "collections/" + id + "/data.json"
}

// Loader resolves collections against the shared song dictionary and keeps
// recently used ones in memory.
type Loader struct {
	source Source
	log    zerolog.Logger
	ttl    time.Duration

	cache *ccache.Cache[*Collection]
	group singleflight.Group
}

func NewLoader(source Source, logger zerolog.Logger, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Loader{
		source: source,
		log:    logger,
		ttl:    ttl,
		cache: ccache.New(
			ccache.Configure[*Collection]().
				MaxSize(100).
				GetsPerPromote(3).
				ItemsToPrune(1),
		),
	}
}

func (l *Loader) Source() Source {
	return l.source
}

// Load returns the collection with the given id. Every failure that leaves
// the collection unplayable wraps ErrCollectionUnavailable.
func (l *Loader) Load(ctx context.Context, id string) (*Collection, error) {
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: invalid collection id %q", ErrCollectionUnavailable, id)
	}

	if item := l.cache.Get(id); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	ch := l.group.DoChan(id, func() (any, error) {
		if item := l.cache.Get(id); item != nil && !item.Expired() {
			return item.Value(), nil
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		c, err := l.load(ctx, id)
		if err != nil {
			return nil, err
		}
		l.cache.Set(id, c, l.ttl)

		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Collection), nil
	}
}

func (l *Loader) load(ctx context.Context, id string) (*Collection, error) {
	var (
		raw   rawCollection
		songs map[string]json.RawMessage
	)

	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		data, err := readAll(ctx, l.source, collectionFile(id))
		if err != nil {
			return fmt.Errorf("failed to fetch collection: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode collection: %w", err)
		}
		return nil
	})

	wg.Go(func() error {
		data, err := readAll(ctx, l.source, songsFile)
		if err != nil {
			return fmt.Errorf("failed to fetch song dictionary: %w", err)
		}
		if err := json.Unmarshal(data, &songs); err != nil {
			return fmt.Errorf("failed to decode song dictionary: %w", err)
		}
		return nil
	})

	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCollectionUnavailable, id, err)
	}

	c, err := l.resolve(id, &raw, songs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCollectionUnavailable, id, err)
	}

	l.log.Info().
		Str("collection", id).
		Int("songs", c.SongCount).
		Str("source", l.source.String()).
		Msg("Loaded collection")

	return c, nil
}

func (l *Loader) resolve(id string, raw *rawCollection, dict map[string]json.RawMessage) (*Collection, error) {
	style, ok := raw.style()
	if !ok {
		l.log.Warn().Str("collection", id).Int("style", raw.GameStyle).Msg("Unknown game style, guessing both")
		style = quiz.StyleBoth
	}

	disabled := lo.FilterMap(raw.DisabledLifelines, func(name string, _ int) (quiz.LifelineKind, bool) {
		kind, ok := quiz.ParseLifelineKind(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			l.log.Warn().Str("collection", id).Str("lifeline", name).Msg("Ignoring unknown lifeline")
		}
		return kind, ok
	})

	songs := lo.FilterMap(lo.Uniq(raw.Songs), func(key string, _ int) (quiz.Song, bool) {
		data, ok := dict[key]
		if !ok {
			l.log.Warn().Str("collection", id).Str("song", key).Msg("Song not found")
			return quiz.Song{}, false
		}

		song, err := decodeSong(key, data)
		if err != nil {
			l.log.Warn().Err(err).Str("collection", id).Str("song", key).Msg("Skipping malformed song")
			return quiz.Song{}, false
		}

		return song, true
	})

	if len(songs) == 0 {
		return nil, errors.New("no playable songs")
	}

	covers := lo.FilterMap(raw.Covers, func(cover string, _ int) (string, bool) {
		cover = strings.TrimPrefix(strings.TrimSpace(cover), "./")
		if cover == "" {
			return "", false
		}
		return l.source.URL("collections/" + id + "/" + cover), true
	})

	years := lo.FilterMap(songs, func(s quiz.Song, _ int) (int, bool) {
		if s.Year == nil {
			return 0, false
		}
		return *s.Year, true
	})

	sourceName := raw.SourceName
	if sourceName == "" {
		sourceName = "Source"
	}

	title := raw.Title
	if title == "" {
		title = id
	}

	return &Collection{
		ID:                id,
		Title:             title,
		Description:       raw.Description,
		Difficulty:        string(raw.Difficulty),
		SourceName:        sourceName,
		Style:             style,
		DisabledLifelines: disabled,
		Covers:            covers,
		SongCount:         len(songs),
		MinYear:           lo.Min(years),
		MaxYear:           lo.Max(years),
		Songs:             songs,
	}, nil
}

func decodeSong(key string, data json.RawMessage) (quiz.Song, error) {
	var raw rawSong
	if err := json.Unmarshal(data, &raw); err != nil {
		return quiz.Song{}, err
	}

	if strings.TrimSpace(raw.AudioFile) == "" {
		return quiz.Song{}, errors.New("missing audio file")
	}
	if raw.Title == nil {
		return quiz.Song{}, errors.New("missing title")
	}

	song := quiz.Song{
		ID:         key,
		Title:      quiz.SpellingGroup(*raw.Title),
		AudioRef:   "audio/" + strings.TrimPrefix(strings.TrimSpace(raw.AudioFile), "/"),
		KnownStart: raw.StartTime.seconds(),
		KnownEnd:   raw.EndTime.seconds(),
		Sources: lo.Map(raw.Sources, func(g spellingGroup, _ int) quiz.SpellingGroup {
			return quiz.SpellingGroup(g)
		}),
	}
	if raw.Year != nil {
		y := int(*raw.Year)
		song.Year = &y
	}

	return song, nil
}

// Index lists the collections advertised by the catalog root. Catalogs
// without an index yield an empty list.
func (l *Loader) Index(ctx context.Context) ([]Entry, error) {
	data, err := readAll(ctx, l.source, indexFile)
	switch {
	case errors.Is(err, ErrNotFound):
		return []Entry{}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to fetch collection index: %w", err)
	}

	if !gjson.ValidBytes(data) {
		return nil, errors.New("collection index is not valid JSON")
	}

	list := gjson.GetBytes(data, "collections")
	if !list.Exists() {
		list = gjson.ParseBytes(data)
	}

	entries := []Entry{}
	list.ForEach(func(_, v gjson.Result) bool {
		id := v.Get("id").String()
		if !validID.MatchString(id) {
			return true
		}

		entries = append(entries, Entry{
			ID:          id,
			Title:       lo.CoalesceOrEmpty(v.Get("title").String(), id),
			Description: v.Get("description").String(),
			Difficulty:  v.Get("difficulty").String(),
			SongCount:   int(v.Get("songs.#").Int()),
		})

		return true
	})

	return entries, nil
}
