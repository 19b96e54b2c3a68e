/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/karlseguin/ccache/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownDuration = errors.New("unknown duration")

const (
	DefaultTTL = time.Hour

	// maxAudioBytes caps how much of a track is buffered for probing.
	maxAudioBytes = 64 << 20

	// probeTimeout bounds a shared probe once its first caller is gone.
	probeTimeout = time.Minute
)

// Opener is the part of a catalog source the prober reads from.
type Opener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Info is what the prober learned about one track.
type Info struct {
	Duration float64
	// Cover is a data URL, empty when the track has no picture.
	Cover string
}

// Prober resolves track durations and cover art server-side. Results are
// cached per audio reference and concurrent lookups share one fetch.
type Prober struct {
	source Opener
	log    zerolog.Logger
	ttl    time.Duration

	// Tracks longer than maxBytes have no known duration.
	maxBytes int64

	cache *ccache.Cache[*Info]
	group singleflight.Group
}

func NewProber(source Opener, logger zerolog.Logger, ttl time.Duration) *Prober {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Prober{
		source:   source,
		log:      logger,
		ttl:      ttl,
		maxBytes: maxAudioBytes,
		cache: ccache.New(
			ccache.Configure[*Info]().
				MaxSize(500).
				GetsPerPromote(3).
				ItemsToPrune(10),
		),
	}
}

func (p *Prober) Probe(ctx context.Context, ref string) (*Info, error) {
	if item := p.cache.Get(ref); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	ch := p.group.DoChan(ref, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()

		info, err := p.probe(ctx, ref)
		if err != nil {
			return nil, err
		}
		p.cache.Set(ref, info, p.ttl)

		return info, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Info), nil
	}
}

func (p *Prober) probe(ctx context.Context, ref string) (*Info, error) {
	start := time.Now()

	rc, err := p.source.Open(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", ref, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}

	info := &Info{}

	if int64(len(data)) > p.maxBytes {
		data = data[:p.maxBytes]

		p.log.Warn().Str("ref", ref).Int64("limit", p.maxBytes).Msg("Track too large to measure")
	} else {
		info.Duration, err = Duration(ref, data)
		if err != nil {
			p.log.Debug().Err(err).Str("ref", ref).Msg("Could not decode duration")
		}
	}

	info.Cover, err = Cover(data)
	if err != nil {
		p.log.Debug().Err(err).Str("ref", ref).Msg("Could not read tags")
	}

	p.log.Debug().
		Str("ref", ref).
		Int("bytes", len(data)).
		Float64("duration", info.Duration).
		Bool("cover", info.Cover != "").
		Dur("took", time.Since(start)).
		Msg("Probed track")

	return info, nil
}

func (p *Prober) ResolveDuration(ctx context.Context, ref string) (float64, error) {
	info, err := p.Probe(ctx, ref)
	if err != nil {
		return 0, err
	}
	if info.Duration <= 0 {
		return 0, fmt.Errorf("%s: %w", ref, ErrUnknownDuration)
	}

	return info.Duration, nil
}

func (p *Prober) ResolveCover(ctx context.Context, ref string) (string, error) {
	info, err := p.Probe(ctx, ref)
	if err != nil {
		return "", err
	}

	return info.Cover, nil
}

type readSeekCloser struct {
	*bytes.Reader
}

func (readSeekCloser) Close() error {
	return nil
}

type decoder func(io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decoder{
	".mp3": mp3.Decode,
	".wav": func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return wav.Decode(rc)
	},
	".flac": func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		return flac.Decode(rc)
	},
	".ogg": vorbis.Decode,
}

// Duration decodes the length of data in seconds, picking a decoder from
// the extension of name and falling back to the others.
func Duration(name string, data []byte) (float64, error) {
	ext := strings.ToLower(path.Ext(name))

	order := []string{".mp3", ".wav", ".flac", ".ogg"}
	if _, ok := decoders[ext]; ok {
		order = append([]string{ext}, order...)
	}

	var errs []error
	tried := map[string]bool{}
	for _, e := range order {
		if tried[e] {
			continue
		}
		tried[e] = true

		d, err := decodeDuration(decoders[e], data)
		if err == nil {
			return d, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", e, err))
	}

	return 0, errors.Join(errs...)
}

func decodeDuration(decode decoder, data []byte) (d float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panicked: %v", r)
		}
	}()

	stream, format, err := decode(readSeekCloser{bytes.NewReader(data)})
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	n := stream.Len()
	if n <= 0 || format.SampleRate <= 0 {
		return 0, ErrUnknownDuration
	}

	return format.SampleRate.D(n).Seconds(), nil
}

// Cover returns the embedded picture of data as a data URL.
func Cover(data []byte) (string, error) {
	m, err := tag.ReadFrom(bytes.NewReader(data))
	switch {
	case errors.Is(err, tag.ErrNoTagsFound):
		return "", nil
	case err != nil:
		return "", err
	}

	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return "", nil
	}

	mime := pic.MIMEType
	if mime == "" || !strings.Contains(mime, "/") {
		mime = "image/jpeg"
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(pic.Data), nil
}
