/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seconds64(v float64) *float64 {
	return &v
}

func TestSelectClipBounds(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))

	for range 5000 {
		duration := DefaultEndPadding + 1 + rng.Float64()*600
		clipDuration := 1 + rng.Float64()*60

		song := Song{}
		if rng.IntN(2) == 0 {
			song.KnownStart = seconds64(rng.Float64() * duration)
		}
		if rng.IntN(2) == 0 {
			song.KnownEnd = seconds64(rng.Float64() * duration * 1.2)
		}

		clip := SelectClip(&song, duration, clipDuration, DefaultEndPadding, rng)

		require.GreaterOrEqual(t, clip.Start, 0.0)
		require.Less(t, clip.Start, clip.End)
		require.LessOrEqual(t, clip.End, duration)
		require.GreaterOrEqual(t, clip.Length(), 1.0-1e-9)
		if duration-DefaultEndPadding >= clip.Start+1 {
			require.LessOrEqual(t, clip.End, duration-DefaultEndPadding+1e-9)
		}
	}
}

func TestSelectClipIsDeterministic(t *testing.T) {
	t.Parallel()

	song := Song{}

	a := SelectClip(&song, 200, 15, DefaultEndPadding, rand.New(rand.NewPCG(3, 4)))
	b := SelectClip(&song, 200, 15, DefaultEndPadding, rand.New(rand.NewPCG(3, 4)))

	assert.Equal(t, a, b)
}

func TestSelectClipHonorsKnownRegion(t *testing.T) {
	t.Parallel()

	song := Song{KnownStart: seconds64(30), KnownEnd: seconds64(60)}
	rng := rand.New(rand.NewPCG(1, 1))

	for range 200 {
		clip := SelectClip(&song, 200, 10, DefaultEndPadding, rng)
		assert.GreaterOrEqual(t, clip.Start, 30.0)
		assert.LessOrEqual(t, clip.End, 60.0)
		assert.InDelta(t, 10, clip.Length(), 1e-9)
	}
}

func TestSelectClipShortRegionPlaysWhole(t *testing.T) {
	t.Parallel()

	song := Song{KnownStart: seconds64(30), KnownEnd: seconds64(35)}

	clip := SelectClip(&song, 200, 20, DefaultEndPadding, rand.New(rand.NewPCG(1, 1)))
	assert.Equal(t, Clip{Start: 30, End: 35}, clip)
}

func TestSelectClipIgnoresInvalidBounds(t *testing.T) {
	t.Parallel()

	song := Song{KnownStart: seconds64(math.NaN()), KnownEnd: seconds64(-4)}

	clip := SelectClip(&song, 100, 10, DefaultEndPadding, rand.New(rand.NewPCG(1, 1)))
	assert.GreaterOrEqual(t, clip.Start, 0.0)
	assert.LessOrEqual(t, clip.End, 95.0)

	song = Song{KnownStart: seconds64(50), KnownEnd: seconds64(20)}
	clip = SelectClip(&song, 100, 10, DefaultEndPadding, rand.New(rand.NewPCG(1, 1)))
	assert.GreaterOrEqual(t, clip.Start, 50.0)
}

func TestSelectClipRelaxesPaddingOnShortTracks(t *testing.T) {
	t.Parallel()

	clip := SelectClip(&Song{}, 4, 10, DefaultEndPadding, rand.New(rand.NewPCG(1, 1)))

	assert.Equal(t, 0.0, clip.Start)
	assert.GreaterOrEqual(t, clip.Length(), 1.0)
	assert.LessOrEqual(t, clip.End, 4.0)
}

func TestFallbackClip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Clip{Start: 0, End: 20}, fallbackClip(20))
	assert.Equal(t, Clip{Start: 0, End: 1}, fallbackClip(0))
}

func TestClipCovers(t *testing.T) {
	t.Parallel()

	assert.True(t, Clip{Start: 0, End: 180}.covers(180))
	assert.False(t, Clip{Start: 10, End: 180}.covers(180))
	assert.False(t, Clip{Start: 0, End: 10}.covers(0))
}
