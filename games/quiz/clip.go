/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"math"
	"math/rand/v2"
)

// DefaultEndPadding keeps clips away from the last seconds of a track,
// which are often silence or a fade-out.
const DefaultEndPadding = 5.0

// Clip is a playable window of a song, in seconds.
type Clip struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (c Clip) Length() float64 {
	return c.End - c.Start
}

// covers reports whether the clip already spans the whole track.
func (c Clip) covers(duration float64) bool {
	const epsilon = 0.01
	return duration > 0 && c.Start <= epsilon && c.End >= duration-epsilon
}

func validBound(v *float64, duration float64) bool {
	return v != nil && !math.IsNaN(*v) && *v >= 0 && *v <= duration
}

// SelectClip picks a random window of clipDuration seconds inside the song's
// known highlight region, or the whole track when none is set.
func SelectClip(song *Song, duration, clipDuration, endPadding float64, rng *rand.Rand) Clip {
	minStart := 0.0
	if validBound(song.KnownStart, duration) {
		minStart = *song.KnownStart
	}

	maxEnd := duration
	if validBound(song.KnownEnd, duration) && *song.KnownEnd > minStart {
		maxEnd = *song.KnownEnd
	}
	maxEnd = math.Max(math.Min(maxEnd, duration-endPadding), minStart+1)

	maxClipStart := math.Max(maxEnd-clipDuration, minStart)

	start := minStart
	if maxClipStart > minStart {
		start = minStart + rng.Float64()*(maxClipStart-minStart)
	}
	end := math.Min(start+clipDuration, maxEnd)

	start = math.Max(0, math.Min(start, math.Max(0, duration-1)))

	upper := duration - endPadding
	if upper < start+1 {
		upper = math.Max(duration, start+1)
	}
	end = math.Min(math.Max(end, start+1), upper)

	return Clip{Start: start, End: end}
}

// fallbackClip is used when the track duration could not be resolved.
func fallbackClip(clipDuration float64) Clip {
	return Clip{Start: 0, End: math.Max(1, clipDuration)}
}
