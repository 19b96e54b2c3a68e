/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"context"
	"time"
)

// Loop is the single sequential event stream that owns a Game. Every Game
// method must be called from the loop, and every deferred callback the Game
// schedules is delivered back onto it.
type Loop interface {
	// Post queues fn to run on the loop. Safe to call from any goroutine.
	Post(fn func())
	// AfterFunc runs fn on the loop once d has elapsed, unless stop is
	// called first.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
	// Go runs fn off the loop. Results come back through Post.
	Go(fn func())
	Now() time.Time
}

// Audio is the playback collaborator. One clip plays at a time and only the
// round engine drives it.
type Audio interface {
	// Load asks the collaborator to fetch ref. It answers through
	// Game.AudioReady with the same token.
	Load(ref string, token uint64)
	// Play plays from start to end seconds; end <= 0 plays to the end.
	Play(start, end float64)
	Stop()
}

type DurationResolver interface {
	ResolveDuration(ctx context.Context, ref string) (float64, error)
}

// CoverResolver extracts embedded cover art as a data URL. An empty result
// with a nil error means the track carries no picture.
type CoverResolver interface {
	ResolveCover(ctx context.Context, ref string) (string, error)
}
