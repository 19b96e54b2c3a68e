/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

// fakeLoop is a manually driven Loop. Go runs inline, timers only fire
// through Advance.
type fakeLoop struct {
	now    time.Time
	queue  []func()
	timers []*fakeTimer
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (l *fakeLoop) Post(fn func()) {
	l.queue = append(l.queue, fn)
}

func (l *fakeLoop) AfterFunc(d time.Duration, fn func()) func() bool {
	t := &fakeTimer{at: l.now.Add(d), fn: fn}
	l.timers = append(l.timers, t)

	return func() bool {
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

func (l *fakeLoop) Go(fn func()) {
	fn()
}

func (l *fakeLoop) Now() time.Time {
	return l.now
}

func (l *fakeLoop) Drain() {
	for len(l.queue) > 0 {
		fn := l.queue[0]
		l.queue = l.queue[1:]
		fn()
	}
}

// Advance moves the clock forward, firing due timers in deadline order.
func (l *fakeLoop) Advance(d time.Duration) {
	target := l.now.Add(d)

	for {
		var next *fakeTimer
		for _, t := range l.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}

		l.now = next.at
		next.fired = true
		l.Post(next.fn)
		l.Drain()
	}

	l.now = target
	l.Drain()
}

func (l *fakeLoop) Live() []*fakeTimer {
	var live []*fakeTimer
	for _, t := range l.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	return live
}

type load struct {
	ref   string
	token uint64
}

type fakeAudio struct {
	loads []load
	plays []Clip
	stops int
}

func (a *fakeAudio) Load(ref string, token uint64) {
	a.loads = append(a.loads, load{ref: ref, token: token})
}

func (a *fakeAudio) Play(start, end float64) {
	a.plays = append(a.plays, Clip{Start: start, End: end})
}

func (a *fakeAudio) Stop() {
	a.stops++
}

func (a *fakeAudio) lastPlay() Clip {
	if len(a.plays) == 0 {
		return Clip{}
	}
	return a.plays[len(a.plays)-1]
}

type fakeDurations struct {
	duration float64
	err      error
}

func (f fakeDurations) ResolveDuration(context.Context, string) (float64, error) {
	return f.duration, f.err
}

type fakeCovers struct {
	cover string
	err   error
}

func (f fakeCovers) ResolveCover(context.Context, string) (string, error) {
	return f.cover, f.err
}

type harness struct {
	t        *testing.T
	loop     *fakeLoop
	audio    *fakeAudio
	game     *Game
	changes  int
	feedback []Feedback
}

func testMode(lives Count, timeout int, lifelines map[LifelineKind]Count) Mode {
	if lifelines == nil {
		lifelines = oneOfEach(1)
	}
	return Mode{
		Name:           "test",
		Title:          "Test",
		Lives:          lives,
		ClipSeconds:    10,
		TimeoutSeconds: timeout,
		Lifelines:      lifelines,
	}
}

func newHarness(t *testing.T, songs []Song, style GameStyle, mode Mode, opts ...func(*Config)) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		loop:  newFakeLoop(),
		audio: &fakeAudio{},
	}

	cfg := Config{
		Songs:     songs,
		Style:     style,
		Mode:      mode,
		Loop:      h.loop,
		Audio:     h.audio,
		Durations: fakeDurations{duration: 180},
		Rand:      rand.New(rand.NewPCG(1, 2)),
		OnChange: func() {
			h.changes++
		},
		OnFeedback: func(f Feedback) {
			h.feedback = append(h.feedback, f)
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	g, err := New(cfg)
	require.NoError(t, err)
	h.game = g

	return h
}

// start begins a game and brings the first round to Playing.
func (h *harness) start(rounds int) {
	h.t.Helper()

	require.NoError(h.t, h.game.Start(Options{Rounds: rounds}))
	h.ready()
}

// ready resolves pending lookups and reports the audio as loaded.
func (h *harness) ready() {
	h.t.Helper()

	h.loop.Drain()
	h.game.AudioReady(h.game.Token())
	h.loop.Drain()
	require.Equal(h.t, PhasePlaying, h.game.Phase())
}

func (h *harness) current() *Song {
	return h.game.round.song
}

func group(required bool, spellings ...string) SpellingGroup {
	return SpellingGroup{Required: required, Spellings: spellings}
}

func year(y int) *int {
	return &y
}

func aladdin() Song {
	return Song{
		ID:       "aladdin",
		Sources:  []SpellingGroup{group(true, "Disney")},
		Title:    group(true, "Aladdin"),
		Year:     year(1992),
		AudioRef: "aladdin.mp3",
	}
}

func catalogOf(n int) []Song {
	names := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf"}

	songs := make([]Song, 0, n)
	for i := range n {
		songs = append(songs, Song{
			ID:       names[i],
			Sources:  []SpellingGroup{group(true, names[i]+" Source")},
			Title:    group(true, names[i]+" Song"),
			Year:     year(1990 + i),
			AudioRef: names[i] + ".mp3",
		})
	}
	return songs
}
