/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"context"
	"math"
	"strings"
	"time"
)

type timer struct {
	stop func() bool
	seq  uint64
}

// GuessResult describes what a single guess accomplished.
type GuessResult struct {
	// Evaluated is false when the guess was ignored outright.
	Evaluated bool  `json:"evaluated"`
	Sources   []int `json:"sources,omitempty"`
	Title     bool  `json:"title,omitempty"`
	Points    int   `json:"points,omitempty"`
}

func (r GuessResult) Matched() bool {
	return len(r.Sources) > 0 || r.Title
}

// round is the state of one song being played. It is created fresh by
// beginRound and never reused.
type round struct {
	token uint64
	song  *Song

	duration   float64
	clip       Clip
	clipReady  bool
	audioReady bool

	revealedSources map[int]bool
	songRevealed    bool
	titleBonus      bool
	yearRevealed    bool
	expanded        bool
	cover           string
	coverRevealed   bool
	sourceHints     map[int]map[int]bool
	titleHints      map[int]bool

	canGuess bool
	// bonus is set once the required answers are in while optional ones
	// are still open.
	bonus bool
	// answersShown exposes the required answers after a lost game.
	answersShown bool
	points       int
	// skipped rounds count as seen but never as guessed.
	skipped      bool
	tallied      bool

	countdownActive bool
	countdownEnds   time.Time
}

func newRound(token uint64, song *Song) *round {
	return &round{
		token:           token,
		song:            song,
		revealedSources: make(map[int]bool),
		sourceHints:     make(map[int]map[int]bool),
		titleHints:      make(map[int]bool),
	}
}

func (r *round) durationKnown() bool {
	return r.duration > 0
}

func (r *round) hintsFor(source int) map[int]bool {
	h, ok := r.sourceHints[source]
	if !ok {
		h = make(map[int]bool)
		r.sourceHints[source] = h
	}
	return h
}

// stale reports whether token no longer names the active round.
func (g *Game) stale(token uint64) bool {
	return g.round == nil || g.round.token != token || g.phase == PhaseEnded
}

func (g *Game) arm(t *timer, d time.Duration, fn func()) {
	g.disarm(t)

	g.timerSeq++
	seq, token := g.timerSeq, g.round.token

	t.seq = seq
	t.stop = g.cfg.Loop.AfterFunc(d, func() {
		if g.stale(token) || t.seq != seq {
			return
		}
		t.stop = nil
		t.seq = 0

		fn()
	})
}

func (g *Game) disarm(t *timer) {
	if t.stop != nil {
		t.stop()
	}
	t.stop = nil
	t.seq = 0
}

func (g *Game) cancelTimers() {
	g.disarm(&g.countdown)
	g.disarm(&g.clipStop)
	if g.round != nil {
		g.round.countdownActive = false
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (g *Game) beginRound() {
	g.Close()
	g.cfg.Audio.Stop()

	g.epoch++
	token := g.epoch
	song := &g.queue[g.index]

	g.round = newRound(token, song)
	g.bank.ResetRound()
	g.phase = PhaseLoading

	ctx, cancel := context.WithCancel(context.Background())
	g.cancelRound = cancel

	g.log.Debug().
		Uint64("token", token).
		Int("round", g.index+1).
		Str("song", song.ID).
		Msg("Round loading")

	ref := song.AudioRef
	if g.cfg.Durations == nil {
		g.cfg.Loop.Post(func() {
			g.durationResolved(token, 0, nil)
		})
	} else {
		g.cfg.Loop.Go(func() {
			rctx, rcancel := context.WithTimeout(ctx, g.cfg.ResolveTimeout)
			defer rcancel()

			d, err := g.cfg.Durations.ResolveDuration(rctx, ref)
			g.cfg.Loop.Post(func() {
				g.durationResolved(token, d, err)
			})
		})
	}

	if g.cfg.Covers != nil {
		g.cfg.Loop.Go(func() {
			rctx, rcancel := context.WithTimeout(ctx, g.cfg.ResolveTimeout)
			defer rcancel()

			cover, err := g.cfg.Covers.ResolveCover(rctx, ref)
			g.cfg.Loop.Post(func() {
				g.coverResolved(token, cover, err)
			})
		})
	}

	g.changed()
}

func (g *Game) durationResolved(token uint64, duration float64, err error) {
	if g.stale(token) || g.phase != PhaseLoading || g.round.clipReady {
		return
	}
	r := g.round
	clipSeconds := float64(g.cfg.Mode.ClipSeconds)

	switch {
	case err != nil:
		g.log.Warn().Err(err).Str("song", r.song.ID).Msg("Failed to resolve duration, playing from the start")
		r.clip = fallbackClip(clipSeconds)
	case duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0):
		g.log.Debug().Str("song", r.song.ID).Msg("Duration unknown, playing from the start")
		r.clip = fallbackClip(clipSeconds)
	default:
		r.duration = duration
		r.clip = SelectClip(r.song, duration, clipSeconds, g.cfg.EndPadding, g.rng)
	}
	r.clipReady = true

	g.cfg.Audio.Load(r.song.AudioRef, token)

	g.changed()
}

func (g *Game) coverResolved(token uint64, cover string, err error) {
	if g.stale(token) {
		return
	}
	if err != nil {
		g.log.Debug().Err(err).Str("song", g.round.song.ID).Msg("Failed to extract cover art")
		return
	}
	if cover == "" {
		return
	}

	g.round.cover = cover

	g.changed()
}

// AudioReady is called by the audio collaborator once the clip for token can
// be played. It starts playback and arms the round's timers.
func (g *Game) AudioReady(token uint64) {
	if g.stale(token) || g.phase != PhaseLoading {
		return
	}
	r := g.round
	if !r.clipReady || r.audioReady {
		return
	}
	r.audioReady = true

	g.playClip()
	if g.cfg.Mode.TimeoutSeconds > 0 {
		g.armCountdown(time.Duration(g.cfg.Mode.TimeoutSeconds) * time.Second)
	}
	r.canGuess = true
	g.phase = PhasePlaying

	g.log.Debug().
		Uint64("token", token).
		Float64("start", r.clip.Start).
		Float64("end", r.clip.End).
		Msg("Round playing")

	g.changed()
}

// playClip plays the current clip window and arms the clip-stop timer.
func (g *Game) playClip() {
	r := g.round

	g.cfg.Audio.Play(r.clip.Start, r.clip.End)
	g.arm(&g.clipStop, seconds(r.clip.Length()), g.clipEnded)
}

// playFull lets the song run to its end from the clip start.
func (g *Game) playFull() {
	g.disarm(&g.clipStop)
	g.cfg.Audio.Play(g.round.clip.Start, 0)
}

func (g *Game) clipEnded() {
	g.cfg.Audio.Stop()
}

func (g *Game) armCountdown(d time.Duration) {
	r := g.round

	r.countdownActive = true
	r.countdownEnds = g.cfg.Loop.Now().Add(d)
	g.arm(&g.countdown, d, g.countdownExpired)
}

func (g *Game) countdownRemaining() time.Duration {
	r := g.round
	if r == nil || !r.countdownActive {
		return 0
	}
	return max(r.countdownEnds.Sub(g.cfg.Loop.Now()), 0)
}

// countdownExpired costs a life without revealing anything, unless it was
// the last one.
func (g *Game) countdownExpired() {
	if g.phase != PhasePlaying {
		return
	}
	r := g.round

	g.cancelTimers()
	g.cfg.Audio.Stop()
	r.canGuess = false

	g.loseLife()

	g.log.Debug().Uint64("token", r.token).Str("lives", g.lives.String()).Msg("Countdown expired")

	if g.outOfLives() {
		r.answersShown = true
		g.endGame(OutcomeFailure)
	} else {
		g.phase = PhaseAwaitingNext
	}

	g.changed()
}

func (g *Game) requiredSatisfied() bool {
	r := g.round
	style := g.cfg.Style

	if style.GuessesSources() {
		for i, src := range r.song.Sources {
			if src.Required && !r.revealedSources[i] {
				return false
			}
		}
	}
	if style.GuessesTitle() && r.song.Title.Required && !r.songRevealed {
		return false
	}
	return true
}

func (g *Game) allSatisfied() bool {
	r := g.round
	style := g.cfg.Style

	if style.GuessesSources() && len(r.revealedSources) < len(r.song.Sources) {
		return false
	}
	if style.GuessesTitle() && !r.songRevealed {
		return false
	}
	return true
}

// SubmitGuess evaluates raw against every unrevealed answer of the round.
func (g *Game) SubmitGuess(raw string) GuessResult {
	r := g.round
	if r == nil || !r.canGuess || g.phase == PhaseEnded {
		return GuessResult{}
	}
	if strings.TrimSpace(raw) == "" {
		return GuessResult{}
	}

	input := Normalize(raw)
	res := GuessResult{Evaluated: true}

	switch g.cfg.Style {
	case StyleBoth:
		res.Sources = g.matchSources(input)
		res.Title = g.matchTitle(input)
	case StyleSourceOnly:
		res.Sources = g.matchSources(input)
		if len(res.Sources) > 0 && len(r.revealedSources) == len(r.song.Sources) && !r.songRevealed {
			r.songRevealed = true
			r.titleBonus = true
		}
	case StyleSongOnly:
		res.Title = g.matchTitle(input)
	}

	res.Points = len(res.Sources) * pointsPerSource
	if res.Title {
		res.Points += pointsPerTitle
	}
	g.score += res.Points
	r.points += res.Points

	if res.Matched() {
		switch {
		case g.allSatisfied():
			g.completeRound()
		case g.phase == PhasePlaying && g.requiredSatisfied():
			g.enterBonus()
		}

		g.changed()

		return res
	}

	if r.bonus {
		g.feedback(FeedbackMiss)

		return res
	}

	g.loseLife()
	if g.outOfLives() {
		r.answersShown = true
		g.endGame(OutcomeFailure)
	} else if g.requiredSatisfied() {
		g.enterBonus()
	}

	g.changed()
	g.feedback(FeedbackMiss)

	return res
}

func (g *Game) matchSources(input string) []int {
	r := g.round

	var found []int
	for i, src := range r.song.Sources {
		if r.revealedSources[i] {
			continue
		}
		if matchNormalized(input, src.Spellings) {
			r.revealedSources[i] = true
			found = append(found, i)
		}
	}
	return found
}

func (g *Game) matchTitle(input string) bool {
	r := g.round
	if r.songRevealed || !MatchesTitle(r.song, input) {
		return false
	}
	r.songRevealed = true
	return true
}

// completeRound closes guessing once every answer is in and lets the song
// play out.
func (g *Game) completeRound() {
	r := g.round

	g.cancelTimers()
	r.canGuess = false
	r.bonus = false
	g.phase = PhaseAwaitingNext

	g.playFull()

	g.log.Debug().Uint64("token", r.token).Int("points", r.points).Msg("Round complete")
}

// enterBonus resolves the round while optional answers stay guessable.
func (g *Game) enterBonus() {
	r := g.round

	g.disarm(&g.countdown)
	r.countdownActive = false
	r.bonus = true
	g.phase = PhaseAwaitingNext

	g.log.Debug().Uint64("token", r.token).Msg("Required answers found")
}

// NextRound moves past a resolved round. It is ignored unless the round is
// awaiting the player.
func (g *Game) NextRound() bool {
	if g.phase != PhaseAwaitingNext {
		return false
	}

	g.advance()

	return true
}

func (g *Game) advance() {
	g.cancelTimers()
	g.cfg.Audio.Stop()
	g.closeRound()

	g.index++
	if g.index >= len(g.queue) {
		g.endGame(OutcomeSuccess)
		g.changed()

		return
	}

	g.beginRound()
}

// GiveUp forfeits the whole game.
func (g *Game) GiveUp() bool {
	switch g.phase {
	case PhaseLoading, PhasePlaying, PhaseAwaitingNext:
	default:
		return false
	}

	g.round.answersShown = true
	g.endGame(OutcomeFailure)

	g.changed()

	return true
}

// Replay plays the current clip window again.
func (g *Game) Replay() bool {
	switch g.phase {
	case PhasePlaying, PhaseAwaitingNext:
	default:
		return false
	}
	if !g.round.audioReady {
		return false
	}

	g.playClip()

	return true
}

func (g *Game) hintTargets() bool {
	r := g.round

	if g.cfg.Style.GuessesSources() {
		for i, src := range r.song.Sources {
			if !r.revealedSources[i] && hintable(src.Display(), r.sourceHints[i]) {
				return true
			}
		}
	}
	if g.cfg.Style.GuessesTitle() && !r.songRevealed && hintable(r.song.Title.Display(), r.titleHints) {
		return true
	}
	return false
}

func (g *Game) applyHint() {
	r := g.round

	if g.cfg.Style.GuessesSources() {
		for i, src := range r.song.Sources {
			if r.revealedSources[i] {
				continue
			}
			revealLetters(src.Display(), r.hintsFor(i), g.rng)
		}
	}
	if g.cfg.Style.GuessesTitle() && !r.songRevealed {
		revealLetters(r.song.Title.Display(), r.titleHints, g.rng)
	}
}

// lifelineGuard holds the round-level conditions for kind.
func (g *Game) lifelineGuard(kind LifelineKind) bool {
	r := g.round
	if r == nil || !r.canGuess || g.phase == PhaseEnded {
		return false
	}

	switch kind {
	case LifelineTime:
		return g.cfg.Mode.TimeoutSeconds > 0 && g.phase == PhasePlaying && r.countdownActive
	case LifelineHint:
		return g.hintTargets()
	case LifelineYear:
		return r.song.Year != nil && !r.yearRevealed
	case LifelineExpand:
		return r.durationKnown() && !r.expanded && !r.clip.covers(r.duration)
	case LifelineCover:
		return r.cover != "" && !r.coverRevealed
	case LifelineSkip:
		return true
	}
	return false
}

// LifelineAvailable reports whether UseLifeline(kind) would succeed.
func (g *Game) LifelineAvailable(kind LifelineKind) bool {
	return g.bank.Available(kind, g.lifelineGuard(kind))
}

// UseLifeline spends one use of kind and applies it. Unavailable lifelines
// are ignored.
func (g *Game) UseLifeline(kind LifelineKind) bool {
	if !g.LifelineAvailable(kind) || !g.bank.Consume(kind) {
		return false
	}
	r := g.round

	g.log.Debug().Uint64("token", r.token).Str("lifeline", string(kind)).Msg("Lifeline used")

	switch kind {
	case LifelineTime:
		g.armCountdown(g.countdownRemaining() + timeBonus)
	case LifelineHint:
		g.applyHint()
	case LifelineYear:
		r.yearRevealed = true
	case LifelineCover:
		r.coverRevealed = true
	case LifelineExpand:
		r.expanded = true
		r.clip = Clip{Start: 0, End: r.duration}
		g.playClip()
	case LifelineSkip:
		g.score -= r.points
		r.points = 0
		r.skipped = true
		g.advance()

		return true
	}

	g.changed()

	return true
}
