/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrGameInProgress = errors.New("a game is already in progress")
	ErrInvalidRounds  = errors.New("invalid round count")
	ErrNoSongs        = errors.New("no songs match the selected filters")
)

// Phase is the lifecycle position of the game and its current round.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseLoading      Phase = "loading"
	PhasePlaying      Phase = "playing"
	PhaseAwaitingNext Phase = "awaiting_next"
	PhaseEnded        Phase = "ended"
)

type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Feedback is a transient presentation cue.
type Feedback string

const FeedbackMiss Feedback = "miss"

const (
	pointsPerSource = 50
	pointsPerTitle  = 100

	defaultResolveTimeout = 15 * time.Second
)

// Stats aggregates answers across rounds.
type Stats struct {
	RoundsCompleted  int `json:"rounds_completed"`
	SourcesGuessed   int `json:"sources_guessed"`
	TotalSourcesSeen int `json:"total_sources_seen"`
	SongsGuessed     int `json:"songs_guessed"`
	TotalSongsSeen   int `json:"total_songs_seen"`
}

// Summary is the frozen result of a finished game.
type Summary struct {
	Outcome        Outcome        `json:"outcome"`
	Score          int            `json:"score"`
	RoundsTotal    int            `json:"rounds_total"`
	LivesRemaining Count          `json:"lives_remaining"`
	LivesTotal     Count          `json:"lives_total"`
	LifelinesUsed  []LifelineKind `json:"lifelines_used"`
	Stats
}

// Options parameterize one playthrough.
type Options struct {
	Rounds int
	// MinYear and MaxYear restrict the queue to songs released in the
	// range. Zero leaves that side open.
	MinYear int
	MaxYear int
}

type Config struct {
	Songs    []Song
	Style    GameStyle
	Mode     Mode
	Disabled []LifelineKind

	Loop      Loop
	Audio     Audio
	Durations DurationResolver
	Covers    CoverResolver

	// OnChange runs after every state transition, once the new state is
	// consistent.
	OnChange   func()
	OnFeedback func(Feedback)

	Rand           *rand.Rand
	Logger         *zerolog.Logger
	EndPadding     float64
	ResolveTimeout time.Duration
}

// Game is one player session: the song queue, score, lives, lifelines and
// the round currently in play. It is not safe for concurrent use; the Loop
// serializes access.
type Game struct {
	cfg Config
	rng *rand.Rand
	log zerolog.Logger

	phase   Phase
	outcome Outcome
	lives   Count
	score   int
	stats   Stats
	queue   []Song
	index   int
	bank    *Bank
	summary *Summary

	round       *round
	epoch       uint64
	timerSeq    uint64
	countdown   timer
	clipStop    timer
	cancelRound context.CancelFunc
}

func New(cfg Config) (*Game, error) {
	if cfg.Loop == nil {
		return nil, errors.New("quiz: loop is required")
	}
	if cfg.Audio == nil {
		return nil, errors.New("quiz: audio is required")
	}
	if !cfg.Style.Valid() {
		return nil, fmt.Errorf("quiz: invalid game style %d", int(cfg.Style))
	}
	if err := cfg.Mode.validate(); err != nil {
		return nil, fmt.Errorf("quiz: %w", err)
	}
	if cfg.EndPadding <= 0 {
		cfg.EndPadding = DefaultEndPadding
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = defaultResolveTimeout
	}

	g := &Game{
		cfg:     cfg,
		rng:     cfg.Rand,
		log:     zerolog.Nop(),
		phase:   PhaseIdle,
		outcome: OutcomePending,
		lives:   cfg.Mode.Lives,
		bank:    NewBank(cfg.Mode.Lifelines, cfg.Disabled),
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Logger != nil {
		g.log = *cfg.Logger
	}

	return g, nil
}

func (g *Game) Phase() Phase {
	return g.phase
}

func (g *Game) Outcome() Outcome {
	return g.outcome
}

func (g *Game) Score() int {
	return g.score
}

func (g *Game) Lives() Count {
	return g.lives
}

func (g *Game) Stats() Stats {
	return g.stats
}

// Queue returns the songs drawn for this playthrough.
func (g *Game) Queue() []Song {
	return g.queue
}

// Token identifies the active round. It is zero before the first round.
func (g *Game) Token() uint64 {
	if g.round == nil {
		return 0
	}
	return g.round.token
}

// Summary is nil until the game has ended.
func (g *Game) Summary() *Summary {
	return g.summary
}

// Eligible returns how many catalog songs pass the year filter in opts.
func (g *Game) Eligible(opts Options) int {
	return len(g.eligible(opts))
}

func (g *Game) eligible(opts Options) []Song {
	if opts.MinYear == 0 && opts.MaxYear == 0 {
		return g.cfg.Songs
	}

	out := make([]Song, 0, len(g.cfg.Songs))
	for _, s := range g.cfg.Songs {
		if s.Year == nil {
			continue
		}
		if opts.MinYear != 0 && *s.Year < opts.MinYear {
			continue
		}
		if opts.MaxYear != 0 && *s.Year > opts.MaxYear {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Start shuffles the catalog, keeps opts.Rounds songs and plays the first.
// A finished game may be started again; its state is discarded.
func (g *Game) Start(opts Options) error {
	switch g.phase {
	case PhaseIdle, PhaseEnded:
	default:
		return ErrGameInProgress
	}

	pool := g.eligible(opts)
	if len(pool) == 0 {
		return ErrNoSongs
	}
	if opts.Rounds < 1 || opts.Rounds > len(pool) {
		return fmt.Errorf("%w: %d (between 1 and %d)", ErrInvalidRounds, opts.Rounds, len(pool))
	}

	queue := make([]Song, len(pool))
	copy(queue, pool)
	g.rng.Shuffle(len(queue), func(i, j int) {
		queue[i], queue[j] = queue[j], queue[i]
	})

	g.queue = queue[:opts.Rounds]
	g.index = 0
	g.lives = g.cfg.Mode.Lives
	g.score = 0
	g.stats = Stats{}
	g.summary = nil
	g.outcome = OutcomePending
	g.bank = NewBank(g.cfg.Mode.Lifelines, g.cfg.Disabled)

	g.log.Info().
		Str("mode", g.cfg.Mode.Name).
		Int("rounds", len(g.queue)).
		Msg("Game started")

	g.beginRound()

	return nil
}

// Close cancels timers and pending lookups without ending the game. The
// owning loop calls it when the session is discarded.
func (g *Game) Close() {
	g.cancelTimers()
	if g.cancelRound != nil {
		g.cancelRound()
		g.cancelRound = nil
	}
}

// endGame is the only way into PhaseEnded.
func (g *Game) endGame(outcome Outcome) {
	if g.phase == PhaseEnded {
		return
	}

	g.Close()
	if g.round != nil {
		g.closeRound()
		g.round.canGuess = false
	}
	g.cfg.Audio.Stop()

	g.phase = PhaseEnded
	g.outcome = outcome
	g.summary = &Summary{
		Outcome:        outcome,
		Score:          g.score,
		RoundsTotal:    len(g.queue),
		LivesRemaining: g.lives,
		LivesTotal:     g.cfg.Mode.Lives,
		LifelinesUsed:  g.bank.Used(),
		Stats:          g.stats,
	}

	g.log.Info().
		Str("outcome", string(outcome)).
		Int("score", g.score).
		Int("rounds", g.stats.RoundsCompleted).
		Msg("Game ended")
}

// closeRound folds the current round into the aggregates exactly once.
func (g *Game) closeRound() {
	r := g.round
	if r == nil || r.tallied {
		return
	}
	r.tallied = true

	g.stats.RoundsCompleted++
	if g.cfg.Style.GuessesSources() {
		g.stats.TotalSourcesSeen += len(r.song.Sources)
		if !r.skipped {
			g.stats.SourcesGuessed += len(r.revealedSources)
		}
	}
	if g.cfg.Style.GuessesTitle() {
		g.stats.TotalSongsSeen++
		if r.songRevealed && !r.skipped {
			g.stats.SongsGuessed++
		}
	}
}

func (g *Game) loseLife() {
	if g.lives.IsUnlimited() || g.lives == 0 {
		return
	}
	g.lives--
}

func (g *Game) outOfLives() bool {
	return !g.lives.IsUnlimited() && g.lives <= 0
}

func (g *Game) changed() {
	if g.cfg.OnChange != nil {
		g.cfg.OnChange()
	}
}

func (g *Game) feedback(f Feedback) {
	if g.cfg.OnFeedback != nil {
		g.cfg.OnFeedback(f)
	}
}
