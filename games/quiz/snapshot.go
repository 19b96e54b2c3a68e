/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

// FragmentState tells the presentation layer how to show an answer.
type FragmentState string

const (
	FragmentRevealed FragmentState = "revealed"
	FragmentHint     FragmentState = "hint"
	FragmentHidden   FragmentState = "hidden"
)

// Fragment is one answer component of the round. Text is set only when
// the answer is revealed; Mask carries hinted letters otherwise.
type Fragment struct {
	Index    int           `json:"index"`
	Required bool          `json:"required"`
	State    FragmentState `json:"state"`
	Text     string        `json:"text,omitempty"`
	Mask     string        `json:"mask,omitempty"`
	// Guessed is false for answers exposed after a lost game.
	Guessed bool `json:"guessed"`
}

type LifelineView struct {
	Kind      LifelineKind `json:"kind"`
	Total     Count        `json:"total"`
	Remaining Count        `json:"remaining"`
	Available bool         `json:"available"`
	Used      bool         `json:"used"`
}

// Snapshot is a read-only copy of everything a presentation layer needs to
// render the game. It shares no memory with the Game.
type Snapshot struct {
	Phase       Phase     `json:"phase"`
	Outcome     Outcome   `json:"outcome"`
	Style       GameStyle `json:"style"`
	Mode        string    `json:"mode"`
	Token       uint64    `json:"token"`
	Round       int       `json:"round"`
	RoundsTotal int       `json:"rounds_total"`
	Lives       Count     `json:"lives"`
	LivesTotal  Count     `json:"lives_total"`
	Score       int       `json:"score"`
	RoundPoints int       `json:"round_points"`
	CanGuess    bool      `json:"can_guess"`
	Bonus       bool      `json:"bonus"`

	Sources []Fragment `json:"sources"`
	Title   *Fragment  `json:"title,omitempty"`
	Year    *int       `json:"year,omitempty"`
	Cover   string     `json:"cover,omitempty"`

	Lifelines []LifelineView `json:"lifelines"`
	Clip      *Clip          `json:"clip,omitempty"`
	Expanded  bool           `json:"expanded"`

	// CountdownEndsAt is a unix millisecond deadline, zero when no
	// countdown is running.
	CountdownEndsAt    int64   `json:"countdown_ends_at,omitempty"`
	CountdownRemaining float64 `json:"countdown_remaining,omitempty"`

	Stats   Stats    `json:"stats"`
	Summary *Summary `json:"summary,omitempty"`
}

func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		Phase:       g.phase,
		Outcome:     g.outcome,
		Style:       g.cfg.Style,
		Mode:        g.cfg.Mode.Name,
		Token:       g.Token(),
		RoundsTotal: len(g.queue),
		Lives:       g.lives,
		LivesTotal:  g.cfg.Mode.Lives,
		Score:       g.score,
		Sources:     []Fragment{},
		Lifelines:   make([]LifelineView, 0, len(LifelineKinds)),
		Stats:       g.stats,
	}

	if g.summary != nil {
		sum := *g.summary
		sum.LifelinesUsed = append([]LifelineKind(nil), g.summary.LifelinesUsed...)
		s.Summary = &sum
	}

	for _, kind := range LifelineKinds {
		s.Lifelines = append(s.Lifelines, LifelineView{
			Kind:      kind,
			Total:     g.bank.Total(kind),
			Remaining: g.bank.Remaining(kind),
			Available: g.LifelineAvailable(kind),
			Used:      g.bank.UsedThisRound(kind),
		})
	}

	r := g.round
	if r == nil {
		return s
	}

	s.Round = min(g.index+1, len(g.queue))
	s.RoundPoints = r.points
	s.CanGuess = r.canGuess
	s.Bonus = r.bonus
	s.Expanded = r.expanded

	if r.clipReady {
		clip := r.clip
		s.Clip = &clip
	}

	if r.countdownActive {
		s.CountdownEndsAt = r.countdownEnds.UnixMilli()
		s.CountdownRemaining = g.countdownRemaining().Seconds()
	}

	if r.yearRevealed || g.phase == PhaseEnded {
		if r.song.Year != nil {
			year := *r.song.Year
			s.Year = &year
		}
	}
	if r.coverRevealed || (g.phase == PhaseEnded && r.cover != "") {
		s.Cover = r.cover
	}

	if g.cfg.Style.GuessesSources() {
		for i, src := range r.song.Sources {
			s.Sources = append(s.Sources, fragment(i, src, r.revealedSources[i], r.answersShown, r.sourceHints[i]))
		}
	}
	if g.cfg.Style.GuessesTitle() || r.songRevealed {
		title := fragment(0, r.song.Title, r.songRevealed, r.answersShown, r.titleHints)
		s.Title = &title
	}

	return s
}

func fragment(index int, group SpellingGroup, guessed, shown bool, hints map[int]bool) Fragment {
	f := Fragment{
		Index:    index,
		Required: group.Required,
		Guessed:  guessed,
	}

	switch {
	case guessed || (shown && group.Required):
		f.State = FragmentRevealed
		f.Text = group.Display()
	case len(hints) > 0:
		f.State = FragmentHint
		f.Mask = maskText(group.Display(), hints)
	default:
		f.State = FragmentHidden
		f.Mask = maskText(group.Display(), nil)
	}

	return f
}
