/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import "time"

// LifelineKind names a power-up.
type LifelineKind string

const (
	LifelineHint   LifelineKind = "hint"
	LifelineCover  LifelineKind = "cover"
	LifelineYear   LifelineKind = "year"
	LifelineExpand LifelineKind = "expand"
	LifelineSkip   LifelineKind = "skip"
	LifelineTime   LifelineKind = "time"
)

// LifelineKinds lists every kind in display order.
var LifelineKinds = []LifelineKind{
	LifelineHint,
	LifelineCover,
	LifelineYear,
	LifelineExpand,
	LifelineSkip,
	LifelineTime,
}

// timeBonus is added to the countdown by the time lifeline.
const timeBonus = 10 * time.Second

func ParseLifelineKind(s string) (LifelineKind, bool) {
	for _, k := range LifelineKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type lifelineEntry struct {
	total         Count
	remaining     int
	usedThisRound bool
	everUsed      bool
}

// Bank tracks lifeline allowances for one game. It knows nothing about the
// round; callers pass kind-specific conditions in as a guard.
type Bank struct {
	entries map[LifelineKind]*lifelineEntry
}

// NewBank creates a bank from per-kind allowances. Kinds listed in disabled,
// or missing from allowances, get a total of zero.
func NewBank(allowances map[LifelineKind]Count, disabled []LifelineKind) *Bank {
	b := &Bank{entries: make(map[LifelineKind]*lifelineEntry, len(LifelineKinds))}

	for _, kind := range LifelineKinds {
		total := allowances[kind]
		for _, d := range disabled {
			if d == kind {
				total = 0
			}
		}

		e := &lifelineEntry{total: total}
		if !total.IsUnlimited() {
			e.remaining = int(total)
		}
		b.entries[kind] = e
	}

	return b
}

// Available reports whether kind may be used now. guard carries every
// round-level condition (guessing open, kind-specific checks).
func (b *Bank) Available(kind LifelineKind, guard bool) bool {
	e, ok := b.entries[kind]
	if !ok || !guard || e.total == 0 {
		return false
	}
	if e.total.IsUnlimited() {
		return !e.usedThisRound
	}
	return e.remaining > 0
}

// Consume records one use of kind. It returns false, changing nothing, when
// the kind has no use left this round.
func (b *Bank) Consume(kind LifelineKind) bool {
	if !b.Available(kind, true) {
		return false
	}

	e := b.entries[kind]
	if !e.total.IsUnlimited() {
		e.remaining--
	}
	e.usedThisRound = true
	e.everUsed = true

	return true
}

// ResetRound clears the per-round used flags.
func (b *Bank) ResetRound() {
	for _, e := range b.entries {
		e.usedThisRound = false
	}
}

func (b *Bank) Total(kind LifelineKind) Count {
	if e, ok := b.entries[kind]; ok {
		return e.total
	}
	return 0
}

// Remaining is Unlimited for unlimited kinds.
func (b *Bank) Remaining(kind LifelineKind) Count {
	e, ok := b.entries[kind]
	if !ok {
		return 0
	}
	if e.total.IsUnlimited() {
		return Unlimited
	}
	return Count(e.remaining)
}

func (b *Bank) UsedThisRound(kind LifelineKind) bool {
	e, ok := b.entries[kind]
	return ok && e.usedThisRound
}

// EverUsed reports whether kind was used at any point in the game.
func (b *Bank) EverUsed(kind LifelineKind) bool {
	e, ok := b.entries[kind]
	return ok && e.everUsed
}

// Used lists the kinds used at least once this game, in display order.
func (b *Bank) Used() []LifelineKind {
	used := []LifelineKind{}
	for _, kind := range LifelineKinds {
		if b.EverUsed(kind) {
			used = append(used, kind)
		}
	}
	return used
}
